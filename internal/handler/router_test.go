package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/lexcms/internal/article"
	"github.com/hitoshi/lexcms/internal/middleware"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/validation"
)

type mockResolver struct {
	users map[string]*model.User
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (*model.User, *model.Session, error) {
	user, ok := m.users[token]
	if !ok {
		return nil, nil, nil
	}
	return user, &model.Session{ID: "s-" + token, UserID: user.ID, Provider: model.ProviderLocal}, nil
}

const testCSRFToken = "csrf-test-token"

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	if deps.SessionResolver == nil {
		deps.SessionResolver = &mockResolver{users: map[string]*model.User{
			"admin-token":  testAdmin,
			"editor-token": testEditor,
		}}
	}
	if deps.RateLimiter == nil {
		rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
		t.Cleanup(rl.Stop)
		deps.RateLimiter = rl
	}
	if deps.AuthService == nil {
		deps.AuthService = &mockAuthService{}
	}
	if deps.ArticleService == nil {
		deps.ArticleService = &mockArticleService{}
	}
	if deps.TeamService == nil {
		deps.TeamService = &mockTeamService{}
	}
	if deps.MediaService == nil {
		deps.MediaService = &mockMediaService{}
	}
	return NewRouter(deps)
}

// newStateChangingRequest はCSRFトークンとセッションCookieを付けたリクエストを生成する。
func newStateChangingRequest(method, target, body, sessionToken string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	if sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionToken})
	}
	return req
}

func TestRouter_PublicRoutes(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		ArticleService: &mockArticleService{
			listFn: func(ctx context.Context) []model.Article { return sampleArticles() },
		},
		Categories:     []string{"Corporate", "Employment"},
		RemoteEnabled:  func() bool { return false },
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
	})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"ヘルスチェック", "/health", http.StatusOK},
		{"記事一覧", "/api/articles", http.StatusOK},
		{"存在しない記事", "/api/articles/zzz", http.StatusNotFound},
		{"カテゴリー", "/api/categories", http.StatusOK},
		{"RSSフィード", "/feed.xml", http.StatusOK},
		{"CSRFトークン", "/api/csrf-token", http.StatusOK},
		{"メトリクス", "/metrics", http.StatusOK},
		{"未認証のme", "/api/auth/me", http.StatusUnauthorized},
		{"未認証のチーム一覧", "/api/team", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{RemoteEnabled: func() bool { return true }})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Status != "ok" || body.Mode != "remote" || !body.Remote {
		t.Errorf("health = %+v, want ok/remote", body)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestRouter_MetricsNotMountedWithoutHandler(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_CreateArticle_Guards(t *testing.T) {
	saved := 0
	router := newTestRouter(t, &RouterDeps{
		ArticleService: &mockArticleService{
			saveFn: func(ctx context.Context, actor *model.User, id string, in validation.ArticleInput) (*article.SaveResult, error) {
				saved++
				return &article.SaveResult{Article: &model.Article{ID: "new-1", AuthorID: actor.ID}, Created: true, Synced: true}, nil
			},
		},
	})

	tests := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantCode   string
	}{
		{
			name: "CSRFトークンなし",
			req: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/articles", strings.NewReader(`{}`))
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "editor-token"})
				return req
			},
			wantStatus: http.StatusForbidden,
			wantCode:   middleware.ErrCodeCSRFInvalid,
		},
		{
			name: "未認証",
			req: func() *http.Request {
				return newStateChangingRequest(http.MethodPost, "/api/articles", `{}`, "")
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeUnauthorized,
		},
		{
			name: "無効なセッション",
			req: func() *http.Request {
				return newStateChangingRequest(http.MethodPost, "/api/articles", `{}`, "forged-token")
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req())
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
	if saved != 0 {
		t.Errorf("SaveArticle called %d times, want 0", saved)
	}

	t.Run("認証済み", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, newStateChangingRequest(http.MethodPost, "/api/articles", `{"title":"Valid Title"}`, "editor-token"))
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusCreated, w.Body.String())
		}
		if saved != 1 {
			t.Errorf("SaveArticle called %d times, want 1", saved)
		}
	})
}

func TestRouter_TeamRoutes(t *testing.T) {
	var calls []string
	svc := &mockTeamService{
		listFn: func(ctx context.Context) ([]model.User, error) {
			calls = append(calls, "list")
			return []model.User{*testAdmin}, nil
		},
	}
	router := newTestRouter(t, &RouterDeps{TeamService: svc})

	req := httptest.NewRequest(http.MethodGet, "/api/team", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "admin-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want [list]", calls)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, newStateChangingRequest(http.MethodPost, "/api/team/u-editor/role", "", "admin-token"))
	if w.Code != http.StatusOK {
		t.Errorf("toggle role status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(120, 2))
	t.Cleanup(rl.Stop)
	router := newTestRouter(t, &RouterDeps{RateLimiter: rl})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := newStateChangingRequest(http.MethodPost, "/api/auth/login", `{"email":"a@example.com","password":"wrong"}`, "")
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses = %v, want %v", statuses, want)
			break
		}
	}
}
