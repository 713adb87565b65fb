package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lexcms/internal/article"
	"github.com/hitoshi/lexcms/internal/auth"
	"github.com/hitoshi/lexcms/internal/media"
	"github.com/hitoshi/lexcms/internal/middleware"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/team"
	"github.com/hitoshi/lexcms/internal/validation"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn  func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	logoutFn func(ctx context.Context, token string) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError("")
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockArticleService struct {
	listFn   func(ctx context.Context) []model.Article
	getFn    func(ctx context.Context, id string) (*model.Article, error)
	saveFn   func(ctx context.Context, actor *model.User, id string, in validation.ArticleInput) (*article.SaveResult, error)
	deleteFn func(ctx context.Context, actor *model.User, id string) (*article.DeleteResult, error)
}

func (m *mockArticleService) ListArticles(ctx context.Context) []model.Article {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil
}

func (m *mockArticleService) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewArticleNotFoundError(id)
}

func (m *mockArticleService) SaveArticle(ctx context.Context, actor *model.User, id string, in validation.ArticleInput) (*article.SaveResult, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, actor, id, in)
	}
	return nil, nil
}

func (m *mockArticleService) DeleteArticle(ctx context.Context, actor *model.User, id string) (*article.DeleteResult, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, id)
	}
	return &article.DeleteResult{Synced: true}, nil
}

type mockTeamService struct {
	listFn      func(ctx context.Context) ([]model.User, error)
	inviteFn    func(ctx context.Context, actor *model.User, in validation.InviteInput) (*team.Result, error)
	toggleFn    func(ctx context.Context, actor *model.User, memberID string) (*team.Result, error)
	removeFn    func(ctx context.Context, actor *model.User, memberID string) (*team.Result, error)
	renameFn    func(ctx context.Context, actor *model.User, memberID string, in validation.ProfileInput) (*team.Result, error)
	setAvatarFn func(ctx context.Context, actor *model.User, memberID string, f *media.File) (*team.Result, error)
}

func (m *mockTeamService) ListMembers(ctx context.Context) ([]model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockTeamService) Invite(ctx context.Context, actor *model.User, in validation.InviteInput) (*team.Result, error) {
	if m.inviteFn != nil {
		return m.inviteFn(ctx, actor, in)
	}
	return &team.Result{}, nil
}

func (m *mockTeamService) ToggleRole(ctx context.Context, actor *model.User, memberID string) (*team.Result, error) {
	if m.toggleFn != nil {
		return m.toggleFn(ctx, actor, memberID)
	}
	return &team.Result{}, nil
}

func (m *mockTeamService) RemoveMember(ctx context.Context, actor *model.User, memberID string) (*team.Result, error) {
	if m.removeFn != nil {
		return m.removeFn(ctx, actor, memberID)
	}
	return &team.Result{}, nil
}

func (m *mockTeamService) Rename(ctx context.Context, actor *model.User, memberID string, in validation.ProfileInput) (*team.Result, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, actor, memberID, in)
	}
	return &team.Result{}, nil
}

func (m *mockTeamService) SetAvatar(ctx context.Context, actor *model.User, memberID string, f *media.File) (*team.Result, error) {
	if m.setAvatarFn != nil {
		return m.setAvatarFn(ctx, actor, memberID, f)
	}
	return &team.Result{}, nil
}

type mockMediaService struct {
	uploadFn func(ctx context.Context, f *media.File) (*media.Result, error)
	importFn func(ctx context.Context, rawURL string) (*media.Result, error)
}

func (m *mockMediaService) UploadArticleImage(ctx context.Context, f *media.File) (*media.Result, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, f)
	}
	return &media.Result{}, nil
}

func (m *mockMediaService) ImportFromURL(ctx context.Context, rawURL string) (*media.Result, error) {
	if m.importFn != nil {
		return m.importFn(ctx, rawURL)
	}
	return &media.Result{}, nil
}

// --- ヘルパー ---

var (
	testAdmin  = &model.User{ID: "u-admin", Name: "Admin", Email: "admin@example.com", Role: model.RoleAdmin}
	testEditor = &model.User{ID: "u-editor", Name: "Editor", Email: "editor@example.com", Role: model.RoleEditor}
)

// withUser は認証済みユーザーをリクエストコンテキストに設定する。
func withUser(r *http.Request, user *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), user, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v\nraw: %s", err, w.Body.String())
	}
	return body
}

// withURLParam はchiのURLパラメータをリクエストに設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
