package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCSRFMiddleware_SafeMethodsIssueCookie(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("未発行なら設定する", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var found *http.Cookie
		for _, c := range w.Result().Cookies() {
			if c.Name == csrfCookieName {
				found = c
			}
		}
		if found == nil || len(found.Value) != 64 || found.HttpOnly {
			t.Errorf("csrf cookie = %+v, want readable 64-char token", found)
		}
	})

	t.Run("発行済みなら設定しない", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if len(w.Result().Cookies()) != 0 {
			t.Errorf("unexpected cookies: %v", w.Result().Cookies())
		}
	})
}

func TestCSRFMiddleware_StateChangingMethods(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantStatus int
	}{
		{"一致", http.MethodPost, "tok", "tok", http.StatusOK},
		{"DELETEも検証", http.MethodDelete, "tok", "tok", http.StatusOK},
		{"Cookieなし", http.MethodPost, "", "tok", http.StatusForbidden},
		{"ヘッダーなし", http.MethodPut, "tok", "", http.StatusForbidden},
		{"不一致", http.MethodPatch, "tok", "other", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/articles", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				if body := decodeErrorBody(t, w); body.Code != ErrCodeCSRFInvalid {
					t.Errorf("code = %q, want %q", body.Code, ErrCodeCSRFInvalid)
				}
			}
		})
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true})

	t.Run("新規発行", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		cookies := w.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value != body.Token || !cookies[0].Secure {
			t.Errorf("cookies = %+v, token = %q", cookies, body.Token)
		}
	})

	t.Run("既存のトークンを返す", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		var body struct {
			Token string `json:"token"`
		}
		json.NewDecoder(w.Body).Decode(&body)
		if body.Token != "existing" {
			t.Errorf("token = %q, want existing", body.Token)
		}
	})
}

func TestCSRFTokenHandler_BehindMiddlewareIssuesSingleCookie(t *testing.T) {
	config := CSRFConfig{}
	handler := NewCSRFMiddleware(config)(NewCSRFTokenHandler(config))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("len(cookies) = %d, want 1", len(cookies))
	}
	if cookies[0].Value != body.Token {
		t.Errorf("cookie = %q, token = %q, want same value", cookies[0].Value, body.Token)
	}
}
