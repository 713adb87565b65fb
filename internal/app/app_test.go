package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hitoshi/lexcms/internal/logger"
	"github.com/hitoshi/lexcms/internal/model"
)

// setLocalEnv はローカルモードで起動するための環境変数を設定する。
func setLocalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SESSION_SECRET", "test-session-secret-32bytes-long!")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_ENDPOINT", "")
	t.Setenv("BASE_URL", "http://localhost:8080")
	t.Setenv("LOCAL_STORE_PATH", filepath.Join(t.TempDir(), "lexcms.db"))
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setLocalEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	defer logger.SetLevel("info")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.Mode() != "local" {
		t.Errorf("Mode() = %q, want %q", cfg.Mode(), "local")
	}

	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing SESSION_SECRET, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://user:secret@db:5432/lexcms")
	if strings.Contains(got, "secret") {
		t.Errorf("maskDatabaseURL leaked credentials: %q", got)
	}
	if maskDatabaseURL("short") != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", maskDatabaseURL("short"))
	}
}

// newLocalServer はローカルモードのServerを起動し、Cookieを保持するクライアントを返す。
func newLocalServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	setLocalEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	srv, err := NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return ts, &http.Client{Jar: jar}
}

func fetchCSRFToken(t *testing.T, ts *httptest.Server, client *http.Client) string {
	t.Helper()
	resp, err := client.Get(ts.URL + "/api/csrf-token")
	if err != nil {
		t.Fatalf("GET /api/csrf-token: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf token: %v", err)
	}
	return body.Token
}

func postJSON(t *testing.T, client *http.Client, url, csrf, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestNewServer_LocalMode_Health(t *testing.T) {
	ts, client := newLocalServer(t)

	resp, err := client.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
		Mode   string `json:"mode"`
		Remote bool   `json:"remote"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Mode != "local" || body.Remote {
		t.Errorf("health = %+v, want ok/local", body)
	}
}

func TestNewServer_LocalMode_ServesSeedArticles(t *testing.T) {
	ts, client := newLocalServer(t)

	resp, err := client.Get(ts.URL + "/api/articles")
	if err != nil {
		t.Fatalf("GET /api/articles: %v", err)
	}
	defer resp.Body.Close()

	var list []model.Article
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) == 0 {
		t.Error("seed articles should be listed in local mode")
	}
}

func TestNewServer_LocalMode_LoginAndCreateArticle(t *testing.T) {
	ts, client := newLocalServer(t)
	csrf := fetchCSRFToken(t, ts, client)

	resp := postJSON(t, client, ts.URL+"/api/auth/login", csrf, `{"email":"author@dagrand.nex","password":"123"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body := `{
		"title": "New Whistleblowing Rules",
		"summary": "Employers must set up internal reporting channels.",
		"date": "OCTOBER 24, 2024",
		"category": "EMPLOYMENT AND BENEFITS",
		"image": "https://images.example.com/cover.jpg",
		"content": ["<p>First <script>alert(1)</script>paragraph</p>"]
	}`
	resp = postJSON(t, client, ts.URL+"/api/articles", csrf, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		Article model.Article `json:"article"`
		Synced  bool          `json:"synced"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Article.AuthorID != "demo_author" {
		t.Errorf("author_id = %q, want demo_author", created.Article.AuthorID)
	}
	if strings.Contains(strings.Join(created.Article.Content, ""), "<script>") {
		t.Errorf("content should be sanitized: %v", created.Article.Content)
	}

	get, err := client.Get(ts.URL + "/api/articles/" + created.Article.ID)
	if err != nil {
		t.Fatalf("GET article: %v", err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusOK {
		t.Errorf("get status = %d, want %d", get.StatusCode, http.StatusOK)
	}
}

func TestNewServer_LocalMode_WrongPassword(t *testing.T) {
	ts, client := newLocalServer(t)
	csrf := fetchCSRFToken(t, ts, client)

	resp := postJSON(t, client, ts.URL+"/api/auth/login", csrf, `{"email":"author@dagrand.nex","password":"nope"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}
