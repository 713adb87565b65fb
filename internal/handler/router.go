package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/lexcms/internal/metrics"
	"github.com/hitoshi/lexcms/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	SecurityHeaders   middleware.SecurityHeadersConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	// MetricsHandler がnilの場合、/metricsは公開しない。
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事
	ArticleService ArticleServiceInterface
	FeedConfig     FeedConfig
	Categories     []string

	// チーム・メディア
	TeamService    TeamServiceInterface
	MediaService   MediaServiceInterface
	UploadMaxBytes int64

	RemoteEnabled func() bool
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → SecurityHeaders → CORS → Session → Logging → CSRF
//
// 認証必須のルートにはさらに RequireAuth → RateLimit(General) を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	// ログにuser_idを含めるため、Loggingはセッション解決の内側に置く
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	articleHandler := NewArticleHandler(deps.ArticleService)
	feedHandler := NewFeedHandler(deps.ArticleService, deps.FeedConfig)
	teamHandler := NewTeamHandler(deps.TeamService, deps.UploadMaxBytes)
	uploadHandler := NewUploadHandler(deps.MediaService, deps.UploadMaxBytes)

	// --- 認証不要のルート ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.RemoteEnabled))
	r.Method(http.MethodGet, "/feed.xml", feedHandler)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
	r.Get("/api/categories", CategoriesHandler(deps.Categories))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Get("/api/articles", articleHandler.List)
	r.Get("/api/articles/{id}", articleHandler.Get)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: RequireAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 記事管理
		r.Post("/api/articles", articleHandler.Create)
		r.Put("/api/articles/{id}", articleHandler.Update)
		r.Delete("/api/articles/{id}", articleHandler.Delete)

		// 画像
		r.Route("/api/uploads", func(r chi.Router) {
			r.Post("/images", uploadHandler.UploadImage)
			r.Post("/import", uploadHandler.Import)
		})

		// チーム管理
		r.Route("/api/team", func(r chi.Router) {
			r.Get("/", teamHandler.List)
			r.Post("/", teamHandler.Invite)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", teamHandler.Rename)
				r.Delete("/", teamHandler.Remove)
				r.Post("/role", teamHandler.ToggleRole)
				r.Post("/avatar", teamHandler.UploadAvatar)
			})
		})
	})

	return r
}
