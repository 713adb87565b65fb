// Package app はアプリケーションの初期化と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/lexcms/internal/article"
	"github.com/hitoshi/lexcms/internal/auth"
	"github.com/hitoshi/lexcms/internal/config"
	"github.com/hitoshi/lexcms/internal/database"
	"github.com/hitoshi/lexcms/internal/handler"
	"github.com/hitoshi/lexcms/internal/localstore"
	"github.com/hitoshi/lexcms/internal/logger"
	"github.com/hitoshi/lexcms/internal/media"
	"github.com/hitoshi/lexcms/internal/metrics"
	"github.com/hitoshi/lexcms/internal/middleware"
	"github.com/hitoshi/lexcms/internal/objstore"
	"github.com/hitoshi/lexcms/internal/repository"
	"github.com/hitoshi/lexcms/internal/security"
	"github.com/hitoshi/lexcms/internal/seed"
	"github.com/hitoshi/lexcms/internal/team"
	"github.com/hitoshi/lexcms/internal/validation"
	"github.com/hitoshi/lexcms/internal/worker/cleanup"
)

// remoteConnectTimeout は起動時のリモート疎通確認の待ち時間。
const remoteConnectTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルを読み込む（既存の環境変数が優先）
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := newRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// Server はワイヤリング済みのHTTPハンドラーとバックグラウンドジョブ。
type Server struct {
	Handler http.Handler

	cleanupJob  *cleanup.CleanupJob
	rateLimiter *middleware.RateLimiter
	closers     []func() error
}

// NewServer は設定に従って全依存関係をワイヤリングする。
//
// DATABASE_URLが空の場合はローカルモードで起動する。
// リモートに到達できない場合も起動は継続し、各操作がローカルにフォールバックする。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{}

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. ローカルストアとシードデータ
	store, err := localstore.Open(cfg.LocalStorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	s.closers = append(s.closers, store.Close)

	seedData, err := seed.Load()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load seed data: %w", err)
	}

	// 3. リモートバックエンド（任意）
	var (
		remoteIdP      auth.IdentityProvider
		remoteArticles repository.ArticleRepository
		cleanupTargets = []cleanup.Target{{Name: "local", Store: store.Sessions()}}
	)
	if cfg.RemoteEnabled() {
		db, err := connectRemote(ctx, cfg.DatabaseURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, db.Close)

		sessionRepo := repository.NewPostgresSessionRepo(db)
		remoteIdP = auth.NewPostgresProvider(
			repository.NewPostgresUserRepo(db), sessionRepo,
			time.Duration(cfg.SessionMaxAge)*time.Second,
		)
		remoteArticles = repository.NewPostgresArticleRepo(db)
		cleanupTargets = append(cleanupTargets, cleanup.Target{Name: "remote", Store: sessionRepo})
	}

	// 4. オブジェクトストレージ（任意）
	var objects media.ObjectStore
	if cfg.StorageEnabled() {
		client, err := objstore.NewClient(objstore.Options{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			UseSSL:    cfg.StorageUseSSL,
			PublicURL: cfg.StoragePublicURL,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create object storage client: %w", err)
		}
		for _, bucket := range []string{media.BucketArticleImages, media.BucketAvatars} {
			if err := client.EnsureBucket(ctx, bucket); err != nil {
				// バケット作成に失敗してもアップロード時にdata URLへ代替できる
				slog.Warn("failed to prepare bucket",
					slog.String("bucket", bucket),
					slog.String("error", err.Error()),
				)
			}
		}
		objects = client
	}

	// 5. ドメインサービスの初期化
	sanitizer := security.NewContentSanitizer()
	ssrfGuard := security.NewSSRFGuard()
	validator := validation.New()

	mediaService := media.NewService(objects, ssrfGuard, ssrfGuard.Client(cfg.ImportTimeout), cfg.UploadMaxBytes, collector)

	directory := auth.NewLocalDirectory(seedData.Users(), store.Users())
	teamService := team.NewService(remoteIdP, directory, mediaService, sanitizer, validator, collector)

	articleService := article.NewService(remoteArticles, store.Articles(), seedData, teamService, sanitizer, validator, collector)

	resolver := auth.NewResolver(
		remoteIdP, directory, store.Sessions(), auth.NewTokens(cfg.SessionSecret),
		time.Duration(cfg.SessionMaxAge)*time.Second, collector,
	)

	// 6. ルーターの構築
	s.rateLimiter = middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	s.closers = append(s.closers, func() error {
		s.rateLimiter.Stop()
		return nil
	})

	s.Handler = handler.NewRouter(&handler.RouterDeps{
		SessionResolver:   resolver,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       s.rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SecurityHeaders: middleware.SecurityHeadersConfig{HSTS: cfg.CookieSecure},

		Logger:         slog.Default(),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),

		AuthService: resolver,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		ArticleService: articleService,
		FeedConfig:     handler.FeedConfig{BaseURL: cfg.BaseURL},
		Categories:     seedData.Categories(),

		TeamService:    teamService,
		MediaService:   mediaService,
		UploadMaxBytes: cfg.UploadMaxBytes,

		RemoteEnabled: cfg.RemoteEnabled,
	})

	// 7. 期限切れセッションのクリーンアップジョブ
	s.cleanupJob = cleanup.NewCleanupJob(slog.Default(), collector, cleanupTargets...)

	return s, nil
}

// Close は保持しているリソースを逆順に解放する。
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// connectRemote はリモートのPostgreSQLに接続する。
// 疎通確認に失敗しても接続は返し、リモート呼び出しごとにフォールバックさせる。
func connectRemote(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Connect(ctx, databaseURL, remoteConnectTimeout)
	if db == nil {
		return nil, err
	}
	if err != nil {
		slog.Warn("remote backend unreachable, continuing with local fallback",
			slog.String("database_url", maskDatabaseURL(databaseURL)),
			slog.String("error", err.Error()),
		)
		return db, nil
	}
	slog.Info("database connection established")
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	// クリーンアップジョブをバックグラウンドで実行
	go srv.cleanupJob.Start(ctx, cleanup.DefaultInterval)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("mode", cfg.Mode()),
			slog.Bool("storage", cfg.StorageEnabled()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// downがtrueの場合はstepsで指定した数だけロールバックする（0は全て）。
func runMigrate(cfg *config.Config, down bool, steps int) error {
	if !cfg.RemoteEnabled() {
		return errors.New("DATABASE_URL is required for migrations")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("down", down),
	)

	if down {
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	} else if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runCreateUser はリモートIdPに管理者などのユーザーを登録する。
// 初回デプロイ時のブートストラップ用。
func runCreateUser(ctx context.Context, cfg *config.Config, out io.Writer, in auth.NewMember) error {
	if !cfg.RemoteEnabled() {
		return errors.New("DATABASE_URL is required to create a remote user")
	}
	if err := validation.New().Invite(&validation.InviteInput{
		Email: in.Email, Name: in.Name, Password: in.Password, Role: in.Role,
	}); err != nil {
		return err
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL, remoteConnectTimeout)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return err
	}
	defer db.Close()

	provider := auth.NewPostgresProvider(
		repository.NewPostgresUserRepo(db), repository.NewPostgresSessionRepo(db),
		time.Duration(cfg.SessionMaxAge)*time.Second,
	)
	user, err := provider.CreateUser(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(out, "User created: id=%s email=%s role=%s\n", user.ID, user.Email, user.Role)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

// healthcheckPort はSERVER_PORTを返す。未設定の場合は8080。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}
