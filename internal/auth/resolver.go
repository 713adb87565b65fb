package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/lexcms/internal/localstore"
	"github.com/hitoshi/lexcms/internal/metrics"
	"github.com/hitoshi/lexcms/internal/model"
)

// SessionCache はセッションとユーザー情報のローカルキャッシュ。
type SessionCache interface {
	Save(ctx context.Context, session *model.Session, user *model.User) error
	Find(ctx context.Context, id string) (*localstore.SessionRecord, error)
	Delete(ctx context.Context, id string) error
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Token   string
}

// Resolver はログイン・セッション解決・ログアウトを提供する。
//
// 1セッションにつきユーザーは1人のみ。remoteがnilの場合はローカルディレクトリのみを使う。
type Resolver struct {
	remote     IdentityProvider
	directory  *LocalDirectory
	cache      SessionCache
	tokens     *Tokens
	sessionTTL time.Duration
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(
	remote IdentityProvider,
	directory *LocalDirectory,
	cache SessionCache,
	tokens *Tokens,
	sessionTTL time.Duration,
	collector metrics.MetricsCollector,
) *Resolver {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Resolver{
		remote:     remote,
		directory:  directory,
		cache:      cache,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		metrics:    collector,
		now:        time.Now,
	}
}

// Login はメールアドレスとパスワードでログインする。
//
// リモートIdPを先に試し、失敗した場合はローカルディレクトリと照合する。
// どちらも失敗した場合はリモートIdPの拒否メッセージを優先したエラーを1つ返す。
func (r *Resolver) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var remoteErr *model.APIError

	if r.remote != nil {
		user, session, err := r.remote.SignInWithPassword(ctx, email, password)
		if err == nil {
			r.metrics.RecordLogin("remote", "success")
			// リモートに到達できなくなった場合に備えてローカルにも保持する
			if cacheErr := r.cache.Save(ctx, session, user); cacheErr != nil {
				slog.Warn("failed to cache remote session",
					slog.String("operation", "login"),
					slog.String("error", cacheErr.Error()),
				)
			}
			return r.issue(user, session)
		}

		r.metrics.RecordLogin("remote", "failure")
		if !errors.As(err, &remoteErr) {
			r.metrics.RecordRemoteFailure("login")
			slog.Warn("remote sign-in failed, checking local directory",
				slog.String("operation", "login"),
				slog.String("error", err.Error()),
			)
		}
	}

	user, err := r.directory.Authenticate(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("ローカルディレクトリの照合に失敗しました: %w", err)
	}
	if user == nil {
		r.metrics.RecordLogin("local", "failure")
		if remoteErr != nil {
			return nil, remoteErr
		}
		return nil, model.NewInvalidCredentialsError("")
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, err
	}
	now := r.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Provider:  model.ProviderLocal,
		ExpiresAt: now.Add(r.sessionTTL),
		CreatedAt: now,
	}
	if err := r.cache.Save(ctx, session, user); err != nil {
		return nil, fmt.Errorf("ローカルセッションの保存に失敗しました: %w", err)
	}
	r.metrics.RecordLogin("local", "success")
	slog.Info("local session established",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)

	safe := *user
	safe.PasswordHash = ""
	return r.issue(&safe, session)
}

func (r *Resolver) issue(user *model.User, session *model.Session) (*LoginResult, error) {
	token, err := r.tokens.Issue(session)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Session: session, Token: token}, nil
}

// Resolve はセッショントークンからユーザーとセッションを解決する。
// トークンが無効・期限切れ・セッション不明の場合は匿名としてnilを返す。
func (r *Resolver) Resolve(ctx context.Context, token string) (*model.User, *model.Session, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return nil, nil, nil
	}

	if claims.Provider == model.ProviderRemote && r.remote != nil {
		user, session, err := r.remote.GetSession(ctx, claims.SessionID)
		if err == nil {
			if session == nil || user == nil {
				return nil, nil, nil
			}
			return user, session, nil
		}
		r.metrics.RecordRemoteFailure("get_session")
		slog.Warn("remote session lookup failed, using cached session",
			slog.String("operation", "get_session"),
			slog.String("error", err.Error()),
		)
	}

	rec, err := r.cache.Find(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("ローカルセッションの取得に失敗しました: %w", err)
	}
	if rec == nil || rec.Session.UserID != claims.Subject {
		return nil, nil, nil
	}

	if rec.Session.Provider == model.ProviderRemote {
		user := rec.User
		return &user, &rec.Session, nil
	}

	// ローカルで変更されたロールや表示名を反映する
	user, err := r.directory.FindByID(ctx, rec.Session.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, nil
	}
	user.PasswordHash = ""
	return user, &rec.Session, nil
}

// Logout はローカルのセッションキャッシュを削除し、リモートIdPにも通知する。
// リモートへの通知失敗はログに記録するのみで、エラーにはしない。
func (r *Resolver) Logout(ctx context.Context, token string) error {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return nil
	}

	if err := r.cache.Delete(ctx, claims.SessionID); err != nil {
		slog.Warn("failed to delete cached session",
			slog.String("operation", "logout"),
			slog.String("error", err.Error()),
		)
	}

	if claims.Provider == model.ProviderRemote && r.remote != nil {
		if err := r.remote.SignOut(ctx, claims.SessionID); err != nil {
			r.metrics.RecordRemoteFailure("logout")
			slog.Warn("remote sign-out failed",
				slog.String("operation", "logout"),
				slog.String("error", err.Error()),
			)
		}
	}

	slog.Info("user logged out", slog.String("session_id", claims.SessionID))
	return nil
}
