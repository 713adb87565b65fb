package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/repository"
)

// invalidLoginMessage はリモートIdPが資格情報を拒否した場合のメッセージ。
const invalidLoginMessage = "Invalid login credentials"

// PostgresProvider はPostgreSQLのusers/sessionsテーブルを使うIdentityProvider。
type PostgresProvider struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	sessionTTL time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewPostgresProvider はPostgresProviderを生成する。
func NewPostgresProvider(users repository.UserRepository, sessions repository.SessionRepository, sessionTTL time.Duration) *PostgresProvider {
	return &PostgresProvider{
		users:      users,
		sessions:   sessions,
		sessionTTL: sessionTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// SignInWithPassword はメールアドレスとパスワードでユーザーを認証し、セッションを作成する。
func (p *PostgresProvider) SignInWithPassword(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	user, err := p.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, nil, model.NewInvalidCredentialsError(invalidLoginMessage)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError(invalidLoginMessage)
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, nil, err
	}
	now := p.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Provider:  model.ProviderRemote,
		ExpiresAt: now.Add(p.sessionTTL),
		CreatedAt: now,
	}
	if err := p.sessions.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to save session: %w", err)
	}

	user.PasswordHash = ""
	return user, session, nil
}

// GetSession はセッションとユーザーを取得する。
func (p *PostgresProvider) GetSession(ctx context.Context, sessionID string) (*model.User, *model.Session, error) {
	session, err := p.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, nil
	}
	user, err := p.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, nil
	}
	user.PasswordHash = ""
	return user, session, nil
}

// SignOut はセッションを削除する。
func (p *PostgresProvider) SignOut(ctx context.Context, sessionID string) error {
	if err := p.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListUsers は全ユーザーを返す。パスワードハッシュは含まない。
func (p *PostgresProvider) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := p.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// CreateUser はユーザーを作成する。メールアドレスが登録済みの場合はDUPLICATE_EMAILを返す。
func (p *PostgresProvider) CreateUser(ctx context.Context, in NewMember) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := p.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Email:        strings.TrimSpace(in.Email),
		Role:         in.Role,
		AvatarURL:    DefaultAvatarURL(in.Name),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateEmailError(user.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// リポジトリに渡したレコードは変更せず、ハッシュを除いた複製を返す
	created := *user
	created.PasswordHash = ""
	return &created, nil
}

// UpdateUser はユーザーの表示名・ロール・アバターを更新する。
func (p *PostgresProvider) UpdateUser(ctx context.Context, user *model.User) error {
	u := *user
	u.UpdatedAt = p.now()
	if err := p.users.Update(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(user.ID)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeleteUser はユーザーを削除する。セッションはCASCADE削除される。
func (p *PostgresProvider) DeleteUser(ctx context.Context, id string) error {
	if err := p.users.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError(id)
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityProvider = (*PostgresProvider)(nil)
