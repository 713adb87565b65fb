// Package auth はログイン、セッション解決、ログアウトを提供する。
//
// リモートIdPが設定されていればそれを優先し、到達できない場合は
// ローカルディレクトリとローカルのセッションキャッシュで継続する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/hitoshi/lexcms/internal/model"
)

// NewMember はユーザー作成時の入力。
type NewMember struct {
	Email    string
	Name     string
	Password string
	Role     model.Role
}

// IdentityProvider はリモートIdPのインターフェース。
//
// 資格情報の拒否やメール重複などIdPが判断した失敗は*model.APIErrorで返す。
// それ以外のエラーはIdPに到達できなかったものとして扱われる。
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	// GetSession はセッションとユーザーを返す。存在しないか期限切れの場合はnilを返す。
	GetSession(ctx context.Context, sessionID string) (*model.User, *model.Session, error)
	SignOut(ctx context.Context, sessionID string) error

	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, in NewMember) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// DefaultAvatarURL は名前から生成するプレースホルダーのアバターURLを返す。
func DefaultAvatarURL(name string) string {
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=e2e8f0&color=64748b"
}
