// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロール。
type Role string

const (
	// RoleAdmin は全記事・全アカウントを操作できる管理者。
	RoleAdmin Role = "admin"
	// RoleEditor は自分の記事のみ作成・編集できる編集者。
	RoleEditor Role = "editor"
)

// Valid はロールが定義済みの値かを判定する。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor
}

// Toggled はadminとeditorを反転したロールを返す。
func (r Role) Toggled() Role {
	if r == RoleAdmin {
		return RoleEditor
	}
	return RoleAdmin
}

// AuthorLabel は記事の著者スナップショットに表示する肩書きを返す。
func (r Role) AuthorLabel() string {
	if r == RoleAdmin {
		return "Partner"
	}
	return "Legal Consultant"
}

// User は管理画面を利用するユーザーを表す。
// PasswordHashはローカルディレクトリのユーザーのみが持ち、シリアライズされない。
type User struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Email        string    `json:"email" yaml:"email"`
	Role         Role      `json:"role" yaml:"role"`
	AvatarURL    string    `json:"avatar_url" yaml:"avatar_url"`
	PasswordHash string    `json:"-" yaml:"-"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// IsAdmin はユーザーが管理者かを判定する。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// SessionProvider はセッションを発行した認証経路を表す。
type SessionProvider string

const (
	// ProviderRemote はリモートIdP（PostgreSQL）で確立したセッション。
	ProviderRemote SessionProvider = "remote"
	// ProviderLocal はローカルディレクトリで確立したセッション。
	ProviderLocal SessionProvider = "local"
)

// Session はユーザーのログインセッションを表す。
// 1セッションにつきユーザーは1人のみ。
type Session struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Provider  SessionProvider `json:"provider"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expired はセッションが指定時刻時点で期限切れかを判定する。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
