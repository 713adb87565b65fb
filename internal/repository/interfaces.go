// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/lexcms/internal/model"
)

// ErrNotFound は更新・削除対象のレコードが存在しない場合に返される。
var ErrNotFound = errors.New("record not found")

// ErrDuplicateEmail はメールアドレスが既に登録済みの場合に返される。
var ErrDuplicateEmail = errors.New("email already registered")

// ArticleRepository はLegal Update記事の永続化インターフェース。
type ArticleRepository interface {
	// ListOrderedByCreatedDesc は全記事を作成日時の降順で取得する。
	ListOrderedByCreatedDesc(ctx context.Context) ([]model.Article, error)

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Article, error)

	// Upsert は記事を挿入し、同一IDが既に存在する場合は更新する。
	// 更新時はcreated_atを保持する。
	Upsert(ctx context.Context, article *model.Article) error

	// DeleteByID は指定IDの記事を削除する。存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}

// UserRepository はリモートIdPが管理するユーザーの永続化インターフェース。
type UserRepository interface {
	// List は全ユーザーを作成日時の昇順で取得する。
	List(ctx context.Context) ([]model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// パスワードハッシュを含む。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーの表示名・ロール・アバターを更新する。
	// 存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
