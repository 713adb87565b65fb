package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/lexcms/internal/model"
)

// LocalUserStore はローカルで作成・変更されたユーザーを保持するストア。
type LocalUserStore interface {
	List(ctx context.Context) ([]model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	Put(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
	RemovedIDs(ctx context.Context) (map[string]bool, error)
}

// LocalDirectory は組み込みのデモユーザーとローカルユーザーを合わせたユーザー一覧。
// リモートIdPに到達できない場合のログインとチーム管理に使う。
type LocalDirectory struct {
	demo  []model.User
	store LocalUserStore
}

// NewLocalDirectory はLocalDirectoryを生成する。
func NewLocalDirectory(demo []model.User, store LocalUserStore) *LocalDirectory {
	return &LocalDirectory{demo: demo, store: store}
}

// Users はユーザー一覧を返す。
//
// デモユーザーを先頭に、ローカルユーザーを追加順に並べる。
// 同じIDのローカルユーザーはデモユーザーを置き換え、削除済みのIDは除外する。
// メールアドレスが既出のローカルユーザーは追加しない。
func (d *LocalDirectory) Users(ctx context.Context) ([]model.User, error) {
	local, err := d.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local users: %w", err)
	}
	removed, err := d.store.RemovedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list removed users: %w", err)
	}

	overrides := make(map[string]model.User, len(local))
	for _, u := range local {
		overrides[u.ID] = u
	}

	users := make([]model.User, 0, len(d.demo)+len(local))
	emails := make(map[string]bool)
	for _, u := range d.demo {
		if removed[u.ID] {
			continue
		}
		if o, ok := overrides[u.ID]; ok {
			if o.PasswordHash == "" {
				o.PasswordHash = u.PasswordHash
			}
			u = o
			delete(overrides, u.ID)
		}
		users = append(users, u)
		emails[normalizeEmail(u.Email)] = true
	}
	for _, u := range local {
		if _, pending := overrides[u.ID]; !pending || removed[u.ID] {
			continue
		}
		if emails[normalizeEmail(u.Email)] {
			continue
		}
		users = append(users, u)
		emails[normalizeEmail(u.Email)] = true
	}
	return users, nil
}

// FindByID は指定IDのユーザーを返す。見つからない場合はnilを返す。
func (d *LocalDirectory) FindByID(ctx context.Context, id string) (*model.User, error) {
	users, err := d.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// FindByEmail はメールアドレスを前後の空白を除き大文字小文字を区別せずに照合する。
func (d *LocalDirectory) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	users, err := d.Users(ctx)
	if err != nil {
		return nil, err
	}
	want := normalizeEmail(email)
	for i := range users {
		if normalizeEmail(users[i].Email) == want {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Authenticate はメールアドレスとパスワードが一致するユーザーを返す。
// 一致しない場合はnilを返す。
func (d *LocalDirectory) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := d.FindByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}
	return u, nil
}

// Save はユーザーをローカルに保存する。
func (d *LocalDirectory) Save(ctx context.Context, user *model.User) error {
	if err := d.store.Put(ctx, user); err != nil {
		return fmt.Errorf("failed to save local user: %w", err)
	}
	return nil
}

// Remove はユーザーをローカル一覧から除外する。
func (d *LocalDirectory) Remove(ctx context.Context, id string) error {
	if err := d.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to remove local user: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
