package localstore

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/lexcms/internal/model"
)

// userRecord はローカルユーザーの保存形式。
// model.UserはPasswordHashをシリアライズしないため別の型で保持する。
type userRecord struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         model.Role `json:"role"`
	AvatarURL    string     `json:"avatar_url"`
	PasswordHash string     `json:"password_hash"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toRecord(u *model.User) userRecord {
	return userRecord{
		ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, AvatarURL: u.AvatarURL,
		PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
	}
}

func (r userRecord) toUser() *model.User {
	return &model.User{
		ID: r.ID, Name: r.Name, Email: r.Email, Role: r.Role, AvatarURL: r.AvatarURL,
		PasswordHash: r.PasswordHash, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

// UserStore はローカルで作成・変更されたユーザーの一覧を保持する。
type UserStore struct {
	s *Store
}

// Users はユーザー用のアクセサを返す。
func (s *Store) Users() *UserStore {
	return &UserStore{s: s}
}

func (u *UserStore) load(ctx context.Context) ([]userRecord, error) {
	var list []userRecord
	if _, err := u.s.get(ctx, keyUsers, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// List はローカルユーザーを保存順に返す。
func (u *UserStore) List(ctx context.Context) ([]model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	list, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]model.User, len(list))
	for i, r := range list {
		users[i] = *r.toUser()
	}
	return users, nil
}

// FindByID は指定IDのローカルユーザーを返す。見つからない場合はnilを返す。
func (u *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	list, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		if r.ID == id {
			return r.toUser(), nil
		}
	}
	return nil, nil
}

// FindByEmail はメールアドレスを前後の空白を除き大文字小文字を区別せずに照合する。
func (u *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	list, err := u.load(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(email)
	for _, r := range list {
		if strings.EqualFold(strings.TrimSpace(r.Email), want) {
			return r.toUser(), nil
		}
	}
	return nil, nil
}

// Put はユーザーを保存する。同一IDがあれば置き換える。
func (u *UserStore) Put(ctx context.Context, user *model.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	list, err := u.load(ctx)
	if err != nil {
		return err
	}
	rec := toRecord(user)
	if idx := slices.IndexFunc(list, func(r userRecord) bool { return r.ID == user.ID }); idx >= 0 {
		// パスワードハッシュ未指定の更新では既存の値を保持する
		if rec.PasswordHash == "" {
			rec.PasswordHash = list[idx].PasswordHash
		}
		list[idx] = rec
	} else {
		list = append(list, rec)
	}
	if err := u.s.put(ctx, keyUsers, list); err != nil {
		return err
	}
	return u.setRemoved(ctx, user.ID, false)
}

// Delete は指定IDのユーザーを削除し、削除済みとして記録する。
// 組み込みのデモユーザーはローカル一覧に無くても削除済みとして扱われる。
func (u *UserStore) Delete(ctx context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	list, err := u.load(ctx)
	if err != nil {
		return err
	}
	n := len(list)
	list = slices.DeleteFunc(list, func(r userRecord) bool { return r.ID == id })
	if len(list) != n {
		if err := u.s.put(ctx, keyUsers, list); err != nil {
			return err
		}
	}
	return u.setRemoved(ctx, id, true)
}

// RemovedIDs は削除済みとして記録されたユーザーIDの集合を返す。
func (u *UserStore) RemovedIDs(ctx context.Context) (map[string]bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	var ids []string
	if _, err := u.s.get(ctx, keyRemovedUsers, &ids); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (u *UserStore) setRemoved(ctx context.Context, id string, removed bool) error {
	var ids []string
	if _, err := u.s.get(ctx, keyRemovedUsers, &ids); err != nil {
		return err
	}
	idx := slices.Index(ids, id)
	switch {
	case removed && idx < 0:
		ids = append(ids, id)
	case !removed && idx >= 0:
		ids = slices.Delete(ids, idx, idx+1)
	default:
		return nil
	}
	return u.s.put(ctx, keyRemovedUsers, ids)
}
