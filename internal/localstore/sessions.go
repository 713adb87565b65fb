package localstore

import (
	"context"
	"time"

	"github.com/hitoshi/lexcms/internal/model"
)

// SessionRecord はローカルにキャッシュしたセッションとユーザー情報。
// リモートIdPに到達できない間の資格情報キャッシュとして使う。
type SessionRecord struct {
	Session model.Session `json:"session"`
	User    model.User    `json:"user"`
}

// SessionStore はセッションのローカルキャッシュ。
type SessionStore struct {
	s   *Store
	now func() time.Time
}

// Sessions はセッション用のアクセサを返す。
func (s *Store) Sessions() *SessionStore {
	return &SessionStore{s: s, now: time.Now}
}

// Save はセッションとユーザー情報を保存する。
func (ss *SessionStore) Save(ctx context.Context, session *model.Session, user *model.User) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	rec := SessionRecord{Session: *session, User: *user}
	rec.User.PasswordHash = ""
	return ss.s.put(ctx, keySessionPrefix+session.ID, rec)
}

// Find は指定IDのセッションを返す。存在しないか期限切れの場合はnilを返す。
func (ss *SessionStore) Find(ctx context.Context, id string) (*SessionRecord, error) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	var rec SessionRecord
	ok, err := ss.s.get(ctx, keySessionPrefix+id, &rec)
	if err != nil || !ok {
		return nil, err
	}
	if rec.Session.Expired(ss.now()) {
		return nil, nil
	}
	return &rec, nil
}

// Delete は指定IDのセッションを削除する。
func (ss *SessionStore) Delete(ctx context.Context, id string) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	return ss.s.remove(ctx, keySessionPrefix+id)
}

// DeleteByUserID は指定ユーザーのセッションをすべて削除する。
func (ss *SessionStore) DeleteByUserID(ctx context.Context, userID string) error {
	return ss.deleteWhere(ctx, func(rec SessionRecord) bool {
		return rec.Session.UserID == userID
	})
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (ss *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := ss.now()
	var n int64
	err := ss.deleteWhere(ctx, func(rec SessionRecord) bool {
		if rec.Session.Expired(now) {
			n++
			return true
		}
		return false
	})
	return n, err
}

func (ss *SessionStore) deleteWhere(ctx context.Context, match func(SessionRecord) bool) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()

	keys, err := ss.s.keysWithPrefix(ctx, keySessionPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		var rec SessionRecord
		ok, err := ss.s.get(ctx, key, &rec)
		if err != nil {
			return err
		}
		if !ok || !match(rec) {
			continue
		}
		if err := ss.s.remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
