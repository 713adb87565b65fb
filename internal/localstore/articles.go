package localstore

import (
	"context"
	"slices"
	"sort"

	"github.com/hitoshi/lexcms/internal/model"
)

// ArticleStore はリモート未同期の記事と、一覧から除外した記事IDを保持する。
type ArticleStore struct {
	s *Store
}

// Articles は記事用のアクセサを返す。
func (s *Store) Articles() *ArticleStore {
	return &ArticleStore{s: s}
}

func (a *ArticleStore) load(ctx context.Context) ([]model.Article, error) {
	var list []model.Article
	if _, err := a.s.get(ctx, keyArticles, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (a *ArticleStore) loadHidden(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := a.s.get(ctx, keyHiddenIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// List はローカル保存記事を更新日時の降順で返す。全要素にLocalOnlyが付く。
func (a *ArticleStore) List(ctx context.Context) ([]model.Article, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	list, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].LocalOnly = true
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// Find は指定IDのローカル保存記事を返す。見つからない場合はnilを返す。
func (a *ArticleStore) Find(ctx context.Context, id string) (*model.Article, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	list, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			found := list[i]
			found.LocalOnly = true
			return &found, nil
		}
	}
	return nil, nil
}

// Put は記事をローカルに保存する。同一IDがあれば置き換える。
// 保存した記事のIDは非表示リストから外す。
func (a *ArticleStore) Put(ctx context.Context, article *model.Article) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	list, err := a.load(ctx)
	if err != nil {
		return err
	}

	stored := *article.Clone()
	stored.LocalOnly = true

	replaced := false
	for i := range list {
		if list[i].ID == stored.ID {
			list[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		list = append([]model.Article{stored}, list...)
	}
	if err := a.s.put(ctx, keyArticles, list); err != nil {
		return err
	}

	hidden, err := a.loadHidden(ctx)
	if err != nil {
		return err
	}
	if idx := slices.Index(hidden, stored.ID); idx >= 0 {
		hidden = slices.Delete(hidden, idx, idx+1)
		return a.s.put(ctx, keyHiddenIDs, hidden)
	}
	return nil
}

// Drop はローカル保存記事を削除する。存在しない場合は何もしない。
func (a *ArticleStore) Drop(ctx context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.drop(ctx, id)
}

func (a *ArticleStore) drop(ctx context.Context, id string) error {
	list, err := a.load(ctx)
	if err != nil {
		return err
	}
	n := len(list)
	list = slices.DeleteFunc(list, func(x model.Article) bool { return x.ID == id })
	if len(list) == n {
		return nil
	}
	return a.s.put(ctx, keyArticles, list)
}

// Hide は記事IDを表示一覧から除外し、ローカル保存記事があれば削除する。
func (a *ArticleStore) Hide(ctx context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if err := a.drop(ctx, id); err != nil {
		return err
	}

	hidden, err := a.loadHidden(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(hidden, id) {
		return nil
	}
	return a.s.put(ctx, keyHiddenIDs, append(hidden, id))
}

// HiddenIDs は表示一覧から除外する記事IDの集合を返す。
func (a *ArticleStore) HiddenIDs(ctx context.Context) (map[string]bool, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	ids, err := a.loadHidden(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
