package model

import "time"

// Author は保存時点の著者情報のスナップショット。
type Author struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Avatar string `json:"avatar" yaml:"avatar"`
	Role   string `json:"role" yaml:"role"`
}

// Article はLegal Update記事を表す。
// Contentは空でない段落の並びで、少なくとも1要素を持つ。
type Article struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Summary   string    `json:"summary" yaml:"summary"`
	Date      string    `json:"date" yaml:"date"`
	Category  string    `json:"category" yaml:"category"`
	Image     string    `json:"image" yaml:"image"`
	Content   []string  `json:"content" yaml:"content"`
	AuthorID  string    `json:"author_id,omitempty" yaml:"author_id,omitempty"`
	Author    *Author   `json:"author,omitempty" yaml:"author,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`

	// LocalOnly はリモートに同期されていないローカル保存記事であることを示す。
	LocalOnly bool `json:"local_only" yaml:"-"`
}

// Clone は記事のディープコピーを返す。
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	c := *a
	c.Content = append([]string(nil), a.Content...)
	if a.Author != nil {
		author := *a.Author
		c.Author = &author
	}
	return &c
}

// NewAuthorSnapshot はユーザーから著者スナップショットを生成する。
func NewAuthorSnapshot(u *User) *Author {
	if u == nil {
		return nil
	}
	return &Author{
		ID:     u.ID,
		Name:   u.Name,
		Avatar: u.AvatarURL,
		Role:   u.Role.AuthorLabel(),
	}
}
