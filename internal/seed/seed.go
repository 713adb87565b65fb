// Package seed は組み込みの記事データとデモユーザーを提供する。
package seed

import (
	_ "embed"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/hitoshi/lexcms/internal/model"
)

//go:embed seed.yaml
var seedYAML []byte

type demoUser struct {
	model.User `yaml:",inline"`
	Password   string `yaml:"password"`
}

type document struct {
	Articles   []model.Article `yaml:"articles"`
	Users      []demoUser      `yaml:"users"`
	Categories []string        `yaml:"categories"`
}

// Data は読み込み済みのシードデータ。読み取り専用で、取得のたびにコピーを返す。
type Data struct {
	articles   []model.Article
	users      []model.User
	categories []string
}

// Load は組み込みのseed.yamlを読み込み、デモユーザーのパスワードをbcryptでハッシュ化する。
func Load() (*Data, error) {
	return parse(seedYAML, bcrypt.DefaultCost)
}

func parse(raw []byte, cost int) (*Data, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}

	d := &Data{
		articles:   doc.Articles,
		categories: doc.Categories,
		users:      make([]model.User, 0, len(doc.Users)),
	}
	for _, du := range doc.Users {
		if !du.Role.Valid() {
			return nil, fmt.Errorf("seed user %s has invalid role %q", du.ID, du.Role)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(du.Password), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash seed password for %s: %w", du.ID, err)
		}
		u := du.User
		u.PasswordHash = string(hash)
		d.users = append(d.users, u)
	}
	return d, nil
}

// Articles は組み込み記事のディープコピーを返す。
func (d *Data) Articles() []model.Article {
	out := make([]model.Article, len(d.articles))
	for i := range d.articles {
		out[i] = *d.articles[i].Clone()
	}
	return out
}

// Users はデモユーザーのコピーを返す。PasswordHashを含む。
func (d *Data) Users() []model.User {
	return append([]model.User(nil), d.users...)
}

// Categories は記事カテゴリ（業務分野）の一覧を返す。
func (d *Data) Categories() []string {
	return append([]string(nil), d.categories...)
}
