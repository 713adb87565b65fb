// Package permission は記事とチームに対する操作権限を判定する。
package permission

import "github.com/hitoshi/lexcms/internal/model"

// CanEdit はactorが記事を編集・削除できるかを判定する。
//
// 管理者は全記事を編集できる。それ以外は著者IDの一致で判定し、
// 著者IDを持たない旧形式の記事に限り著者名の一致で判定する。
func CanEdit(actor *model.User, article *model.Article) bool {
	if actor == nil || article == nil {
		return false
	}
	if actor.Role == model.RoleAdmin {
		return true
	}
	if article.AuthorID != "" {
		return actor.ID != "" && actor.ID == article.AuthorID
	}
	return article.Author != nil && article.Author.Name != "" && actor.Name == article.Author.Name
}

// CanManageTeam はactorがメンバーの招待・ロール変更・削除をできるかを判定する。
func CanManageTeam(actor *model.User) bool {
	return actor.IsAdmin()
}

// CanEditProfile はactorが対象ユーザーの表示名とアバターを変更できるかを判定する。
func CanEditProfile(actor *model.User, targetID string) bool {
	if actor == nil {
		return false
	}
	return actor.Role == model.RoleAdmin || (actor.ID != "" && actor.ID == targetID)
}
