package article

import (
	"strings"

	"github.com/hitoshi/lexcms/internal/model"
)

// FilterArticles はカテゴリの完全一致と、タイトル・概要に対する
// 大文字小文字を区別しない部分一致で記事を絞り込む。空の条件は無視する。
func FilterArticles(list []model.Article, category, query string) []model.Article {
	category = strings.TrimSpace(category)
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]model.Article, 0, len(list))
	for _, a := range list {
		if category != "" && a.Category != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Title), query) &&
			!strings.Contains(strings.ToLower(a.Summary), query) {
			continue
		}
		out = append(out, a)
	}
	return out
}
