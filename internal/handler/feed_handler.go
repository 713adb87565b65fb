package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hitoshi/lexcms/internal/model"
)

// articleDateLayout は記事の表示用日付（例: "OCTOBER 24, 2024"）の書式。
// time.Parseの月名照合は大文字小文字を区別しない。
const articleDateLayout = "January 2, 2006"

// ArticleLister は公開中の記事一覧を返す。
type ArticleLister interface {
	ListArticles(ctx context.Context) []model.Article
}

// FeedConfig はRSSフィードのチャンネル情報。
type FeedConfig struct {
	Title       string
	Description string
	// BaseURL は記事リンクの生成に使用する公開URL。
	BaseURL string
}

// FeedHandler は公開記事のRSS 2.0フィードを配信する。
type FeedHandler struct {
	articles ArticleLister
	config   FeedConfig
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(articles ArticleLister, config FeedConfig) *FeedHandler {
	if config.Title == "" {
		config.Title = "Legal Updates"
	}
	if config.Description == "" {
		config.Description = "Latest legal updates and insights"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &FeedHandler{articles: articles, config: config}
}

// ServeHTTP はRSSフィードを書き込む。
// GET /feed.xml
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	list := h.articles.ListArticles(r.Context())

	feed := &feeds.Feed{
		Title:       h.config.Title,
		Link:        &feeds.Link{Href: h.config.BaseURL + "/"},
		Description: h.config.Description,
		Items:       make([]*feeds.Item, 0, len(list)),
	}

	for _, a := range list {
		item := &feeds.Item{
			Title:       a.Title,
			Link:        &feeds.Link{Href: h.config.BaseURL + "/articles/" + a.ID},
			Description: a.Summary,
			Id:          a.ID,
			IsPermaLink: "false",
		}
		if a.Author != nil {
			item.Author = &feeds.Author{Name: a.Author.Name}
		}
		if published, ok := publishedAt(a); ok {
			item.Created = published
			if published.After(feed.Updated) {
				feed.Updated = published
			}
		}
		feed.Items = append(feed.Items, item)
	}

	// feeds.Itemはカテゴリを持たないため、変換後のRSS要素に設定する
	rss := (&feeds.Rss{Feed: feed}).RssFeed()
	for i, item := range rss.Items {
		item.Category = list[i].Category
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := feeds.WriteXML(rss, w); err != nil {
		slog.Error("failed to write feed", slog.String("error", err.Error()))
	}
}

// publishedAt は記事の公開日時を返す。表示用日付を解釈できない場合は作成日時を使う。
func publishedAt(a model.Article) (time.Time, bool) {
	if t, err := time.Parse(articleDateLayout, strings.TrimSpace(a.Date)); err == nil {
		return t, true
	}
	if !a.CreatedAt.IsZero() {
		return a.CreatedAt.UTC(), true
	}
	return time.Time{}, false
}
