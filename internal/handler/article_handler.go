package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lexcms/internal/article"
	"github.com/hitoshi/lexcms/internal/middleware"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/validation"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	ListArticles(ctx context.Context) []model.Article
	GetArticle(ctx context.Context, id string) (*model.Article, error)
	SaveArticle(ctx context.Context, actor *model.User, id string, in validation.ArticleInput) (*article.SaveResult, error)
	DeleteArticle(ctx context.Context, actor *model.User, id string) (*article.DeleteResult, error)
}

// ArticleHandler は記事関連のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(service ArticleServiceInterface) *ArticleHandler {
	return &ArticleHandler{service: service}
}

type articleResponse struct {
	Article *model.Article `json:"article"`
	Synced  bool           `json:"synced"`
	Warning string         `json:"warning,omitempty"`
}

type deleteResponse struct {
	Synced  bool   `json:"synced"`
	Warning string `json:"warning,omitempty"`
}

// List は公開中の記事一覧を返す。
// GET /api/articles?category=&q=
func (h *ArticleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list := article.FilterArticles(h.service.ListArticles(r.Context()), q.Get("category"), q.Get("q"))
	if list == nil {
		list = []model.Article{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Get は指定IDの記事を返す。
// GET /api/articles/{id}
func (h *ArticleHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetArticle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Create は記事を作成する。
// POST /api/articles
func (h *ArticleHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

// Update は記事を更新する。
// PUT /api/articles/{id}
func (h *ArticleHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, chi.URLParam(r, "id"))
}

func (h *ArticleHandler) save(w http.ResponseWriter, r *http.Request, id string) {
	var in validation.ArticleInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.service.SaveArticle(r.Context(), middleware.UserFromContext(r.Context()), id, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, articleResponse{
		Article: res.Article,
		Synced:  res.Synced,
		Warning: res.Warning,
	})
}

// Delete は記事を削除する。
// DELETE /api/articles/{id}
func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.DeleteArticle(r.Context(), middleware.UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Synced: res.Synced, Warning: res.Warning})
}
