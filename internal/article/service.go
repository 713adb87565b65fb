// Package article はLegal Update記事の一覧・保存・削除を提供する。
//
// リモート（PostgreSQL）とローカルストアの切り替えとフォールバックの方針は
// このパッケージだけが持つ。リモートが未設定の場合はローカルモードで動作する。
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/lexcms/internal/metrics"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/permission"
	"github.com/hitoshi/lexcms/internal/repository"
	"github.com/hitoshi/lexcms/internal/security"
	"github.com/hitoshi/lexcms/internal/validation"
)

// 劣化時にレスポンスへ含める警告
const (
	WarningSavedLocally  = "Saved locally, not synced"
	WarningDeleteNotSync = "Removed from view, remote delete failed"
)

// LocalStore はリモートに同期できなかった記事と非表示IDを保持するローカルストア。
type LocalStore interface {
	List(ctx context.Context) ([]model.Article, error)
	Find(ctx context.Context, id string) (*model.Article, error)
	Put(ctx context.Context, article *model.Article) error
	Drop(ctx context.Context, id string) error
	Hide(ctx context.Context, id string) error
	HiddenIDs(ctx context.Context) (map[string]bool, error)
}

// SeedSource はリモートが空または利用できない場合に表示する組み込み記事。
type SeedSource interface {
	Articles() []model.Article
}

// MemberFinder は著者として指定されたユーザーを解決する。
type MemberFinder interface {
	FindMember(ctx context.Context, id string) (*model.User, error)
}

// SaveResult は記事保存の結果。
type SaveResult struct {
	Article *model.Article
	Created bool
	// Synced はリモートに保存できた場合にtrueになる。
	Synced  bool
	Warning string
}

// DeleteResult は記事削除の結果。
type DeleteResult struct {
	Synced  bool
	Warning string
}

// Service は記事のサービス層。
type Service struct {
	remote    repository.ArticleRepository
	local     LocalStore
	seed      SeedSource
	members   MemberFinder
	sanitizer security.ContentSanitizer
	validator *validation.Validator
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。remoteがnilの場合はローカルモードになる。
func NewService(
	remote repository.ArticleRepository,
	local LocalStore,
	seed SeedSource,
	members MemberFinder,
	sanitizer security.ContentSanitizer,
	validator *validation.Validator,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		remote:    remote,
		local:     local,
		seed:      seed,
		members:   members,
		sanitizer: sanitizer,
		validator: validator,
		metrics:   collector,
		now:       time.Now,
	}
}

// RemoteEnabled はリモートリポジトリが設定されているかを返す。
func (s *Service) RemoteEnabled() bool {
	return s.remote != nil
}

// ListArticles は表示用の記事一覧を返す。
//
// リモートの一覧が取得できないか空の場合は組み込み記事を基にする。
// ローカル保存記事は同一IDを置き換え、新規IDは先頭に追加する。
// 非表示IDは除外する。失敗しても空の一覧は返さない。
func (s *Service) ListArticles(ctx context.Context) []model.Article {
	base := s.baseList(ctx)

	local, err := s.local.List(ctx)
	if err != nil {
		slog.Warn("failed to read local articles",
			slog.String("operation", "list_articles"),
			slog.String("error", err.Error()),
		)
	}

	index := make(map[string]int, len(base))
	for i := range base {
		index[base[i].ID] = i
	}
	var prepend []model.Article
	for _, a := range local {
		if i, ok := index[a.ID]; ok {
			base[i] = a
			continue
		}
		prepend = append(prepend, a)
	}
	list := append(prepend, base...)

	hidden, err := s.local.HiddenIDs(ctx)
	if err != nil {
		slog.Warn("failed to read hidden article ids",
			slog.String("operation", "list_articles"),
			slog.String("error", err.Error()),
		)
		return list
	}
	visible := list[:0]
	for _, a := range list {
		if !hidden[a.ID] {
			visible = append(visible, a)
		}
	}
	return visible
}

func (s *Service) baseList(ctx context.Context) []model.Article {
	if s.remote == nil {
		return s.seed.Articles()
	}
	articles, err := s.remote.ListOrderedByCreatedDesc(ctx)
	if err != nil {
		s.metrics.RecordRemoteFailure("list_articles")
		slog.Warn("remote article list failed, using seed articles",
			slog.String("operation", "list_articles"),
			slog.String("error", err.Error()),
		)
		return s.seed.Articles()
	}
	if len(articles) == 0 {
		return s.seed.Articles()
	}
	return articles
}

// GetArticle は表示一覧から指定IDの記事を返す。
func (s *Service) GetArticle(ctx context.Context, id string) (*model.Article, error) {
	a := s.findVisible(ctx, id)
	if a == nil {
		return nil, model.NewArticleNotFoundError(id)
	}
	return a, nil
}

func (s *Service) findVisible(ctx context.Context, id string) *model.Article {
	if id == "" {
		return nil
	}
	for _, a := range s.ListArticles(ctx) {
		if a.ID == id {
			return a.Clone()
		}
	}
	return nil
}

// SaveArticle は記事を作成または更新する。idが空の場合は新規作成する。
//
// 権限確認、サニタイズ、スキーマ検証、著者の決定の順に処理し、リモートに保存する。
// リモートへの保存に失敗した場合はローカルに保存し、警告付きで成功として返す。
func (s *Service) SaveArticle(ctx context.Context, actor *model.User, id string, in validation.ArticleInput) (*SaveResult, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}

	var existing *model.Article
	if id != "" {
		existing = s.findVisible(ctx, id)
		if existing == nil {
			return nil, model.NewArticleNotFoundError(id)
		}
		if !permission.CanEdit(actor, existing) {
			return nil, model.NewPermissionDeniedError("You can only edit your own articles")
		}
	}

	in.Title = s.sanitizer.SanitizeText(in.Title)
	in.Summary = s.sanitizer.SanitizeText(in.Summary)
	in.Date = s.sanitizer.SanitizeText(in.Date)
	in.Category = s.sanitizer.SanitizeText(in.Category)
	in.Content = security.SanitizeParagraphs(s.sanitizer, in.Content)

	if err := s.validator.Article(&in); err != nil {
		return nil, err
	}

	authorID, author, err := s.resolveAuthor(ctx, actor, existing, in.AuthorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := &model.Article{
		ID:        id,
		Title:     in.Title,
		Summary:   in.Summary,
		Date:      in.Date,
		Category:  in.Category,
		Image:     in.Image,
		Content:   in.Content,
		AuthorID:  authorID,
		Author:    author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil && !existing.CreatedAt.IsZero() {
		a.CreatedAt = existing.CreatedAt
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	result := &SaveResult{Created: existing == nil}

	if s.remote != nil {
		err := s.remote.Upsert(ctx, a)
		if err == nil {
			result.Article = s.afterRemoteSave(ctx, a)
			result.Synced = true
			return result, nil
		}
		s.metrics.RecordRemoteFailure("save_article")
		slog.Warn("remote article save failed, saving locally",
			slog.String("operation", "save_article"),
			slog.String("article_id", a.ID),
			slog.String("error", err.Error()),
		)
		result.Warning = WarningSavedLocally
	}

	if err := s.local.Put(ctx, a); err != nil {
		return nil, fmt.Errorf("記事のローカル保存に失敗しました: %w", err)
	}
	if s.remote != nil {
		s.metrics.RecordFallbackWrite("save_article")
	}
	a.LocalOnly = true
	result.Article = a
	return result, nil
}

// afterRemoteSave はローカルの未同期コピーを破棄し、リモートから記事を読み直す。
func (s *Service) afterRemoteSave(ctx context.Context, a *model.Article) *model.Article {
	if err := s.local.Drop(ctx, a.ID); err != nil {
		slog.Warn("failed to drop local article copy",
			slog.String("operation", "save_article"),
			slog.String("article_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
	saved, err := s.remote.FindByID(ctx, a.ID)
	if err != nil || saved == nil {
		if err != nil {
			slog.Warn("failed to re-read saved article",
				slog.String("operation", "save_article"),
				slog.String("article_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
		return a
	}
	return saved
}

// resolveAuthor は保存する記事の著者を決める。
//
// 管理者は既知のユーザーを著者に指定できる。指定がなければ既存記事の著者を維持する。
// 管理者以外はフォームの指定に関わらず本人が著者になる。
func (s *Service) resolveAuthor(ctx context.Context, actor *model.User, existing *model.Article, requested string) (string, *model.Author, error) {
	if !actor.IsAdmin() {
		return actor.ID, model.NewAuthorSnapshot(actor), nil
	}

	if requested == "" || requested == actor.ID {
		if requested == "" && existing != nil && (existing.AuthorID != "" || existing.Author != nil) {
			return existing.AuthorID, existing.Clone().Author, nil
		}
		return actor.ID, model.NewAuthorSnapshot(actor), nil
	}

	member, err := s.members.FindMember(ctx, requested)
	if err != nil {
		return "", nil, fmt.Errorf("著者の取得に失敗しました: %w", err)
	}
	if member == nil {
		return "", nil, model.NewValidationError("Author must be a known user")
	}
	return member.ID, model.NewAuthorSnapshot(member), nil
}

// DeleteArticle は記事を表示一覧から即座に除外し、その後リモートから削除する。
// リモート削除に失敗しても除外は取り消さず、警告付きで成功として返す。
func (s *Service) DeleteArticle(ctx context.Context, actor *model.User, id string) (*DeleteResult, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}

	existing := s.findVisible(ctx, id)
	if existing == nil {
		return nil, model.NewArticleNotFoundError(id)
	}
	if !permission.CanEdit(actor, existing) {
		return nil, model.NewPermissionDeniedError("You can only delete your own articles")
	}

	if err := s.local.Hide(ctx, id); err != nil {
		return nil, fmt.Errorf("記事の非表示化に失敗しました: %w", err)
	}

	if s.remote == nil {
		return &DeleteResult{}, nil
	}

	err := s.remote.DeleteByID(ctx, id)
	if err == nil || errors.Is(err, repository.ErrNotFound) {
		return &DeleteResult{Synced: true}, nil
	}

	s.metrics.RecordRemoteFailure("delete_article")
	slog.Warn("remote article delete failed, kept removed from view",
		slog.String("operation", "delete_article"),
		slog.String("article_id", id),
		slog.String("error", err.Error()),
	)
	return &DeleteResult{Warning: WarningDeleteNotSync}, nil
}
