package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/lexcms/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const articleColumns = `id, title, summary, date, category, image, content, author_id, author, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanArticle は1行分の記事をスキャンする。contentとauthorはJSONBからデコードする。
func scanArticle(row rowScanner) (*model.Article, error) {
	a := &model.Article{}
	var (
		content  []byte
		authorID sql.NullString
		author   []byte
	)
	if err := row.Scan(
		&a.ID, &a.Title, &a.Summary, &a.Date, &a.Category, &a.Image,
		&content, &authorID, &author, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(content, &a.Content); err != nil {
		return nil, fmt.Errorf("failed to decode article content: %w", err)
	}
	a.AuthorID = authorID.String
	if len(author) > 0 && string(author) != "null" {
		a.Author = &model.Author{}
		if err := json.Unmarshal(author, a.Author); err != nil {
			return nil, fmt.Errorf("failed to decode article author: %w", err)
		}
	}
	return a, nil
}

// ListOrderedByCreatedDesc は全記事を作成日時の降順で取得する。
func (r *PostgresArticleRepo) ListOrderedByCreatedDesc(ctx context.Context) ([]model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return articles, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	a, err := scanArticle(r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find article by ID: %w", err)
	}
	return a, nil
}

// Upsert は記事を挿入し、同一IDが既に存在する場合は更新する。
func (r *PostgresArticleRepo) Upsert(ctx context.Context, article *model.Article) error {
	content, err := json.Marshal(article.Content)
	if err != nil {
		return fmt.Errorf("failed to encode article content: %w", err)
	}

	// lib/pqは[]byteをbyteaとして送るため、JSONBには文字列で渡す
	var author sql.NullString
	if article.Author != nil {
		b, err := json.Marshal(article.Author)
		if err != nil {
			return fmt.Errorf("failed to encode article author: %w", err)
		}
		author = sql.NullString{String: string(b), Valid: true}
	}

	var authorID sql.NullString
	if article.AuthorID != "" {
		authorID = sql.NullString{String: article.AuthorID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO articles (`+articleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			date = EXCLUDED.date,
			category = EXCLUDED.category,
			image = EXCLUDED.image,
			content = EXCLUDED.content,
			author_id = EXCLUDED.author_id,
			author = EXCLUDED.author,
			updated_at = EXCLUDED.updated_at`,
		article.ID, article.Title, article.Summary, article.Date, article.Category, article.Image,
		string(content), authorID, author, article.CreatedAt, article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert article: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの記事を削除する。存在しない場合はErrNotFoundを返す。
func (r *PostgresArticleRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
