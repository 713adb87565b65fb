// Package media は記事画像とアバター画像のアップロードを提供する。
//
// オブジェクトストレージが未設定の場合や記事画像のアップロードに失敗した場合は、
// 画像をdata URLとして埋め込む。
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/hitoshi/lexcms/internal/metrics"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/security"
)

// バケット名
const (
	BucketArticleImages = "blog-images"
	BucketAvatars       = "avatars"
)

// DefaultMaxBytes はアップロードできる画像の最大サイズ。
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// WarningInlineImage はストレージへのアップロードに失敗しdata URLで代替した場合の警告。
const WarningInlineImage = "Upload failed, image embedded inline"

// ObjectStore は画像を保存するオブジェクトストレージ。
type ObjectStore interface {
	Put(ctx context.Context, bucket, name string, r io.Reader, size int64, contentType string) error
	PublicURL(bucket, name string) string
}

// File はアップロードされたファイル。
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result はアップロードの結果。
type Result struct {
	URL string `json:"url"`
	// Fallback はdata URLで代替した場合にtrueになる。
	Fallback bool   `json:"fallback"`
	Warning  string `json:"warning,omitempty"`
}

// Service は画像アップロードのサービス層。
type Service struct {
	store    ObjectStore
	client   *http.Client
	validate func(rawURL string) (*url.URL, error)
	maxBytes int64
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewService はServiceを生成する。storeがnilの場合は常にdata URLを返す。
// clientは外部画像の取得に使うHTTPクライアントで、guardのClientを渡す。
func NewService(store ObjectStore, guard *security.SSRFGuard, client *http.Client, maxBytes int64, collector metrics.MetricsCollector) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		store:    store,
		client:   client,
		validate: guard.Validate,
		maxBytes: maxBytes,
		metrics:  collector,
		now:      time.Now,
	}
}

// UploadArticleImage は記事のカバー画像を保存する。
// 保存に失敗した場合はdata URLで代替し、警告を返す。
func (s *Service) UploadArticleImage(ctx context.Context, f *File) (*Result, error) {
	contentType, err := s.check(f)
	if err != nil {
		return nil, err
	}

	if s.store == nil {
		s.metrics.RecordUpload("inline")
		return &Result{URL: dataURL(contentType, f.Data), Fallback: true}, nil
	}

	name := uuid.New().String() + extension(contentType, f.Name)
	if err := s.store.Put(ctx, BucketArticleImages, name, bytes.NewReader(f.Data), int64(len(f.Data)), contentType); err != nil {
		s.metrics.RecordRemoteFailure("upload_image")
		s.metrics.RecordUpload("inline")
		slog.Warn("image upload failed, embedding inline",
			slog.String("operation", "upload_image"),
			slog.String("error", err.Error()),
		)
		return &Result{URL: dataURL(contentType, f.Data), Fallback: true, Warning: WarningInlineImage}, nil
	}

	s.metrics.RecordUpload("object_store")
	return &Result{URL: s.store.PublicURL(BucketArticleImages, name)}, nil
}

// UploadAvatar はユーザーのアバター画像を保存し、公開URLを返す。
// ストレージが設定されている場合、保存の失敗はエラーにする。
func (s *Service) UploadAvatar(ctx context.Context, userID string, f *File) (*Result, error) {
	contentType, err := s.check(f)
	if err != nil {
		return nil, err
	}

	if s.store == nil {
		s.metrics.RecordUpload("inline")
		return &Result{URL: dataURL(contentType, f.Data), Fallback: true}, nil
	}

	name := fmt.Sprintf("avatar_%s_%d%s", userID, s.now().Unix(), extension(contentType, f.Name))
	if err := s.store.Put(ctx, BucketAvatars, name, bytes.NewReader(f.Data), int64(len(f.Data)), contentType); err != nil {
		s.metrics.RecordRemoteFailure("upload_avatar")
		slog.Warn("avatar upload failed",
			slog.String("operation", "upload_avatar"),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUploadFailedError("storage unavailable")
	}

	s.metrics.RecordUpload("object_store")
	return &Result{URL: s.store.PublicURL(BucketAvatars, name)}, nil
}

// ImportFromURL は外部の画像URLを取得し、記事画像として保存する。
func (s *Service) ImportFromURL(ctx context.Context, rawURL string) (*Result, error) {
	u, err := s.validate(rawURL)
	if err != nil {
		if errors.Is(err, security.ErrBlockedDestination) {
			slog.Warn("image import blocked",
				slog.String("operation", "import_image"),
				slog.String("url", rawURL),
			)
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("image import failed",
			slog.String("operation", "import_image"),
			slog.String("url", u.String()),
			slog.String("error", err.Error()),
		)
		return nil, model.NewImportFailedError("request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewImportFailedError(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, model.NewImportFailedError("failed to read response")
	}

	return s.UploadArticleImage(ctx, &File{
		Name:        path.Base(u.Path),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	})
}

// check はサイズとMIMEタイプを検査し、保存に使うMIMEタイプを返す。
// 宣言されたタイプと内容から判定したタイプの両方が画像である必要がある。
func (s *Service) check(f *File) (string, error) {
	if int64(len(f.Data)) > s.maxBytes {
		return "", model.NewFileTooLargeError(s.maxBytes)
	}

	declared := strings.TrimSpace(strings.ToLower(f.ContentType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return "", model.NewInvalidFileTypeError(declared)
	}

	detected := mimetype.Detect(f.Data)
	sniffed := detected.String()
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = strings.TrimSpace(sniffed[:i])
	}
	// SVGはスクリプトを埋め込めるため画像として扱わない
	if !strings.HasPrefix(sniffed, "image/") || detected.Is("image/svg+xml") {
		return "", model.NewInvalidFileTypeError(sniffed)
	}
	return sniffed, nil
}

var extensions = map[string]string{
	"image/png":                ".png",
	"image/jpeg":               ".jpg",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/bmp":                ".bmp",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
}

// extension はMIMEタイプから拡張子を決める。不明な場合はファイル名の拡張子を使う。
func extension(contentType, name string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	if ext := strings.ToLower(path.Ext(name)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".img"
}

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
