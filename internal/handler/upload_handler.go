package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/lexcms/internal/media"
	"github.com/hitoshi/lexcms/internal/model"
)

// multipartOverhead はmultipartの境界やヘッダー分の余裕。
const multipartOverhead = 64 << 10

// MediaServiceInterface はアップロードハンドラーが必要とするサービスインターフェース。
type MediaServiceInterface interface {
	UploadArticleImage(ctx context.Context, f *media.File) (*media.Result, error)
	ImportFromURL(ctx context.Context, rawURL string) (*media.Result, error)
}

// UploadHandler は記事画像のアップロードハンドラー。
type UploadHandler struct {
	service  MediaServiceInterface
	maxBytes int64
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(service MediaServiceInterface, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = media.DefaultMaxBytes
	}
	return &UploadHandler{service: service, maxBytes: maxBytes}
}

type importRequest struct {
	URL string `json:"url"`
}

// UploadImage は記事のカバー画像をアップロードする。
// POST /api/uploads/images (multipart: file)
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	f, ok := readUploadedFile(w, r, h.maxBytes)
	if !ok {
		return
	}
	res, err := h.service.UploadArticleImage(r.Context(), f)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Import は外部URLの画像を取り込む。
// POST /api/uploads/import
func (h *UploadHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("url is required"))
		return
	}
	res, err := h.service.ImportFromURL(r.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// readUploadedFile はmultipartのfileフィールドを読み込む。
// 失敗時はエラーレスポンスを書き込みfalseを返す。
func readUploadedFile(w http.ResponseWriter, r *http.Request, maxBytes int64) (*media.File, bool) {
	limit := maxBytes + multipartOverhead
	if r.ContentLength > limit {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(maxBytes))
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(maxBytes))
			return nil, false
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return nil, false
	}

	return &media.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}
