package handler

import (
	"net/http"
)

// HealthHandler は稼働状態を返す。
type HealthHandler struct {
	remoteEnabled func() bool
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(remoteEnabled func() bool) *HealthHandler {
	return &HealthHandler{remoteEnabled: remoteEnabled}
}

type healthResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Remote bool   `json:"remote"`
}

// ServeHTTP はヘルスチェック結果を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	remote := h.remoteEnabled != nil && h.remoteEnabled()
	mode := "local"
	if remote {
		mode = "remote"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Mode: mode, Remote: remote})
}

// CategoriesHandler は記事カテゴリーの一覧を返す。
// GET /api/categories
func CategoriesHandler(categories []string) http.HandlerFunc {
	list := append([]string{}, categories...)
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, list)
	}
}
