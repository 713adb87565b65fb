package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/lexcms/internal/media"
	"github.com/hitoshi/lexcms/internal/middleware"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/team"
	"github.com/hitoshi/lexcms/internal/validation"
)

// TeamServiceInterface はチームハンドラーが必要とするサービスインターフェース。
type TeamServiceInterface interface {
	ListMembers(ctx context.Context) ([]model.User, error)
	Invite(ctx context.Context, actor *model.User, in validation.InviteInput) (*team.Result, error)
	ToggleRole(ctx context.Context, actor *model.User, memberID string) (*team.Result, error)
	RemoveMember(ctx context.Context, actor *model.User, memberID string) (*team.Result, error)
	Rename(ctx context.Context, actor *model.User, memberID string, in validation.ProfileInput) (*team.Result, error)
	SetAvatar(ctx context.Context, actor *model.User, memberID string, f *media.File) (*team.Result, error)
}

// TeamHandler はチーム管理のHTTPハンドラー。
type TeamHandler struct {
	service  TeamServiceInterface
	maxBytes int64
}

// NewTeamHandler はTeamHandlerを生成する。maxBytesはアバター画像の上限。
func NewTeamHandler(service TeamServiceInterface, maxBytes int64) *TeamHandler {
	if maxBytes <= 0 {
		maxBytes = media.DefaultMaxBytes
	}
	return &TeamHandler{service: service, maxBytes: maxBytes}
}

type memberResponse struct {
	Member      *model.User       `json:"member,omitempty"`
	Synced      bool              `json:"synced"`
	Warning     string            `json:"warning,omitempty"`
	Credentials *team.Credentials `json:"credentials,omitempty"`
}

func newMemberResponse(res *team.Result) memberResponse {
	return memberResponse{
		Member:      res.Member,
		Synced:      res.Synced,
		Warning:     res.Warning,
		Credentials: res.Credentials,
	}
}

// List はチームメンバー一覧を返す。
// GET /api/team
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if members == nil {
		members = []model.User{}
	}
	writeJSON(w, http.StatusOK, members)
}

// Invite はメンバーを招待する。
// POST /api/team
func (h *TeamHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var in validation.InviteInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.service.Invite(r.Context(), middleware.UserFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newMemberResponse(res))
}

// ToggleRole はメンバーのロールを切り替える。
// POST /api/team/{id}/role
func (h *TeamHandler) ToggleRole(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ToggleRole(r.Context(), middleware.UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberResponse(res))
}

// Rename はメンバーの表示名を変更する。
// PATCH /api/team/{id}
func (h *TeamHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var in validation.ProfileInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.service.Rename(r.Context(), middleware.UserFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberResponse(res))
}

// UploadAvatar はメンバーのアバター画像を設定する。
// POST /api/team/{id}/avatar (multipart: file)
func (h *TeamHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	f, ok := readUploadedFile(w, r, h.maxBytes)
	if !ok {
		return
	}
	res, err := h.service.SetAvatar(r.Context(), middleware.UserFromContext(r.Context()), chi.URLParam(r, "id"), f)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberResponse(res))
}

// Remove はメンバーを削除する。
// DELETE /api/team/{id}
func (h *TeamHandler) Remove(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RemoveMember(r.Context(), middleware.UserFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberResponse(res))
}
