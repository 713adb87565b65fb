// Package team はチームメンバーの一覧・招待・ロール変更・削除・プロフィール更新を提供する。
//
// 変更はリモートIdPに適用し、到達できない場合はローカルディレクトリに反映して警告を返す。
package team

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/lexcms/internal/auth"
	"github.com/hitoshi/lexcms/internal/media"
	"github.com/hitoshi/lexcms/internal/metrics"
	"github.com/hitoshi/lexcms/internal/model"
	"github.com/hitoshi/lexcms/internal/permission"
	"github.com/hitoshi/lexcms/internal/security"
	"github.com/hitoshi/lexcms/internal/validation"
)

// 劣化時にレスポンスへ含める警告
const (
	WarningSavedLocally = "Saved locally, not synced"
	WarningLocalInvite  = "Member created locally. Share these credentials with them."
)

// Directory はローカルのユーザー一覧。
type Directory interface {
	Users(ctx context.Context) ([]model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Save(ctx context.Context, user *model.User) error
	Remove(ctx context.Context, id string) error
}

// AvatarUploader はアバター画像を保存する。
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID string, f *media.File) (*media.Result, error)
}

// Credentials はローカルで作成したメンバーに共有する一時的な資格情報。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Result はメンバー変更の結果。
type Result struct {
	Member *model.User
	// Synced はリモートIdPに反映できた場合にtrueになる。
	Synced      bool
	Warning     string
	Credentials *Credentials
}

// Service はチーム管理のサービス層。
type Service struct {
	remote     auth.IdentityProvider
	directory  Directory
	avatars    AvatarUploader
	sanitizer  security.ContentSanitizer
	validator  *validation.Validator
	metrics    metrics.MetricsCollector
	bcryptCost int
	now        func() time.Time
}

// NewService はServiceを生成する。remoteがnilの場合はローカルモードになる。
func NewService(
	remote auth.IdentityProvider,
	directory Directory,
	avatars AvatarUploader,
	sanitizer security.ContentSanitizer,
	validator *validation.Validator,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		remote:     remote,
		directory:  directory,
		avatars:    avatars,
		sanitizer:  sanitizer,
		validator:  validator,
		metrics:    collector,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

// ListMembers はメンバー一覧を返す。
// リモートIdPに到達できない場合はデモユーザーとローカルユーザーを返す。
func (s *Service) ListMembers(ctx context.Context) ([]model.User, error) {
	if s.remote != nil {
		users, err := s.remote.ListUsers(ctx)
		if err == nil {
			return users, nil
		}
		s.metrics.RecordRemoteFailure("list_members")
		slog.Warn("remote member list failed, using local directory",
			slog.String("operation", "list_members"),
			slog.String("error", err.Error()),
		)
	}

	users, err := s.directory.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// FindMember は指定IDのメンバーを返す。見つからない場合はnilを返す。
func (s *Service) FindMember(ctx context.Context, id string) (*model.User, error) {
	users, err := s.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Invite はメンバーを招待する。
//
// リモートIdPに到達できない場合とローカルモードではローカルにユーザーを作成し、
// ログインに使う資格情報を結果に含める。
func (s *Service) Invite(ctx context.Context, actor *model.User, in validation.InviteInput) (*Result, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}
	if !permission.CanManageTeam(actor) {
		return nil, model.NewPermissionDeniedError("Only admins can invite members")
	}

	in.Email = strings.TrimSpace(in.Email)
	in.Name = s.sanitizer.SanitizeText(in.Name)
	if err := s.validator.Invite(&in); err != nil {
		return nil, err
	}

	if s.remote != nil {
		member, err := s.remote.CreateUser(ctx, auth.NewMember{
			Email:    in.Email,
			Name:     in.Name,
			Password: in.Password,
			Role:     in.Role,
		})
		if err == nil {
			slog.Info("member invited",
				slog.String("actor_id", actor.ID),
				slog.String("member_id", member.ID),
			)
			return &Result{Member: member, Synced: true}, nil
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		s.remoteFailed("invite_member", err)
	}

	existing, err := s.directory.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("メンバーの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError(in.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	now := s.now()
	member := &model.User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		AvatarURL:    auth.DefaultAvatarURL(in.Name),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.directory.Save(ctx, member); err != nil {
		return nil, fmt.Errorf("メンバーの保存に失敗しました: %w", err)
	}
	member.PasswordHash = ""

	warning := WarningLocalInvite
	if s.remote != nil {
		s.metrics.RecordFallbackWrite("invite_member")
		warning = WarningSavedLocally
	}
	return &Result{
		Member:      member,
		Warning:     warning,
		Credentials: &Credentials{Email: in.Email, Password: in.Password},
	}, nil
}

// ToggleRole はメンバーのロールを管理者と編集者で切り替える。自分自身は変更できない。
func (s *Service) ToggleRole(ctx context.Context, actor *model.User, memberID string) (*Result, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}
	if !permission.CanManageTeam(actor) {
		return nil, model.NewPermissionDeniedError("Only admins can change roles")
	}
	if actor.ID == memberID {
		return nil, model.NewSelfModificationError("You cannot change your own role")
	}

	member, err := s.mustFind(ctx, memberID)
	if err != nil {
		return nil, err
	}
	member.Role = member.Role.Toggled()
	return s.apply(ctx, "toggle_role", member)
}

// RemoveMember はメンバーを削除する。自分自身は削除できない。
func (s *Service) RemoveMember(ctx context.Context, actor *model.User, memberID string) (*Result, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}
	if !permission.CanManageTeam(actor) {
		return nil, model.NewPermissionDeniedError("Only admins can remove members")
	}
	if actor.ID == memberID {
		return nil, model.NewSelfModificationError("You cannot delete yourself")
	}

	member, err := s.mustFind(ctx, memberID)
	if err != nil {
		return nil, err
	}

	if s.remote != nil {
		err := s.remote.DeleteUser(ctx, memberID)
		if err == nil {
			// ローカルに残った同じIDの変更も除外する
			if err := s.directory.Remove(ctx, memberID); err != nil {
				slog.Warn("failed to remove local mirror",
					slog.String("operation", "remove_member"),
					slog.String("error", err.Error()),
				)
			}
			slog.Info("member removed",
				slog.String("actor_id", actor.ID),
				slog.String("member_id", memberID),
			)
			return &Result{Member: member, Synced: true}, nil
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		s.remoteFailed("remove_member", err)
	}

	if err := s.directory.Remove(ctx, memberID); err != nil {
		return nil, fmt.Errorf("メンバーの削除に失敗しました: %w", err)
	}
	return s.localResult(member, "remove_member"), nil
}

// Rename はメンバーの表示名を変更する。本人または管理者のみが変更できる。
func (s *Service) Rename(ctx context.Context, actor *model.User, memberID string, in validation.ProfileInput) (*Result, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}
	if !permission.CanEditProfile(actor, memberID) {
		return nil, model.NewPermissionDeniedError("You can only edit your own profile")
	}

	in.Name = s.sanitizer.SanitizeText(in.Name)
	if err := s.validator.Profile(&in); err != nil {
		return nil, err
	}

	member, err := s.mustFind(ctx, memberID)
	if err != nil {
		return nil, err
	}
	member.Name = in.Name
	return s.apply(ctx, "rename_member", member)
}

// SetAvatar はアバター画像を保存し、メンバーのアバターURLを更新する。
func (s *Service) SetAvatar(ctx context.Context, actor *model.User, memberID string, f *media.File) (*Result, error) {
	if actor == nil {
		return nil, model.NewUnauthorizedError()
	}
	if !permission.CanEditProfile(actor, memberID) {
		return nil, model.NewPermissionDeniedError("You can only edit your own profile")
	}

	member, err := s.mustFind(ctx, memberID)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.avatars.UploadAvatar(ctx, memberID, f)
	if err != nil {
		return nil, err
	}
	member.AvatarURL = uploaded.URL
	return s.apply(ctx, "set_avatar", member)
}

func (s *Service) mustFind(ctx context.Context, id string) (*model.User, error) {
	member, err := s.FindMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return member, nil
}

// apply はメンバーの変更をリモートIdPに反映し、到達できない場合はローカルに保存する。
func (s *Service) apply(ctx context.Context, operation string, member *model.User) (*Result, error) {
	member.UpdatedAt = s.now()

	if s.remote != nil {
		err := s.remote.UpdateUser(ctx, member)
		if err == nil {
			return &Result{Member: member, Synced: true}, nil
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		s.remoteFailed(operation, err)
	}

	if err := s.directory.Save(ctx, member); err != nil {
		return nil, fmt.Errorf("メンバーの保存に失敗しました: %w", err)
	}
	return s.localResult(member, operation), nil
}

func (s *Service) localResult(member *model.User, operation string) *Result {
	res := &Result{Member: member}
	if s.remote != nil {
		s.metrics.RecordFallbackWrite(operation)
		res.Warning = WarningSavedLocally
	}
	return res
}

func (s *Service) remoteFailed(operation string, err error) {
	s.metrics.RecordRemoteFailure(operation)
	slog.Warn("remote member update failed, applying locally",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
