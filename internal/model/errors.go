// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, permission, article, team, media, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeSelfModification   = "SELF_MODIFICATION"
	ErrCodeArticleNotFound    = "ARTICLE_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeInvalidFileType    = "INVALID_FILE_TYPE"
	ErrCodeFileTooLarge       = "FILE_TOO_LARGE"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeImportFailed       = "IMPORT_FAILED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please sign in.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// リモートIdPのエラーメッセージがあればそれを優先する。
func NewInvalidCredentialsError(message string) *APIError {
	if message == "" {
		message = "Invalid credentials"
	}
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  message,
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse request body.",
		Category: "validation",
		Action:   "Send a well-formed JSON request.",
	}
}

// NewValidationError はスキーマ検証エラーを生成する。
// messageには最初に違反したルールのメッセージを渡す。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "Correct the highlighted field and submit again.",
	}
}

// NewPermissionDeniedError は権限不足エラーを生成する。
func NewPermissionDeniedError(message string) *APIError {
	if message == "" {
		message = "Access denied"
	}
	return &APIError{
		Code:     ErrCodePermissionDenied,
		Message:  message,
		Category: "permission",
		Action:   "Ask an administrator for access.",
	}
}

// NewSelfModificationError は自分自身のロール変更・削除を試みた場合のエラーを生成する。
func NewSelfModificationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSelfModification,
		Message:  message,
		Category: "team",
		Action:   "Ask another administrator to perform this change.",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("Article not found: %s", articleID),
		Category: "article",
		Action:   "Check the article ID.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("User not found: %s", userID),
		Category: "team",
		Action:   "Reload the team list.",
	}
}

// NewDuplicateEmailError はメールアドレスが既に登録済みの場合のエラーを生成する。
func NewDuplicateEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  fmt.Sprintf("A user with this email already exists: %s", email),
		Category: "team",
		Action:   "Use a different email address.",
	}
}

// NewInvalidFileTypeError は画像以外のファイルがアップロードされた場合のエラーを生成する。
func NewInvalidFileTypeError(contentType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFileType,
		Message:  fmt.Sprintf("Only image files are allowed (got %s)", contentType),
		Category: "media",
		Action:   "Select a PNG, JPEG, GIF or WebP image.",
	}
}

// NewFileTooLargeError はファイルサイズ上限超過エラーを生成する。
func NewFileTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("File is too large (max %d MB)", limit/(1024*1024)),
		Category: "media",
		Action:   "Compress the image or choose a smaller one.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: "validation",
		Action:   "Enter an absolute http:// or https:// URL.",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "Access to the requested URL is blocked by security policy.",
		Category: "validation",
		Action:   "Use a publicly reachable image URL. Private and loopback addresses are not allowed.",
	}
}

// NewUploadFailedError はオブジェクトストレージへのアップロード失敗エラーを生成する。
func NewUploadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("Upload failed: %s", reason),
		Category: "media",
		Action:   "Try again in a moment.",
	}
}

// NewImportFailedError は外部画像の取得失敗エラーを生成する。
func NewImportFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeImportFailed,
		Message:  fmt.Sprintf("Failed to fetch image: %s", reason),
		Category: "media",
		Action:   "Check that the URL points to a reachable image.",
	}
}
