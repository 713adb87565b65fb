// Package validation は記事と招待の入力スキーマを検証する。
//
// go-playground/validatorの構造体タグで規則を宣言し、
// 最初に違反した規則をユーザー向けメッセージとして返す。
package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/lexcms/internal/model"
)

// ArticleInput は記事の作成・更新フォームの入力。
// 検証はサニタイズ後の値に対して行う。
type ArticleInput struct {
	Title    string   `json:"title" validate:"min=5,max=200"`
	Summary  string   `json:"summary" validate:"min=10,max=500"`
	Date     string   `json:"date" validate:"required,max=64"`
	Category string   `json:"category" validate:"required,max=100"`
	Image    string   `json:"image" validate:"min=5"`
	Content  []string `json:"content" validate:"min=1,dive,required"`

	// AuthorID は管理者が著者を指定する場合のみ使用する。
	AuthorID string `json:"author_id,omitempty" validate:"omitempty,max=64"`
}

// InviteInput はチームメンバー招待の入力。
// bcryptは72バイトを超えるパスワードを扱えないため上限を72とする。
type InviteInput struct {
	Email    string     `json:"email" validate:"required,email,max=320"`
	Name     string     `json:"name" validate:"min=2,max=50"`
	Password string     `json:"password" validate:"min=6,max=72"`
	Role     model.Role `json:"role" validate:"oneof=admin editor"`
}

// ProfileInput は表示名変更の入力。
type ProfileInput struct {
	Name string `json:"name" validate:"min=2,max=50"`
}

// messages は「フィールド名.タグ」ごとのメッセージ。
var messages = map[string]string{
	"Title.min":         "Title is too short",
	"Title.max":         "Title is too long",
	"Summary.min":       "Summary is too short",
	"Summary.max":       "Summary is too long",
	"Date.required":     "Date is required",
	"Date.max":          "Date is too long",
	"Category.required": "Category is required",
	"Category.max":      "Category is too long",
	"Image.min":         "Image is required",
	"Content.min":       "Content must have at least one paragraph",
	"Content.required":  "Paragraph cannot be empty",
	"AuthorID.max":      "Author is invalid",
	"Email.required":    "Invalid email format",
	"Email.email":       "Invalid email format",
	"Email.max":         "Email too long",
	"Name.min":          "Name must be at least 2 chars",
	"Name.max":          "Name too long",
	"Password.min":      "Password must be at least 6 chars",
	"Password.max":      "Password too long",
	"Role.oneof":        "Role must be admin or editor",
}

// Validator は入力スキーマの検証器。並行して使用できる。
type Validator struct {
	v *validator.Validate
}

// New はValidatorを生成する。
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Article は記事入力を検証する。
func (v *Validator) Article(in *ArticleInput) error {
	return v.check(in)
}

// Invite は招待入力を検証する。
func (v *Validator) Invite(in *InviteInput) error {
	return v.check(in)
}

// Profile は表示名変更の入力を検証する。
func (v *Validator) Profile(in *ProfileInput) error {
	return v.check(in)
}

// check は構造体を検証し、宣言順で最初の違反を*model.APIErrorとして返す。
func (v *Validator) check(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewValidationError("Invalid input")
	}
	return model.NewValidationError(messageFor(verrs[0]))
}

func messageFor(fe validator.FieldError) string {
	field := fe.StructField()
	// diveの要素は "Content[0]" の形式になる
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	if msg, ok := messages[field+"."+fe.Tag()]; ok {
		return msg
	}
	return field + " is invalid"
}
