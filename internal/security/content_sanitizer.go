// Package security は入力のサニタイズと外部URL取得時のSSRF防止を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// richTextElements は記事本文で許可する書式タグ。
var richTextElements = []string{"b", "i", "u", "strong", "em", "ul", "ol", "li", "br"}

// ContentSanitizer は記事とプロフィールの自由入力欄をサニタイズする。
type ContentSanitizer interface {
	// SanitizeRichText は書式タグのみを残したHTMLを返す。
	// script, style, iframeと全ての属性は除去される。
	SanitizeRichText(raw string) string

	// SanitizeText は全てのタグを除去したプレーンテキストを返す。
	// 出力時のエスケープは呼び出し側の責務。
	SanitizeText(raw string) string
}

type contentSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// bluemondayのポリシーは生成後は読み取り専用のため、並行して使用できる。
func NewContentSanitizer() ContentSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(richTextElements...)

	return &contentSanitizer{
		rich:   rich,
		strict: bluemonday.StrictPolicy(),
	}
}

func (s *contentSanitizer) SanitizeRichText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// maxUnescapeRounds はエンティティの多重エンコードを展開する上限回数。
const maxUnescapeRounds = 8

func (s *contentSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは本文をHTMLエスケープして返すため、プレーンテキストに戻す。
	// 戻した文字列に&lt;script&gt;由来のタグが現れるので、変化しなくなるまで繰り返す。
	text := raw
	for range maxUnescapeRounds {
		escaped := s.strict.Sanitize(text)
		next := strings.TrimSpace(html.UnescapeString(escaped))
		if next == text {
			return next
		}
		text = next
	}
	// 上限に達した場合はエスケープしたまま返し、タグを生かさない
	return strings.TrimSpace(s.strict.Sanitize(text))
}

// SanitizeParagraphs は本文の各段落にSanitizeRichTextを適用した新しいスライスを返す。
func SanitizeParagraphs(s ContentSanitizer, paragraphs []string) []string {
	out := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = s.SanitizeRichText(p)
	}
	return out
}
