package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/lexcms/internal/model"
)

// ErrInvalidToken はセッショントークンの署名・形式・期限が不正な場合に返される。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッションCookieに格納するJWTのクレーム。
// Subjectにユーザー IDを持つ。
type Claims struct {
	jwt.RegisteredClaims
	SessionID string                `json:"sid"`
	Provider  model.SessionProvider `json:"provider"`
}

// Tokens はSESSION_SECRETで署名したHS256のセッショントークンを発行・検証する。
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens はTokensを生成する。
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue はセッションに対応するトークンを発行する。有効期限はセッションと同じ。
func (t *Tokens) Issue(session *model.Session) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		SessionID: session.ID,
		Provider:  session.Provider,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証してクレームを返す。
func (t *Tokens) Parse(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
