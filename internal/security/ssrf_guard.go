package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrInvalidURL はURLの形式やスキームが不正な場合に返される。
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlockedDestination は内部ネットワーク宛てのURLに返される。
	ErrBlockedDestination = errors.New("destination not allowed")
)

// blockedPrefixes は外部画像の取得先として拒否するアドレス範囲。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // クラウドメタデータ 169.254.169.254 を含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

var blockedHostnames = []string{"localhost", "metadata.google.internal"}

// SSRFGuard は画像インポートで外部URLを取得する際の宛先を制限する。
//
// Validateは名前解決前の静的な検査で、DNS再バインディングは
// Clientが返すHTTPクライアント（safeurl）の接続時検査で防ぐ。
type SSRFGuard struct {
	schemes []string
	ports   []int
}

// NewSSRFGuard はhttp/httpsの80/443番ポートのみを許可するSSRFGuardを生成する。
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{
		schemes: []string{"http", "https"},
		ports:   []int{80, 443},
	}
}

// Validate はrawURLを解析し、取得先として許可できるかを検査する。
// 形式不正はErrInvalidURL、内部宛てはErrBlockedDestinationをラップして返す。
func (g *SSRFGuard) Validate(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty url: %w", ErrInvalidURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidURL)
	}
	if !g.allowedScheme(u.Scheme) {
		return nil, fmt.Errorf("scheme %q: %w", u.Scheme, ErrInvalidURL)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host: %w", ErrInvalidURL)
	}
	if u.User != nil {
		return nil, fmt.Errorf("credentials in url: %w", ErrInvalidURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if blockedAddr(addr) {
			return nil, fmt.Errorf("address %s: %w", addr, ErrBlockedDestination)
		}
		return u, nil
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	for _, h := range blockedHostnames {
		if lower == h || strings.HasSuffix(lower, "."+h) {
			return nil, fmt.Errorf("host %s: %w", host, ErrBlockedDestination)
		}
	}
	return u, nil
}

// Client は接続先IPを検査するHTTPクライアントを返す。
func (g *SSRFGuard) Client(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()
	return safeurl.Client(cfg).Client
}

func (g *SSRFGuard) allowedScheme(scheme string) bool {
	for _, s := range g.schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
