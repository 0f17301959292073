// Package security は外部から受け取るURLとテキストを安全に扱うための機能を提供する。
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

// ErrUnsafeURL はURLが安全でないと判定されたことを示す。
var ErrUnsafeURL = errors.New("unsafe url")

// URLValidator は画像URLの事前検証を行うインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// blockedPrefixes は画像URLとして受け付けないアドレス範囲。
var blockedPrefixes = mustParsePrefixes(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // メタデータIPを含む
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParsePrefixes(cidrs ...string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefixes = append(prefixes, netip.MustParsePrefix(cidr))
	}
	return prefixes
}

// URLGuard は宿泊場所の画像URLと、URL指定アップロード時の取得先を検証する。
type URLGuard struct {
	schemes []string
	ports   []int
}

// NewURLGuard はhttp/httpsの80番・443番のみを許可するURLGuardを生成する。
func NewURLGuard() *URLGuard {
	return &URLGuard{
		schemes: []string{"http", "https"},
		ports:   []int{80, 443},
	}
}

// ValidateURL はDNS解決を伴わない静的な検証を行う。
// 解決後のアドレス検証はNewSafeClientのDialer側で行われる。
func (g *URLGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: empty url", ErrUnsafeURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeURL, err)
	}

	if !g.allowsScheme(parsed.Scheme) {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrUnsafeURL, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrUnsafeURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: address %s is not public", ErrUnsafeURL, addr)
		}
		return nil
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("%w: host %s is not public", ErrUnsafeURL, host)
	}

	return nil
}

// NewSafeClient はプライベートアドレスへの接続を拒否するHTTPクライアントを生成する。
// DNS解決後のIPアドレスもsafeurlが検証する。
func (g *URLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(cfg).Client
}

func (g *URLGuard) allowsScheme(scheme string) bool {
	for _, s := range g.schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ URLValidator = (*URLGuard)(nil)
