package session

import (
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// CookieName is the current host-only session cookie.
	CookieName = "pcu_session"
	// DomainCookieName is shared across subdomains of the apex domain.
	DomainCookieName = "pcu_session_domain"

	// DefaultApexDomain is the production domain whose subdomains share sessions.
	DefaultApexDomain = "pitchingcoachu.com"

	// TTL is both the token lifetime and the cookie max-age.
	TTL = 15 * 24 * time.Hour
)

// LegacyCookieNames lists retired cookie names in the order they were retired.
var LegacyCookieNames = []string{"pcu_portal_session", "pcu_auth"}

// CookiePolicy decides the attributes of session cookies.
type CookiePolicy struct {
	Secure bool
	// DomainOverride, when set, scopes the domain cookie regardless of host.
	DomainOverride string
	ApexDomain     string
	TTL            time.Duration
}

// NewCookiePolicy returns the production policy; secure is false only for
// local development.
func NewCookiePolicy(secure bool, domainOverride string) CookiePolicy {
	return CookiePolicy{
		Secure:         secure,
		DomainOverride: domainOverride,
		ApexDomain:     DefaultApexDomain,
		TTL:            TTL,
	}
}

// DomainFor returns the leading-dot cookie domain for host, or "" when the
// session cookie should stay host-only.
func (p CookiePolicy) DomainFor(host string) string {
	if d := normalizeDomain(p.DomainOverride); d != "" {
		return "." + d
	}
	apex := normalizeDomain(p.ApexDomain)
	if apex == "" {
		return ""
	}
	host = normalizeDomain(stripPort(host))
	if host == apex || strings.HasSuffix(host, "."+apex) {
		return "." + apex
	}
	return ""
}

// SessionCookies returns the cookies to set after a successful login: the
// host-only cookie always, and the domain cookie when host has a domain.
func (p CookiePolicy) SessionCookies(token, host string) []*http.Cookie {
	cookies := []*http.Cookie{p.cookie(CookieName, token, "", p.maxAge())}
	if domain := p.DomainFor(host); domain != "" {
		cookies = append(cookies, p.cookie(DomainCookieName, token, domain, p.maxAge()))
	}
	return cookies
}

// ClearCookies expires every cookie name a session may have been stored under.
func (p CookiePolicy) ClearCookies(host string) []*http.Cookie {
	cookies := []*http.Cookie{p.cookie(CookieName, "", "", -1)}
	if domain := p.DomainFor(host); domain != "" {
		cookies = append(cookies, p.cookie(DomainCookieName, "", domain, -1))
	}
	for _, name := range LegacyCookieNames {
		cookies = append(cookies, p.cookie(name, "", "", -1))
	}
	return cookies
}

func (p CookiePolicy) maxAge() int {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = TTL
	}
	return int(ttl / time.Second)
}

func (p CookiePolicy) cookie(name, value, domain string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
