// Package session holds the per-run identity used for every request: the
// authentication cookies, the user agent and the optional proxy.
package session

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

// DefaultCookieDomain scopes parsed cookies to every Instagram host
const DefaultCookieDomain = ".instagram.com"

// Cookie is a single name/value pair scoped to a domain
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// ParseCookies splits a "name=value; name2=value2" string. Entries without
// '=' or with an empty name are skipped; the value is everything after the
// first '='.
func ParseCookies(raw, domain string) []Cookie {
	if domain == "" {
		domain = DefaultCookieDomain
	}

	var cookies []Cookie
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}

// Session is created once per run and never modified afterwards
type Session struct {
	cookies   []Cookie
	userAgent string
	proxy     *url.URL
}

type options struct {
	userAgent string
	pool      []string
	domain    string
	pick      func(n int) int
}

// Option customizes Bootstrap
type Option func(*options)

// WithUserAgent pins the user agent, bypassing the pool
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithUserAgentPool sets the pool a user agent is drawn from
func WithUserAgentPool(pool []string) Option {
	return func(o *options) { o.pool = pool }
}

// WithCookieDomain overrides the domain parsed cookies are scoped to
func WithCookieDomain(domain string) Option {
	return func(o *options) { o.domain = domain }
}

// WithPicker replaces the random index function used to draw from the pool
func WithPicker(pick func(n int) int) Option {
	return func(o *options) { o.pick = pick }
}

// Bootstrap builds the session for one run. Missing cookies are allowed and
// produce an unauthenticated session. An unparseable proxy address is an error.
func Bootstrap(rawCookies, proxyAddress string, opts ...Option) (*Session, error) {
	o := &options{pick: rand.IntN}
	for _, opt := range opts {
		opt(o)
	}

	s := &Session{
		cookies:   ParseCookies(rawCookies, o.domain),
		userAgent: o.userAgent,
	}

	if s.userAgent == "" && len(o.pool) > 0 {
		s.userAgent = o.pool[o.pick(len(o.pool))]
	}

	if proxyAddress != "" {
		u, err := parseProxy(proxyAddress)
		if err != nil {
			return nil, err
		}
		s.proxy = u
	}

	return s, nil
}

func parseProxy(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing host", addr)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return u, nil
}

// Cookies returns a copy of the session cookies
func (s *Session) Cookies() []Cookie {
	out := make([]Cookie, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// HasCookies reports whether any cookie was parsed
func (s *Session) HasCookies() bool {
	return len(s.cookies) > 0
}

// Cookie looks up a cookie value by name
func (s *Session) Cookie(name string) (string, bool) {
	for _, c := range s.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// CookieHeader renders the cookies as a Cookie request header value
func (s *Session) CookieHeader() string {
	parts := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// CookieNames lists cookie names only, for logs
func (s *Session) CookieNames() []string {
	names := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		names = append(names, c.Name)
	}
	return names
}

func (s *Session) UserAgent() string {
	return s.userAgent
}

// ProxyURL returns the proxy, or nil when requests go direct
func (s *Session) ProxyURL() *url.URL {
	if s.proxy == nil {
		return nil
	}
	u := *s.proxy
	return &u
}

// ProxyAddress returns the proxy as a string, or "" when unset
func (s *Session) ProxyAddress() string {
	if s.proxy == nil {
		return ""
	}
	return s.proxy.String()
}

// ProxyHost returns host:port of the proxy, the form browsers expect on the command line
func (s *Session) ProxyHost() string {
	if s.proxy == nil {
		return ""
	}
	if s.proxy.Scheme == "socks5" {
		return "socks5://" + s.proxy.Host
	}
	return s.proxy.Host
}
