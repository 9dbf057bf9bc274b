package session

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	DefaultCookieName = "auth_token"
	DefaultCookieTTL  = 7 * 24 * time.Hour
)

// CookieConfig describes how the session cookie is scoped and signed.
// Set and clear share these attributes; a browser ignores a clear whose
// path or domain differ from the cookie it holds.
type CookieConfig struct {
	Name     string
	Domain   string
	Path     string
	Secure   bool
	SameSite http.SameSite
	Secret   string
	// MaxLifetime caps the age of any cookie the transport accepts.
	MaxLifetime time.Duration
}

// CookieTransport carries identity tokens in a signed, http-only cookie.
// The cookie signature is independent of the token's own signature.
type CookieTransport struct {
	name     string
	domain   string
	path     string
	secure   bool
	sameSite http.SameSite
	codec    *securecookie.SecureCookie
	now      func() time.Time
}

// NewCookieTransport validates cfg and builds the transport.
func NewCookieTransport(cfg CookieConfig) (*CookieTransport, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("cookie secret required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = DefaultCookieName
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "/"
	}
	lifetime := cfg.MaxLifetime
	if lifetime <= 0 {
		lifetime = DefaultCookieTTL
	}
	sameSite := cfg.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	codec := securecookie.New([]byte(secret), nil)
	codec.SetSerializer(securecookie.NopEncoder{})
	codec.MaxAge(int(lifetime / time.Second))
	return &CookieTransport{
		name:     name,
		domain:   strings.TrimSpace(cfg.Domain),
		path:     path,
		secure:   cfg.Secure,
		sameSite: sameSite,
		codec:    codec,
		now:      time.Now,
	}, nil
}

// Name returns the cookie name.
func (t *CookieTransport) Name() string {
	return t.name
}

// Bind replaces any previous session cookie with one carrying token.
func (t *CookieTransport) Bind(w http.ResponseWriter, token string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCookieTTL
	}
	encoded, err := t.codec.Encode(t.name, []byte(token))
	if err != nil {
		return err
	}
	t.Clear(w)
	cookie := t.baseCookie()
	cookie.Value = encoded
	cookie.Expires = t.now().Add(ttl).UTC()
	cookie.MaxAge = int(ttl / time.Second)
	http.SetCookie(w, cookie)
	return nil
}

// Unbind extracts the token from r. It reports false when the cookie is
// missing or fails transport verification.
func (t *CookieTransport) Unbind(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(t.name)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	var raw []byte
	if err := t.codec.Decode(t.name, cookie.Value, &raw); err != nil {
		slog.Debug("session cookie rejected", "path", r.URL.Path, "err", err)
		return "", false
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", false
	}
	return token, true
}

// Clear instructs the client to drop the session cookie.
func (t *CookieTransport) Clear(w http.ResponseWriter) {
	cookie := t.baseCookie()
	cookie.Value = ""
	cookie.Expires = time.Unix(0, 0).UTC()
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

func (t *CookieTransport) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     t.name,
		Path:     t.path,
		Domain:   t.domain,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: t.sameSite,
	}
}

// ParseSameSite maps a config value to an http.SameSite mode.
func ParseSameSite(value string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, errors.New("invalid sameSite value: " + value)
	}
}
