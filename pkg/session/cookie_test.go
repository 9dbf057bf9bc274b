package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestCookieTransport(t *testing.T, secret string) *CookieTransport {
	t.Helper()
	transport, err := NewCookieTransport(CookieConfig{
		Name:   "auth_token",
		Domain: "localhost",
		Secret: secret,
	})
	if err != nil {
		t.Fatalf("new cookie transport: %v", err)
	}
	return transport
}

// lastCookie returns the final Set-Cookie entry for name, which is what a
// browser keeps after processing the response.
func lastCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	if found == nil {
		t.Fatalf("cookie %q not set", name)
	}
	return found
}

func TestCookieTransportBindAndUnbind(t *testing.T) {
	transport := newTestCookieTransport(t, "cookie-secret")
	rec := httptest.NewRecorder()
	if err := transport.Bind(rec, "header.payload.sig", 7*24*time.Hour); err != nil {
		t.Fatalf("bind: %v", err)
	}

	cookie := lastCookie(t, rec, "auth_token")
	if !cookie.HttpOnly {
		t.Fatalf("expected http-only cookie")
	}
	if cookie.Path != "/" || cookie.Domain != "localhost" {
		t.Fatalf("unexpected scope: path=%q domain=%q", cookie.Path, cookie.Domain)
	}
	if cookie.Value == "header.payload.sig" {
		t.Fatalf("cookie value must be signed, not the raw token")
	}
	if until := time.Until(cookie.Expires); until < 6*24*time.Hour || until > 7*24*time.Hour+time.Minute {
		t.Fatalf("unexpected expiry: %v", cookie.Expires)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/auth-status", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	token, ok := transport.Unbind(req)
	if !ok {
		t.Fatalf("expected cookie to unbind")
	}
	if token != "header.payload.sig" {
		t.Fatalf("unexpected token: %q", token)
	}
}

func TestCookieTransportBindClearsPreviousCookieFirst(t *testing.T) {
	transport := newTestCookieTransport(t, "cookie-secret")
	rec := httptest.NewRecorder()
	if err := transport.Bind(rec, "token", time.Hour); err != nil {
		t.Fatalf("bind: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected clear + set cookies, got %d", len(cookies))
	}
	if cookies[0].MaxAge >= 0 || cookies[0].Value != "" {
		t.Fatalf("expected first cookie to be a clear instruction: %+v", cookies[0])
	}
	if cookies[1].Value == "" {
		t.Fatalf("expected second cookie to carry the session")
	}
}

func TestCookieTransportUnbindAbsentOrTampered(t *testing.T) {
	transport := newTestCookieTransport(t, "cookie-secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := transport.Unbind(req); ok {
		t.Fatalf("expected missing cookie to be absent")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: "raw.jwt.value"})
	if _, ok := transport.Unbind(req); ok {
		t.Fatalf("expected unsigned cookie to be absent")
	}

	rec := httptest.NewRecorder()
	if err := transport.Bind(rec, "token-value", time.Hour); err != nil {
		t.Fatalf("bind: %v", err)
	}
	cookie := lastCookie(t, rec, "auth_token")
	tampered := cookie.Value[:len(cookie.Value)-2] + "xx"
	if strings.HasSuffix(cookie.Value, "xx") {
		tampered = cookie.Value[:len(cookie.Value)-2] + "yy"
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: tampered})
	if _, ok := transport.Unbind(req); ok {
		t.Fatalf("expected tampered cookie to be absent")
	}
}

func TestCookieTransportRejectsCookieSignedWithOtherSecret(t *testing.T) {
	issuer := newTestCookieTransport(t, "secret-a")
	reader := newTestCookieTransport(t, "secret-b")

	rec := httptest.NewRecorder()
	if err := issuer.Bind(rec, "token-value", time.Hour); err != nil {
		t.Fatalf("bind: %v", err)
	}
	cookie := lastCookie(t, rec, "auth_token")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	if _, ok := reader.Unbind(req); ok {
		t.Fatalf("expected foreign signature to be absent")
	}
}

func TestCookieTransportClearMatchesScope(t *testing.T) {
	transport, err := NewCookieTransport(CookieConfig{
		Name:     "auth_token",
		Domain:   "chat.example.com",
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Secret:   "cookie-secret",
	})
	if err != nil {
		t.Fatalf("new cookie transport: %v", err)
	}

	setRec := httptest.NewRecorder()
	if err := transport.Bind(setRec, "token", time.Hour); err != nil {
		t.Fatalf("bind: %v", err)
	}
	set := lastCookie(t, setRec, "auth_token")

	clearRec := httptest.NewRecorder()
	transport.Clear(clearRec)
	cleared := lastCookie(t, clearRec, "auth_token")

	if cleared.Path != set.Path || cleared.Domain != set.Domain {
		t.Fatalf("clear scope mismatch: set=%s|%s clear=%s|%s", set.Path, set.Domain, cleared.Path, cleared.Domain)
	}
	if cleared.HttpOnly != set.HttpOnly || cleared.Secure != set.Secure || cleared.SameSite != set.SameSite {
		t.Fatalf("clear attributes mismatch: set=%+v clear=%+v", set, cleared)
	}
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected expiring empty cookie, got %+v", cleared)
	}
}

func TestNewCookieTransportRequiresSecret(t *testing.T) {
	if _, err := NewCookieTransport(CookieConfig{}); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestParseSameSite(t *testing.T) {
	cases := map[string]http.SameSite{
		"":       http.SameSiteLaxMode,
		"Lax":    http.SameSiteLaxMode,
		"strict": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
	}
	for in, want := range cases {
		got, err := ParseSameSite(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseSameSite("sometimes"); err == nil {
		t.Fatalf("expected invalid value to fail")
	}
}
