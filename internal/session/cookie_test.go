package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestForLogin_Attributes(t *testing.T) {
	cookie := ForLogin("token-value", 24*time.Hour, true, "")

	if cookie.Name != CookieName {
		t.Fatalf("expected name=%q, got %q", CookieName, cookie.Name)
	}
	if cookie.Value != "token-value" {
		t.Fatalf("expected value=token-value, got %q", cookie.Value)
	}
	if cookie.MaxAge != 86400 {
		t.Fatalf("expected max-age=86400, got %d", cookie.MaxAge)
	}
	if !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly")
	}
	if !cookie.Secure {
		t.Fatalf("expected Secure when requested")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax, got %v", cookie.SameSite)
	}
	if cookie.Path != "/" {
		t.Fatalf("expected path=/, got %q", cookie.Path)
	}
}

func TestForLogin_InsecureTransport(t *testing.T) {
	cookie := ForLogin("token-value", time.Hour, false, "example.com")
	if cookie.Secure {
		t.Fatalf("expected Secure=false for plain transport")
	}
	if cookie.Domain != "example.com" {
		t.Fatalf("expected domain=example.com, got %q", cookie.Domain)
	}
}

func TestForLogout_ClearsCookie(t *testing.T) {
	cookie := ForLogout("")

	if cookie.Name != CookieName {
		t.Fatalf("expected name=%q, got %q", CookieName, cookie.Name)
	}
	if cookie.Value != "" {
		t.Fatalf("expected empty value, got %q", cookie.Value)
	}
	if cookie.MaxAge >= 0 {
		t.Fatalf("expected immediate expiry, got max-age=%d", cookie.MaxAge)
	}
	if cookie.Secure {
		t.Fatalf("clearing cookie must stay accepted over plain connections")
	}

	// The wire form must carry Max-Age=0 so browsers drop it immediately.
	rec := httptest.NewRecorder()
	http.SetCookie(rec, cookie)
	header := rec.Header().Get("Set-Cookie")
	if header == "" {
		t.Fatalf("expected a Set-Cookie header")
	}
	if want := "Max-Age=0"; !strings.Contains(header, want) {
		t.Fatalf("expected %q in %q", want, header)
	}
}

func TestReadCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := ReadCookie(req); ok {
		t.Fatalf("expected no cookie")
	}

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "  abc  "})
	value, ok := ReadCookie(req)
	if !ok || value != "abc" {
		t.Fatalf("expected trimmed value abc, got %q ok=%v", value, ok)
	}

	blank := httptest.NewRequest(http.MethodGet, "/", nil)
	blank.AddCookie(&http.Cookie{Name: CookieName, Value: ""})
	if _, ok := ReadCookie(blank); ok {
		t.Fatalf("expected empty cookie to be treated as absent")
	}
}
