package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pluginmind/pluginmind-backend/internal/auth"
	"github.com/pluginmind/pluginmind-backend/internal/db"
	"github.com/pluginmind/pluginmind-backend/internal/identity"
	"github.com/pluginmind/pluginmind-backend/internal/ratelimit"
	"github.com/pluginmind/pluginmind-backend/internal/session"
	"github.com/pluginmind/pluginmind-backend/internal/store"
)

const testAssertion = "good-assertion"

// fakeVerifier accepts exactly one assertion string and rejects the rest,
// standing in for the Google token verifier.
type fakeVerifier struct {
	claims identity.Claims
}

func (v *fakeVerifier) Verify(_ context.Context, raw string) (identity.Claims, error) {
	if raw == "" {
		return identity.Claims{}, session.ErrMissingCredential
	}
	if raw != testAssertion {
		return identity.Claims{}, session.ErrInvalidAssertion
	}
	return v.claims, nil
}

type testEnv struct {
	router *gin.Engine
	codec  *session.Codec
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter, loginPerMinute int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, errOpen := db.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	verifier := &fakeVerifier{claims: identity.Claims{
		Email:     "user@example.com",
		SubjectID: "google-sub-1",
		Name:      "Test User",
		Picture:   "https://lh3.example/avatar.png",
	}}
	users := store.NewGormUserStore(conn)
	codec := session.NewCodec("test-secret", 24*time.Hour)
	svc := auth.NewService(verifier, identity.NewBinder(users), codec, true, "")

	router := gin.New()
	RegisterRoutes(router, Deps{
		DB:             conn,
		Service:        svc,
		Users:          users,
		Codec:          codec,
		Limiter:        limiter,
		LoginPerMinute: loginPerMinute,
	})
	return &testEnv{router: router, codec: codec}
}

func (e *testEnv) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) (*http.Cookie, map[string]any) {
	t.Helper()
	rec := e.do(http.MethodPost, "/v1/auth/google", `{"id_token":"`+testAssertion+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatalf("login: expected %s cookie to be set", session.CookieName)
	}

	var body map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("login: decode response: %v", errDecode)
	}
	return cookie, body
}

func TestLoginCreatesUserAndSetsSessionCookie(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	cookie, body := env.login(t)
	if cookie.MaxAge != 86400 {
		t.Fatalf("expected cookie max-age 86400, got %d", cookie.MaxAge)
	}
	if !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly cookie")
	}
	if !cookie.Secure {
		t.Fatalf("expected Secure cookie")
	}

	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user object in response, got %v", body)
	}
	if user["email"] != "user@example.com" {
		t.Fatalf("expected email in response, got %v", user["email"])
	}
	if user["role"] != auth.RoleUser {
		t.Fatalf("expected role %q, got %v", auth.RoleUser, user["role"])
	}
	if user["subscription_tier"] != "free" {
		t.Fatalf("expected free tier, got %v", user["subscription_tier"])
	}

	claims, errVerify := env.codec.Verify(cookie.Value)
	if errVerify != nil {
		t.Fatalf("cookie token should verify, got %v", errVerify)
	}
	if claims.UserID != "user@example.com" {
		t.Fatalf("expected user_id=email, got %q", claims.UserID)
	}
	if claims.Extra[auth.ClaimUserDBID] != user["id"] {
		t.Fatalf("expected user_db_id claim %v, got %q", user["id"], claims.Extra[auth.ClaimUserDBID])
	}
}

func TestRepeatLoginBindsSameUser(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	_, first := env.login(t)
	_, second := env.login(t)

	firstUser := first["user"].(map[string]any)
	secondUser := second["user"].(map[string]any)
	if firstUser["id"] != secondUser["id"] {
		t.Fatalf("expected same user id across logins, got %v and %v", firstUser["id"], secondUser["id"])
	}
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	paths := []string{"/v1/users/me", "/v1/users/me/usage", "/v1/users/profile", "/v1/auth/me"}
	for _, path := range paths {
		rec := env.do(http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without cookie, got %d", path, rec.Code)
		}
	}

	rec := env.do(http.MethodPost, "/v1/auth/logout", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("logout: expected 401 without cookie, got %d", rec.Code)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	env.login(t)

	env.codec.Now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	stale, errIssue := env.codec.Issue("user@example.com", "user@example.com", nil)
	if errIssue != nil {
		t.Fatalf("issue stale token: %v", errIssue)
	}
	env.codec.Now = nil

	cookie := &http.Cookie{Name: session.CookieName, Value: stale}
	rec := env.do(http.MethodGet, "/v1/users/me", "", cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired session, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid or expired session") {
		t.Fatalf("expected generic session error, got %s", rec.Body.String())
	}
}

func TestLogoutClearsCookieButTokenStaysValid(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	cookie, _ := env.login(t)

	rec := env.do(http.MethodPost, "/v1/auth/logout", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cleared = c
		}
	}
	if cleared == nil {
		t.Fatalf("expected clearing cookie on logout")
	}
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("expected empty expired cookie, got value=%q max-age=%d", cleared.Value, cleared.MaxAge)
	}

	// Logout is client-side only: a retained token keeps working until expiry.
	rec = env.do(http.MethodGet, "/v1/users/me", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retained token to stay valid, got %d", rec.Code)
	}
}

func TestSessionIntrospection(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	rec := env.do(http.MethodGet, "/v1/auth/session", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous session check: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"authenticated":false`) {
		t.Fatalf("expected authenticated=false, got %s", rec.Body.String())
	}

	cookie, _ := env.login(t)
	rec = env.do(http.MethodGet, "/v1/auth/session", "", cookie)
	if !strings.Contains(rec.Body.String(), `"authenticated":true`) {
		t.Fatalf("expected authenticated=true, got %s", rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/v1/auth/session", "", &http.Cookie{Name: session.CookieName, Value: "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("present-but-invalid cookie: expected 401, got %d", rec.Code)
	}
}

func TestLoginRejectsBadAssertion(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	rec := env.do(http.MethodPost, "/v1/auth/google", `{"id_token":"forged"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged assertion, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/v1/auth/google", `{"id_token":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty token, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/v1/auth/google", `{not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rec.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	cookie, _ := env.login(t)

	rec := env.do(http.MethodGet, "/v1/users/me/usage", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode usage: %v", errDecode)
	}
	if body["queries_used"] != float64(0) {
		t.Fatalf("expected 0 queries used, got %v", body["queries_used"])
	}
	if body["queries_limit"] != float64(10) {
		t.Fatalf("expected limit 10, got %v", body["queries_limit"])
	}
	if body["remaining_queries"] != float64(10) {
		t.Fatalf("expected 10 remaining, got %v", body["remaining_queries"])
	}
	if body["can_make_query"] != true {
		t.Fatalf("expected can_make_query=true, got %v", body["can_make_query"])
	}
}

func TestProfileEndpointWrapsUser(t *testing.T) {
	env := newTestEnv(t, nil, 0)
	cookie, _ := env.login(t)

	rec := env.do(http.MethodGet, "/v1/users/profile", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode profile: %v", errDecode)
	}
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected wrapped user object, got %v", body)
	}
	if user["name"] != "Test User" {
		t.Fatalf("expected profile snapshot name, got %v", user["name"])
	}
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, ratelimit.NewMemoryLimiter(), 2)

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/v1/auth/google", `{"id_token":"`+testAssertion+`"}`, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := env.do(http.MethodPost, "/v1/auth/google", `{"id_token":"`+testAssertion+`"}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("expected rate limit header, got %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil, 0)

	rec := env.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected ok status, got %s", rec.Body.String())
	}
}
