package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/asset"
	"github.com/yanizio/siteconf/internal/auth"
	"github.com/yanizio/siteconf/internal/content"
	"github.com/yanizio/siteconf/internal/mail"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/objstore"
	"github.com/yanizio/siteconf/internal/requestinfo"
	"github.com/yanizio/siteconf/internal/session"
	"github.com/yanizio/siteconf/internal/tenant"
)

/*──────────────────────────── harness ─────────────────────────────────────*/

var cheap = auth.Hasher{P: auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}}

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Send(_ context.Context, m mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return nil
}

func (o *outbox) token(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	text := o.msgs[len(o.msgs)-1].Text
	i := strings.Index(text, "https://")
	require.GreaterOrEqual(t, i, 0)
	u, err := url.Parse(strings.Fields(text[i:])[0])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type harness struct {
	h        http.Handler
	meta     *meta.MemStore
	objs     *objstore.Memory
	mail     *outbox
	accounts *auth.Service
	clock    time.Time
}

type option func(*Deps)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	ctx := context.Background()

	hs := &harness{
		meta:  meta.NewMemStore(),
		objs:  objstore.NewMemory(),
		mail:  &outbox{},
		clock: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, hs.meta.CreateDomain(ctx, &meta.Domain{Domain: "acme.com", ConfigID: "acme", IsActive: true}))

	svc := auth.NewService(hs.meta, hs.mail, auth.Options{
		ResetLinkBase: "https://editor.example.com/reset",
		Hasher:        cheap,
		Now:           func() time.Time { return hs.clock },
	}, nil)
	hs.accounts = svc
	hosts := tenant.NewHostCache(hs.meta, tenant.CacheOptions{TTL: time.Minute}, nil)
	t.Cleanup(hosts.Close)

	cookies := session.Cookies{Insecure: true}
	enrich, err := requestinfo.New("")
	require.NoError(t, err)

	d := Deps{
		Identities: tenant.NewResolver(svc, hosts, tenant.ResolverOptions{Cookies: cookies}, nil),
		Composer:   content.NewComposer(hs.objs, nil),
		Saver:      content.NewCoordinator(hs.objs, nil),
		Assets:     asset.NewResolver(hs.objs, nil),
		Accounts:   svc,
		Cookies:    cookies,
		Enrich:     enrich.Middleware,
	}
	for _, o := range opts {
		o(&d)
	}
	hs.h = NewRouter(d)
	return hs
}

func (hs *harness) do(t *testing.T, method, target, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, m := range mods {
		m(req)
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func errKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	m := decodeMap(t, rec)
	assert.Equal(t, false, m["success"])
	e, ok := m["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return e["kind"].(string)
}

// signupAndLogin returns the session cookie for a fresh user of code.
func (hs *harness) signupAndLogin(t *testing.T, email, code string) (*http.Cookie, string) {
	t.Helper()
	rec := hs.do(t, http.MethodPost, "http://editor.local/api/auth/signup",
		`{"email":"`+email+`","password":"correct horse","code":"`+code+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/login",
		`{"email":"`+email+`","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	m := decodeMap(t, rec)
	assert.Equal(t, cookie.Value, m["token"])
	return cookie, cookie.Value
}

/*──────────────────────────── config ──────────────────────────────────────*/

func TestGetConfig_ByHost(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.objs.Put(context.Background(), "acme/colors", []byte(`{"primary":"#123"}`), "application/json"))

	rec := hs.do(t, http.MethodGet, "http://www.ACME.com:8080/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	m := decodeMap(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, map[string]any{"primary": "#123"}, m["colors"])
	assert.Nil(t, m["about_page"])
}

func TestGetConfig_UnknownHostIsNotFound(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "http://nowhere.example/api/config", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errKind(t, rec))
}

/*──────────────────────────── auth + save ─────────────────────────────────*/

func TestSessionLifecycle(t *testing.T) {
	hs := newHarness(t)
	cookie, _ := hs.signupAndLogin(t, "owner@beta.com", "beta")

	rec := hs.do(t, http.MethodPost, "http://nowhere.example/api/config",
		`{"fragments":{"colors":{"primary":"#111"}}}`, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decodeMap(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Len(t, m["results"], 1)

	// The session beats the (unknown) hostname.
	rec = hs.do(t, http.MethodGet, "http://nowhere.example/api/config", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"primary": "#111"}, decodeMap(t, rec)["colors"])

	rec = hs.do(t, http.MethodGet, "http://editor.local/api/auth/session", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "beta", decodeMap(t, rec)["tenantId"])

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/logout", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)

	rec = hs.do(t, http.MethodGet, "http://editor.local/api/auth/session", "", withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = hs.do(t, http.MethodPost, "http://nowhere.example/api/config",
		`{"fragments":{"colors":{}}}`, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out twice is fine.
	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/logout", "", withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSave_ExpiredSessionIsUnauthorized(t *testing.T) {
	hs := newHarness(t)
	cookie, token := hs.signupAndLogin(t, "owner@beta.com", "beta")
	bundle := `{"fragments":{"colors":{"primary":"#111"}}}`

	rec := hs.do(t, http.MethodPost, "http://editor.local/api/config", bundle, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Default session lifetime is seven days.
	hs.clock = hs.clock.Add(7*24*time.Hour + time.Second)

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/config", bundle, withBearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "auth", errKind(t, rec))

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/config", bundle, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSave_GateAndValidation(t *testing.T) {
	hs := newHarness(t)
	_, token := hs.signupAndLogin(t, "owner@beta.com", "beta")
	bundle := `{"fragments":{"services":[{"name":"Tours"}]}}`

	rec := hs.do(t, http.MethodPost, "http://acme.com/api/config", bundle)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "host never authorizes a write")
	assert.Equal(t, "auth", errKind(t, rec))

	rec = hs.do(t, http.MethodPost, "http://acme.com/api/config?tenant=acme", bundle, withBearer(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "other tenant")

	rec = hs.do(t, http.MethodPost, "http://acme.com/api/config", `{"fragments":`, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errKind(t, rec))
	assert.NotContains(t, rec.Body.String(), "unexpected EOF")

	rec = hs.do(t, http.MethodPost, "http://acme.com/api/config", bundle, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	obj, err := hs.objs.Get(context.Background(), "beta/services")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Tours"}]`, string(obj.Data))
}

type partialSaver struct{}

func (partialSaver) Save(context.Context, *meta.User, string, content.Bundle) (*content.SaveResult, error) {
	return &content.SaveResult{Results: []content.KeyResult{
			{Key: "beta/colors", Kind: content.KindFragment, Name: "colors", OK: true},
			{Key: "beta/services", Kind: content.KindFragment, Name: "services", Error: "write failed"},
		}},
		&apperr.Error{Kind: apperr.KindPartial, Op: "test", Msg: "1 of 2 writes failed"}
}

func TestSave_PartialFailureIsMultiStatus(t *testing.T) {
	hs := newHarness(t, func(d *Deps) { d.Saver = partialSaver{} })
	_, token := hs.signupAndLogin(t, "owner@beta.com", "beta")

	rec := hs.do(t, http.MethodPost, "http://x/api/config", `{"fragments":{"colors":{}}}`, withBearer(token))
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Equal(t, "partial_failure", errKind(t, rec))

	m := decodeMap(t, rec)
	results := m["results"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "write failed", results[1].(map[string]any)["error"])
}

/*──────────────────────────── assets ──────────────────────────────────────*/

func TestGetAsset_CachingHeaders(t *testing.T) {
	hs := newHarness(t)
	require.NoError(t, hs.objs.Put(context.Background(), "acme/assets/img/logo.png", []byte{0x89, 'P'}, ""))

	rec := hs.do(t, http.MethodGet, "http://acme.com/api/assets/img/logo.png?v=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, asset.CacheImmutable, rec.Header().Get("Cache-Control"))
	assert.Equal(t, `"3"`, rec.Header().Get("ETag"))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 'P'}, rec.Body.Bytes())

	rec = hs.do(t, http.MethodGet, "http://acme.com/api/assets/img/logo.png?v=3", "",
		func(r *http.Request) { r.Header.Set("If-None-Match", `"3"`) })
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())

	rec = hs.do(t, http.MethodGet, "http://acme.com/api/assets/img/logo.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, asset.CacheRevalidate, rec.Header().Get("Cache-Control"))

	// Explicit tenant path works from any host.
	rec = hs.do(t, http.MethodGet, "http://nowhere.example/api/assets/acme/assets/img/logo.png", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = hs.do(t, http.MethodGet, "http://acme.com/api/assets/img/missing.png", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

/*──────────────────────────── password reset ──────────────────────────────*/

func TestPasswordReset(t *testing.T) {
	hs := newHarness(t)
	hs.signupAndLogin(t, "owner@beta.com", "beta")

	known := hs.do(t, http.MethodPost, "http://editor.local/api/auth/password/forgot", `{"email":"owner@beta.com"}`)
	unknown := hs.do(t, http.MethodPost, "http://editor.local/api/auth/password/forgot", `{"email":"ghost@beta.com"}`)
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	hs.accounts.Wait()
	tok := hs.mail.token(t)
	body := `{"token":"` + tok + `","password":"new password 1"}`

	rec := hs.do(t, http.MethodPost, "http://editor.local/api/auth/password/reset", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/password/reset", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/login",
		`{"email":"owner@beta.com","password":"new password 1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

/*──────────────────────────── misc ────────────────────────────────────────*/

func TestAuth_RequiredFieldsAndConflicts(t *testing.T) {
	hs := newHarness(t)

	rec := hs.do(t, http.MethodPost, "http://editor.local/api/auth/login", `{"email":"a@b.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is required")

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/login", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	hs.signupAndLogin(t, "owner@beta.com", "beta")
	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/signup",
		`{"email":"other@beta.com","password":"correct horse","code":"beta"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "code already used")

	rec = hs.do(t, http.MethodPost, "http://editor.local/api/auth/login",
		`{"email":"owner@beta.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_RateLimited(t *testing.T) {
	hs := newHarness(t, func(d *Deps) { d.AuthRatePerMinute = 2 })
	body := `{"email":"a@b.com","password":"whatever1"}`

	for n := 0; n < 2; n++ {
		rec := hs.do(t, http.MethodPost, "http://editor.local/api/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := hs.do(t, http.MethodPost, "http://editor.local/api/auth/login", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errKind(t, rec))

	// Non-auth routes are not limited.
	rec = hs.do(t, http.MethodGet, "http://acme.com/api/config", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_CredentialsOnlyForConfiguredOrigins(t *testing.T) {
	withOrigin := func(r *http.Request) { r.Header.Set("Origin", "https://editor.example.com") }

	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "http://acme.com/healthz", "", withOrigin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	hs = newHarness(t, func(d *Deps) { d.CORSOrigins = []string{"https://editor.example.com"} })
	rec = hs.do(t, http.MethodGet, "http://acme.com/healthz", "", withOrigin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://editor.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = hs.do(t, http.MethodGet, "http://acme.com/healthz", "",
		func(r *http.Request) { r.Header.Set("Origin", "https://evil.example") })
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "http://x/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = hs.do(t, http.MethodGet, "http://x/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "siteconf_")

	rec = hs.do(t, http.MethodGet, "http://x/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
