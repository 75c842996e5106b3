package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/driveclone/apiserver/internal/httpx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateFixture struct {
	clock *fakeClock
	codec *Codec
	gate  *Gate
	hits  int
	seen  Identity
}

func newGateFixture(t *testing.T, cfg GateConfig) *gateFixture {
	t.Helper()
	f := &gateFixture{clock: &fakeClock{now: time.Unix(1_700_000_000, 0)}}
	f.codec = newTestCodec(t, f.clock)
	f.gate = NewGate(f.codec, cfg, zerolog.Nop())
	return f
}

func (f *gateFixture) handler() http.Handler {
	return f.gate.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits++
		f.seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorResponse {
	t.Helper()
	var resp httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGate_PreflightPassesThrough(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	rec := httptest.NewRecorder()

	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/files/upload", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.hits)
	assert.Equal(t, Identity{}, f.seen)
}

func TestGate_MissingCredential(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	rec := httptest.NewRecorder()

	f.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/check-auth", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpx.CodeMissingCredential, decodeError(t, rec).Code)
	assert.Zero(t, f.hits)
}

func TestGate_InvalidCredential(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	token, _, err := f.codec.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":  "not-a-token",
		"tampered": token[:len(token)-4] + "AAAA",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tok)

			f.handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, httpx.CodeInvalidCredential, resp.Code)
			assert.Nil(t, resp.Details)
		})
	}
	assert.Zero(t, f.hits)
}

func TestGate_RejectionsAreIndistinguishable(t *testing.T) {
	f := newGateFixture(t, GateConfig{})
	expired, _, err := f.codec.Issue(testIdentity, time.Minute)
	require.NoError(t, err)
	forger, err := NewCodec([]byte("other-secret"), WithClock(f.clock.Now))
	require.NoError(t, err)
	forged, _, err := forger.Issue(testIdentity, time.Hour)
	require.NoError(t, err)
	f.clock.now = f.clock.now.Add(time.Minute)

	bodies := make([]string, 0, 2)
	for _, tok := range []string{expired, forged} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tok})
		f.handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, httpx.CodeInvalidCredential, resp.Code)
		assert.Nil(t, resp.Details)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Zero(t, f.hits)
}

func TestGate_SuccessBindsIdentityWithoutRefresh(t *testing.T) {
	f := newGateFixture(t, GateConfig{TTL: time.Hour})
	token, _, err := f.codec.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	f.handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, f.hits)
	assert.Equal(t, testIdentity, f.seen)
	assert.Empty(t, rec.Result().Cookies())
	assert.Empty(t, rec.Header().Get(RefreshHeader))
}

func TestGate_SlidingRefresh(t *testing.T) {
	cookie := CookieConfig{Secure: true, SameSite: http.SameSiteStrictMode}
	f := newGateFixture(t, GateConfig{Cookie: cookie, TTL: time.Hour, SlidingRefresh: true})
	token, _, err := f.codec.Issue(testIdentity, time.Hour)
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(30 * time.Minute)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	f.handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	refreshed := cookies[0]
	assert.Equal(t, DefaultCookieName, refreshed.Name)
	assert.True(t, refreshed.HttpOnly)
	assert.True(t, refreshed.Secure)
	assert.Equal(t, http.SameSiteStrictMode, refreshed.SameSite)
	assert.Equal(t, 3600, refreshed.MaxAge)

	header := rec.Header().Get(RefreshHeader)
	require.True(t, strings.HasPrefix(header, "Bearer "))
	assert.Equal(t, refreshed.Value, strings.TrimPrefix(header, "Bearer "))

	claims, err := f.codec.Verify(refreshed.Value)
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.Time.Equal(f.clock.now.Add(time.Hour)), "refreshed token gets a full TTL")
	assert.Equal(t, testIdentity, claims.Identity())
}

func TestIdentityFromContext_Empty(t *testing.T) {
	_, ok := IdentityFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestCookieConfig(t *testing.T) {
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite("Lax"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite("none"))
	assert.Equal(t, http.SameSiteStrictMode, ParseSameSite("bogus"))

	rec := httptest.NewRecorder()
	CookieConfig{}.Clear(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Negative(t, cookies[0].MaxAge)
}
