package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/doctrack/doctrack/internal/oidc"
	"github.com/doctrack/doctrack/internal/sessions"
	"github.com/doctrack/doctrack/internal/tokens"
	"github.com/doctrack/doctrack/internal/users"
	"github.com/doctrack/doctrack/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authRig struct {
	g         *gin.Engine
	blacklist *sessions.Blacklist
}

func newAuthRig(t *testing.T) *authRig {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	issuer := tokens.NewIssuer("test-secret", 15*time.Minute)
	bl := sessions.NewBlacklist(client, "test:blacklist:")
	h := NewAuthHandler(
		users.NewService(users.NewMemoryUserRepository()),
		sessions.NewService(sessions.NewMemoryRepository(), time.Hour),
		issuer,
		bl,
	)

	gin.SetMode(gin.TestMode)
	g := gin.New()
	ver := middleware.FirstOf{issuer, oidc.NewInsecureVerifier()}
	h.Register(g.Group("", middleware.AuthMiddleware(ver, middleware.WithRevocations(bl))))
	return &authRig{g: g, blacklist: bl}
}

// idpToken builds an unsigned identity token with the given claims.
func idpToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(claims)
	require.NoError(t, err)
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"none"}`)) + "." + enc(b) + "."
}

func (r *authRig) call(method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.g.ServeHTTP(w, req)
	return w
}

type beginResponse struct {
	AccessToken string `json:"accessToken"`
	Generation  int64  `json:"generation"`
	ExpiresIn   int    `json:"expiresIn"`
}

func (r *authRig) begin(t *testing.T, bearer string) beginResponse {
	t.Helper()
	w := r.call(http.MethodPost, "/auth/session", bearer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out beginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sessionState(t *testing.T, w *httptest.ResponseRecorder) sessions.State {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		State sessions.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.State
}

func TestSessionLifecycle(t *testing.T) {
	r := newAuthRig(t)
	idp := idpToken(t, map[string]interface{}{
		"sub": "alice", "email": "alice@example.org", "name": "Alice",
		"department": "IT", "exp": time.Now().Add(time.Hour).Unix(),
	})

	first := r.begin(t, idp)
	assert.Equal(t, int64(1), first.Generation)
	assert.NotEmpty(t, first.AccessToken)
	assert.Equal(t, 900, first.ExpiresIn)

	// a login elsewhere supersedes the first one
	second := r.begin(t, idp)
	assert.Equal(t, int64(2), second.Generation)

	assert.Equal(t, sessions.StateSuperseded, sessionState(t, r.call(http.MethodGet, "/auth/session/1", second.AccessToken)))
	assert.Equal(t, sessions.StateActive, sessionState(t, r.call(http.MethodGet, "/auth/session/2", second.AccessToken)))
	assert.Equal(t, sessions.StateExpired, sessionState(t, r.call(http.MethodGet, "/auth/session/3", second.AccessToken)))

	w := r.call(http.MethodGet, "/auth/me", second.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"department":"IT"`)

	w = r.call(http.MethodDelete, "/auth/session/2", second.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ended":true}`, w.Body.String())

	// the signed-out token is blacklisted
	w = r.call(http.MethodGet, "/auth/me", second.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")

	assert.Equal(t, sessions.StateExpired, sessionState(t, r.call(http.MethodGet, "/auth/session/2", first.AccessToken)))
}

func TestSessionEndingSupersededGenerationIsNoop(t *testing.T) {
	r := newAuthRig(t)
	idp := idpToken(t, map[string]interface{}{"sub": "bob", "department": "HR"})
	r.begin(t, idp)
	second := r.begin(t, idp)

	w := r.call(http.MethodDelete, "/auth/session/1", idp)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ended":false}`, w.Body.String())
	assert.Equal(t, sessions.StateActive, sessionState(t, r.call(http.MethodGet, "/auth/session/2", second.AccessToken)))
}

func TestSessionRoutesRejectBadInput(t *testing.T) {
	r := newAuthRig(t)
	tests := []struct {
		name, method, path, bearer string
		want                       int
	}{
		{"no bearer", http.MethodPost, "/auth/session", "", http.StatusUnauthorized},
		{"garbage bearer", http.MethodPost, "/auth/session", "not-a-token", http.StatusUnauthorized},
		{"bad generation", http.MethodGet, "/auth/session/abc", idpToken(t, map[string]interface{}{"sub": "x"}), http.StatusBadRequest},
		{"zero generation", http.MethodDelete, "/auth/session/0", idpToken(t, map[string]interface{}{"sub": "x"}), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := r.call(tc.method, tc.path, tc.bearer)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestExpiryFromClaims(t *testing.T) {
	assert.Equal(t, time.Unix(100, 0), expiryFromClaims(map[string]interface{}{"exp": float64(100)}))
	assert.Equal(t, time.Unix(7, 0), expiryFromClaims(map[string]interface{}{"exp": json.Number("7")}))
	assert.True(t, expiryFromClaims(nil).IsZero())
}
