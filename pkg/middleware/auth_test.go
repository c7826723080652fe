package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackmgr/pkg/logger"
)

type realmKeys struct {
	priv jwk.Key
	url  string
}

func newRealmKeys(t *testing.T) realmKeys {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, priv.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, priv.Set(jwk.AlgorithmKey, jwa.RS256))

	pub, err := jwk.PublicKeyOf(priv)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, "k1"))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return realmKeys{priv: priv, url: srv.URL}
}

func (k realmKeys) sign(t *testing.T, issuer string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject("user-1").
		Expiration(exp).
		Claim("email", "a@b.com").
		Claim("preferred_username", "a@b.com").
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, k.priv))
	require.NoError(t, err)
	return string(signed)
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	keys := newRealmKeys(t)
	const internal = "http://keycloak:8080/realms/startup-stack"
	const public = "http://auth.lvh.me/realms/startup-stack"

	var seen User
	h := JWTAuth(AuthConfig{JWKSURL: keys.url, Issuers: []string{internal, public}}, logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = UserFrom(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"internal issuer", "Bearer " + keys.sign(t, internal, time.Now().Add(time.Hour)), http.StatusNoContent},
		{"public issuer", "Bearer " + keys.sign(t, public+"/", time.Now().Add(time.Hour)), http.StatusNoContent},
		{"foreign issuer", "Bearer " + keys.sign(t, "http://evil/realms/x", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + keys.sign(t, internal, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.code, rec.Code, tc.name)
		if tc.code == http.StatusUnauthorized {
			assert.Contains(t, rec.Body.String(), `"error"`, tc.name)
		}
	}
	assert.Equal(t, "user-1", seen.Subject)
	assert.Equal(t, "a@b.com", seen.Email)
}

func TestJWTAuth_JWKSUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := JWTAuth(AuthConfig{JWKSURL: url, Issuers: []string{"x"}}, logger.Nop())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var got string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, got)
	assert.Equal(t, got, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "fixed")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "fixed", got)
}

func TestRecover(t *testing.T) {
	t.Parallel()
	h := Recover(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
