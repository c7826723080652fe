package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSecret string

func (s staticSecret) ClientSecret(context.Context, string) (string, error) {
	if s == "" {
		return "", errors.New("client not found")
	}
	return string(s), nil
}

func tokenServer(t *testing.T, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		check(r)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"token_type":    "Bearer",
			"expires_in":    300,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPasswordSession(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, func(r *http.Request) {
		assert.Equal(t, "/realms/r/protocol/openid-connect/token", r.URL.Path)
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "manager-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "sekret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "a@b.com", r.PostForm.Get("username"))
		assert.Equal(t, "openid", r.PostForm.Get("scope"))
	})
	iss := NewTokenIssuer(srv.URL+"/realms/r", "manager-client", staticSecret("sekret"))
	iss.HTTPClient = srv.Client()

	s, err := iss.PasswordSession(context.Background(), "a@b.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, &Session{AccessToken: "at", RefreshToken: "rt"}, s)
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()
	srv := tokenServer(t, func(r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "manager-client", user)
		assert.Equal(t, "sekret", pass)
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "c0de", r.PostForm.Get("code"))
		assert.Equal(t, "http://dashboard.lvh.me/login", r.PostForm.Get("redirect_uri"))
	})
	iss := NewTokenIssuer(srv.URL+"/realms/r", "manager-client", staticSecret("sekret"))
	iss.HTTPClient = srv.Client()

	s, err := iss.ExchangeCode(context.Background(), "c0de", "http://dashboard.lvh.me/login")
	require.NoError(t, err)
	assert.Equal(t, "at", s.AccessToken)
}

func TestTokenIssuer_Errors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	iss := NewTokenIssuer(srv.URL, "manager-client", staticSecret("sekret"))
	iss.HTTPClient = srv.Client()
	_, err := iss.PasswordSession(context.Background(), "a", "b")
	require.Error(t, err)
	assert.True(t, Rejected(err))

	iss.Secrets = staticSecret("")
	_, err = iss.ExchangeCode(context.Background(), "x", "y")
	require.Error(t, err)
	assert.False(t, Rejected(err))
}
