package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackmgr/internal/progress"
)

func setupServer(t *testing.T, fail string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			_, _ = w.Write([]byte(`{"installed":true}`))
		case "/api/setup":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a@b.com", body["email"])
			progress.StartHTTP(w)
			pw := progress.NewWriter(w)
			_ = pw.Log("🚀 Starting Setup...")
			if fail != "" {
				_ = pw.Error(fail)
				return
			}
			_ = pw.Result(map[string]any{"status": "success", "auth": nil})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunInstall(t *testing.T) {
	t.Parallel()
	srv := setupServer(t, "")
	var out bytes.Buffer
	require.NoError(t, runInstall(context.Background(), srv.Client(), srv.URL+"/", "a@b.com", "pw", &out))
	assert.Equal(t, "🚀 Starting Setup...\ninstallation success (no admin session issued)\n", out.String())
}

func TestRunInstall_ErrorRecord(t *testing.T) {
	t.Parallel()
	srv := setupServer(t, "system is already installed")
	var out bytes.Buffer
	err := runInstall(context.Background(), srv.Client(), srv.URL, "a@b.com", "pw", &out)
	require.Error(t, err)
	assert.Equal(t, "installation failed: system is already installed", err.Error())
}

func TestRunStatus(t *testing.T) {
	t.Parallel()
	srv := setupServer(t, "")
	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), srv.Client(), srv.URL, &out))
	assert.Equal(t, "installed: true\n", out.String())
}

func TestRoot_Commands(t *testing.T) {
	t.Parallel()
	root := Root()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"install", "status"}, names)

	root.SetArgs([]string{"install", "--url", "http://127.0.0.1:1"})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}
