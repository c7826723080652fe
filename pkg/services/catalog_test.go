package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog_Descriptors(t *testing.T) {
	rows := DefaultCatalog().Descriptors("lvh.me")
	require.Len(t, rows, 3)

	assert.Equal(t, "keycloak", rows[0].Slug)
	assert.Equal(t, "http://auth.lvh.me", rows[0].URL)
	assert.Nil(t, rows[0].LoginPath)

	assert.Equal(t, "http://chat.lvh.me", rows[1].URL)

	assert.Equal(t, "forgejo", rows[2].Slug)
	require.NotNil(t, rows[2].LoginPath)
	assert.Equal(t, "/user/oauth2/keycloak", *rows[2].LoginPath)
}

func TestCatalog_LogsAllowed(t *testing.T) {
	c := DefaultCatalog()
	assert.True(t, c.LogsAllowed("forgejo"))
	assert.True(t, c.LogsAllowed("traefik"))
	assert.False(t, c.LogsAllowed("forgejo-db"))
	assert.False(t, c.LogsAllowed(""))
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - name: Wiki
    slug: bookstack
    subdomain: wiki
    icon: Book
    description: Docs
    internal_url: http://bookstack:80
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Services, 1)
	assert.Equal(t, "http://wiki.example.org", c.Descriptors("example.org")[0].URL)
	assert.Equal(t, map[string]string{"bookstack": "http://bookstack:80"}, c.InternalURLs())
	assert.Equal(t, DefaultCatalog().LogAllowList, c.LogAllowList)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	dir := t.TempDir()

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("services:\n  - slug: a\n  - slug: a\n"), 0o600))
	_, err := LoadCatalog(dup)
	assert.ErrorContains(t, err, "duplicate slug")

	noSlug := filepath.Join(dir, "noslug.yaml")
	require.NoError(t, os.WriteFile(noSlug, []byte("services:\n  - name: x\n"), 0o600))
	_, err = LoadCatalog(noSlug)
	assert.ErrorIs(t, err, ErrInvalidSlug)

	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), c)
}
