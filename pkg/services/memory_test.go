package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestMemoryStore_InstalledGuardMonotonic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	installed, err := s.IsInstalled(ctx)
	require.NoError(t, err)
	assert.False(t, installed)

	require.NoError(t, s.Upsert(ctx, Descriptor{Name: "Chat", Slug: "mattermost", URL: "http://chat.lvh.me"}))
	installed, err = s.IsInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, installed)

	// a failing call afterwards does not reset the guard
	assert.ErrorIs(t, s.Upsert(ctx, Descriptor{Name: "broken"}), ErrInvalidSlug)
	installed, err = s.IsInstalled(ctx)
	require.NoError(t, err)
	assert.True(t, installed)
}

func TestMemoryStore_UpsertUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Upsert(ctx, Descriptor{Name: "Git", Slug: "forgejo", URL: "http://git.a", Icon: "GitGraph", LoginPath: strp("/user/oauth2/keycloak")}))
	require.NoError(t, s.Upsert(ctx, Descriptor{Name: "Chat", Slug: "mattermost", URL: "http://chat.a"}))
	require.NoError(t, s.Upsert(ctx, Descriptor{Slug: "forgejo", URL: "http://git.b"}))

	rows, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "forgejo", rows[0].Slug)
	assert.Equal(t, "http://git.b", rows[0].URL)
	assert.Equal(t, "Git", rows[0].Name)
	assert.Equal(t, "GitGraph", rows[0].Icon)
	require.NotNil(t, rows[0].LoginPath)
	assert.Equal(t, "/user/oauth2/keycloak", *rows[0].LoginPath)
	assert.Equal(t, StatusActive, rows[0].Status)
	assert.Equal(t, "mattermost", rows[1].Slug)
	assert.Less(t, rows[0].ID, rows[1].ID)
}

func TestMemoryStore_SlugUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rng := rand.New(rand.NewSource(42))
	slugs := []string{"keycloak", "mattermost", "forgejo", "bookstack"}
	last := map[string]string{}

	for i := 0; i < 200; i++ {
		slug := slugs[rng.Intn(len(slugs))]
		url := fmt.Sprintf("http://%s-%d", slug, i)
		require.NoError(t, s.Upsert(ctx, Descriptor{Name: slug, Slug: slug, URL: url}))
		last[slug] = url
	}

	rows, err := s.List(ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, r := range rows {
		assert.False(t, seen[r.Slug], "duplicate slug %s", r.Slug)
		seen[r.Slug] = true
		assert.Equal(t, last[r.Slug], r.URL)
	}
	assert.Len(t, rows, len(last))
}

func TestMemoryStore_ListReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, Descriptor{Name: "Chat", Slug: "mattermost", URL: "http://chat.a"}))

	rows, _ := s.List(ctx)
	rows[0].URL = "mutated"

	again, _ := s.List(ctx)
	assert.Equal(t, "http://chat.a", again[0].URL)
}

func TestMemoryClaimer_SingleHolder(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClaimer()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Claim(ctx)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)

	require.NoError(t, c.Release(ctx))
	ok, err := c.Claim(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
