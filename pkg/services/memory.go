// pkg/services/memory.go
package services

import (
	"context"
	"sync"
	"time"
)

type memStore struct {
	mu     sync.RWMutex
	rows   []Descriptor
	bySlug map[string]int
	nextID int64
}

// NewMemoryStore is the dev fallback used when DATABASE_URL is not configured.
func NewMemoryStore() Store {
	return &memStore{bySlug: map[string]int{}}
}

func (m *memStore) EnsureSchema(context.Context) error { return nil }

func (m *memStore) Upsert(_ context.Context, d Descriptor) error {
	if d.Slug == "" {
		return ErrInvalidSlug
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.bySlug[d.Slug]; ok {
		cur := &m.rows[i]
		cur.URL = d.URL
		if d.LoginPath != nil {
			lp := *d.LoginPath
			cur.LoginPath = &lp
		}
		if d.Name != "" {
			cur.Name = d.Name
		}
		if d.Icon != "" {
			cur.Icon = d.Icon
		}
		if d.Description != "" {
			cur.Description = d.Description
		}
		cur.Status = StatusActive
		return nil
	}
	m.nextID++
	d.ID = m.nextID
	d.Status = StatusActive
	d.CreatedAt = time.Now()
	if d.LoginPath != nil {
		lp := *d.LoginPath
		d.LoginPath = &lp
	}
	m.bySlug[d.Slug] = len(m.rows)
	m.rows = append(m.rows, d)
	return nil
}

func (m *memStore) List(context.Context) ([]Descriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *memStore) IsInstalled(context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows) > 0, nil
}

type memClaimer struct {
	mu      sync.Mutex
	claimed bool
}

func NewMemoryClaimer() Claimer { return &memClaimer{} }

func (c *memClaimer) Claim(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimed {
		return false, nil
	}
	c.claimed = true
	return true, nil
}

func (c *memClaimer) Release(context.Context) error {
	c.mu.Lock()
	c.claimed = false
	c.mu.Unlock()
	return nil
}
