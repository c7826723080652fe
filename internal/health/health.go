// Package health reports whether each installed service answers on the
// internal network.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	Online  Status = "online"
	Error   Status = "error"
	Offline Status = "offline"
	Unknown Status = "unknown"
)

const DefaultTimeout = 2 * time.Second

// Checker probes services by slug using their internal URLs.
type Checker struct {
	urls    map[string]string
	client  *http.Client
	timeout time.Duration
}

func NewChecker(internalURLs map[string]string, client *http.Client) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Checker{urls: internalURLs, client: client, timeout: DefaultTimeout}
}

// Check sends a HEAD request. 2xx, 401 and 404 mean the service is up.
func (c *Checker) Check(ctx context.Context, slug string) Status {
	url, ok := c.urls[slug]
	if !ok {
		return Unknown
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Offline
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return Offline
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusNotFound:
		return Online
	default:
		return Error
	}
}

// StatusAll probes every slug concurrently and waits for all of them.
func (c *Checker) StatusAll(ctx context.Context, slugs []string) map[string]Status {
	out := make(map[string]Status, len(slugs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, slug := range slugs {
		slug := slug
		g.Go(func() error {
			st := c.Check(gctx, slug)
			mu.Lock()
			out[slug] = st
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
