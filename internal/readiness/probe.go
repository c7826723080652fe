package readiness

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Probe is a single readiness check against some target.
type Probe interface {
	Target() string
	Check(ctx context.Context) (bool, error)
}

// HTTPProbe succeeds when the target answers with a status below 500.
type HTTPProbe struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration // per attempt, defaults to 2s
}

func (p HTTPProbe) Target() string { return p.URL }

func (p HTTPProbe) Check(ctx context.Context) (bool, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError, nil
}

// Capturer runs a shell command inside a named service and returns its output.
type Capturer interface {
	Capture(ctx context.Context, service, user string, commands ...string) (string, error)
}

const fileMarker = "MARKER_FOUND"

// FileProbe succeeds when Path exists inside the running Service. With Socket
// set the path must be a unix socket, otherwise any existing path counts.
type FileProbe struct {
	Service string
	Path    string
	Socket  bool
	Exec    Capturer
}

func (p FileProbe) Target() string { return p.Service + ":" + p.Path }

func (p FileProbe) Check(ctx context.Context) (bool, error) {
	test := "-e"
	if p.Socket {
		test = "-S"
	}
	cmd := fmt.Sprintf(`if [ %s "%s" ]; then echo "%s"; fi`, test, p.Path, fileMarker)
	out, err := p.Exec.Capture(ctx, p.Service, "", cmd)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, fileMarker), nil
}
