// Package progress frames an installation run as newline-delimited JSON: any
// number of {"log": ...} records followed by exactly one {"result": ...} or
// {"error": ...} record.
package progress

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
)

const ContentType = "application/x-ndjson"

// ErrClosed is returned by writes after the terminal record.
var ErrClosed = errors.New("progress: stream closed")

type record struct {
	Log    *string `json:"log,omitempty"`
	Result any     `json:"result,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// Writer is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	flush  func() error
	closed bool
}

// NewWriter wraps w. When w is an http.ResponseWriter every record is flushed
// to the client as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	pw := &Writer{w: w, flush: func() error { return nil }}
	if rw, ok := w.(http.ResponseWriter); ok {
		rc := http.NewResponseController(rw)
		pw.flush = func() error {
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
			return nil
		}
	}
	return pw
}

// StartHTTP sets the streaming headers. Call before the first record.
func StartHTTP(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
}

func (p *Writer) Log(line string) error {
	return p.write(record{Log: &line}, false)
}

// Result writes the terminal success record.
func (p *Writer) Result(v any) error {
	if v == nil {
		v = struct{}{}
	}
	return p.write(record{Result: v}, true)
}

// Error writes the terminal failure record.
func (p *Writer) Error(msg string) error {
	return p.write(record{Error: &msg}, true)
}

// Closed reports whether a terminal record has been written.
func (p *Writer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Writer) write(r record, terminal bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if terminal {
		p.closed = true
	}
	if _, err := p.w.Write(b); err != nil {
		return err
	}
	return p.flush()
}
