package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoTerminal means the stream ended before a result or error record.
var ErrNoTerminal = errors.New("progress: stream ended without a terminal record")

// Event is one decoded record. Exactly one field is set.
type Event struct {
	Log    *string         `json:"log,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

func (e Event) Terminal() bool { return e.Result != nil || e.Error != nil }

// Reader decodes a progress stream regardless of how the transport chunks it.
// Only complete newline-terminated lines are parsed.
type Reader struct {
	br   *bufio.Reader
	done bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next event. After the terminal event it returns io.EOF. A
// stream that ends early yields ErrNoTerminal.
func (r *Reader) Next() (Event, error) {
	if r.done {
		return Event{}, io.EOF
	}
	for {
		line, err := r.br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// trailing bytes without a newline are an incomplete record
				return Event{}, ErrNoTerminal
			}
			return Event{}, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, fmt.Errorf("progress: bad record %q: %w", line, err)
		}
		if ev.Terminal() {
			r.done = true
		}
		return ev, nil
	}
}

// ReadAll collects every event up to and including the terminal one.
func ReadAll(r io.Reader) ([]Event, error) {
	pr := NewReader(r)
	var out []Event
	for {
		ev, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
