package containers

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackmgr/pkg/logger"
)

type fakeRuntime struct {
	calls  [][]string
	users  []string
	output string
	code   int
	err    error
}

func (f *fakeRuntime) Exec(_ context.Context, service string, cmd []string, user string, out io.Writer) (int, error) {
	f.calls = append(f.calls, append([]string{service}, cmd...))
	f.users = append(f.users, user)
	if f.err != nil {
		return -1, f.err
	}
	_, _ = io.WriteString(out, f.output)
	return f.code, nil
}

func (f *fakeRuntime) Inspect(context.Context, string) (State, error) {
	return State{Exists: true, Running: true}, nil
}
func (f *fakeRuntime) Restart(context.Context, string) error { return nil }
func (f *fakeRuntime) Logs(context.Context, string, int) (string, error) {
	return "", nil
}

func TestExecutor_JoinsCommandsWithAnd(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{output: "ok\n"}
	ex := NewExecutor(rt, logger.Nop())

	out, err := ex.Capture(context.Background(), "forgejo", "", "echo a", "echo b")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
	require.Len(t, rt.calls, 1)
	assert.Equal(t, []string{"forgejo", "/bin/sh", "-c", "echo a && echo b"}, rt.calls[0])
	assert.Equal(t, DefaultUser, rt.users[0])
}

func TestExecutor_NonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{code: 2, output: "partial listing\n"}
	ex := NewExecutor(rt, logger.Nop())

	var sink strings.Builder
	code, err := ex.Stream(context.Background(), "mattermost", "mattermost", []string{"false"}, &sink)
	require.NoError(t, err)
	assert.Equal(t, 2, code)
	assert.Equal(t, "partial listing\n", sink.String())
	assert.Equal(t, "mattermost", rt.users[0])

	out, err := ex.Capture(context.Background(), "forgejo", "", "forgejo admin auth list")
	require.NoError(t, err)
	assert.Equal(t, "partial listing\n", out)
}

func TestExecutor_TransportError(t *testing.T) {
	t.Parallel()
	rt := &fakeRuntime{err: errors.New("no such container")}
	ex := NewExecutor(rt, logger.Nop())

	_, err := ex.Capture(context.Background(), "ghost", "", "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestQuote(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `'plain'`, Quote("plain"))
	assert.Equal(t, `'it'\''s'`, Quote("it's"))
}

func TestLineWriter(t *testing.T) {
	t.Parallel()
	var lines []string
	w := NewLineWriter(func(s string) { lines = append(lines, s) })
	_, _ = w.Write([]byte("one\r\ntw"))
	_, _ = w.Write([]byte("o\n\nthr"))
	w.Flush()
	assert.Equal(t, []string{"one", "two", "thr"}, lines)
}

func TestParseListingID(t *testing.T) {
	t.Parallel()
	listing := strings.Join([]string{
		"ID   Name        Type    Enabled",
		"1    keycloak    OAuth2  true",
		"12   keycloak2   OAuth2  true",
	}, "\n")

	id, ok := ParseListingID(listing, "keycloak")
	assert.True(t, ok)
	assert.Equal(t, "1", id)

	id, ok = ParseListingID(listing, "keycloak2")
	assert.True(t, ok)
	assert.Equal(t, "12", id)

	_, ok = ParseListingID(listing, "github")
	assert.False(t, ok)
}

func TestCleanLogs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "line1\nline2\t", CleanLogs("\x01line1\n\x1bline2\t"))
}
