package containers

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker implements Runtime against the Docker Engine API. Services are
// addressed by container name.
type Docker struct {
	cli *client.Client
}

// NewDocker honours DOCKER_HOST and friends, defaulting to the local socket.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) Close() error { return d.cli.Close() }

func (d *Docker) Exec(ctx context.Context, service string, cmd []string, user string, out io.Writer) (int, error) {
	created, err := d.cli.ContainerExecCreate(ctx, service, container.ExecOptions{
		Cmd:          cmd,
		User:         user,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, err
	}
	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return -1, err
	}
	defer attach.Close()
	if _, err := stdcopy.StdCopy(out, out, attach.Reader); err != nil {
		return -1, err
	}
	insp, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, err
	}
	return insp.ExitCode, nil
}

func (d *Docker) Inspect(ctx context.Context, service string) (State, error) {
	info, err := d.cli.ContainerInspect(ctx, service)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return State{}, nil
		}
		return State{}, err
	}
	st := State{Exists: true}
	if info.State != nil {
		st.Running = info.State.Running
	}
	return st, nil
}

func (d *Docker) Restart(ctx context.Context, service string) error {
	return d.cli.ContainerRestart(ctx, service, container.StopOptions{})
}

func (d *Docker) Logs(ctx context.Context, service string, tail int) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, service)
	if err != nil {
		return "", err
	}
	rc, err := d.cli.ContainerLogs(ctx, service, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
		Timestamps: true,
	})
	if err != nil {
		return "", err
	}
	defer rc.Close()
	var buf bytes.Buffer
	if info.Config != nil && info.Config.Tty {
		_, err = io.Copy(&buf, rc)
	} else {
		_, err = stdcopy.StdCopy(&buf, &buf, rc)
	}
	if err != nil {
		return "", err
	}
	return CleanLogs(buf.String()), nil
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// CleanLogs strips non-printable control characters from raw log text.
func CleanLogs(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
