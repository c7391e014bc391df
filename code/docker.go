package code

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	oasis "github.com/nevindra/clawgate"
)

// DockerRunner executes Python code inside a throwaway container, for
// callers that need process/filesystem isolation beyond SubprocessRunner's
// host-process sandboxing. It does not bridge call_tool() back to the
// agent's tool registry: container stdio isn't wired to a dispatch loop,
// so code running here is output-only (stdout/stderr + exit code).
type DockerRunner struct {
	cli         *client.Client
	image       string
	networkMode string
	cfg         runnerConfig
}

var _ oasis.CodeRunner = (*DockerRunner)(nil)

// NewDockerRunner connects to the local Docker daemon (via DOCKER_HOST or
// the default socket) and returns a runner that executes code in fresh
// containers from image, joined to networkMode (e.g. "none", "bridge").
func NewDockerRunner(image, networkMode string, opts ...Option) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker code runner: connect to daemon: %w", err)
	}
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &DockerRunner{cli: cli, image: image, networkMode: networkMode, cfg: cfg}, nil
}

// Run executes req.Code inside a fresh container and returns its output.
// dispatch is accepted to satisfy oasis.CodeRunner but is never invoked —
// code run here cannot call back into the agent's tool registry.
func (r *DockerRunner) Run(ctx context.Context, req oasis.CodeRequest, _ oasis.DispatchFunc) (oasis.CodeResult, error) {
	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := preludeSource + "\n" + req.Code + "\n" + postludeSource

	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:      r.image,
		Cmd:        []string{"python3", "/sandbox/script.py"},
		WorkingDir: "/sandbox",
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(r.networkMode),
	}, nil, nil, "")
	if err != nil {
		return oasis.CodeResult{}, fmt.Errorf("docker code runner: create container: %w", err)
	}
	defer r.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})

	if err := r.copyScript(ctx, created.ID, script); err != nil {
		return oasis.CodeResult{}, err
	}
	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return oasis.CodeResult{}, fmt.Errorf("docker code runner: start container: %w", err)
	}

	statusCh, errCh := r.cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case werr := <-errCh:
		if ctx.Err() != nil {
			return oasis.CodeResult{Error: fmt.Sprintf("execution timed out after %s", timeout), ExitCode: -1}, nil
		}
		if werr != nil {
			return oasis.CodeResult{}, fmt.Errorf("docker code runner: wait: %w", werr)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := r.cli.ContainerLogs(context.Background(), created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return oasis.CodeResult{}, fmt.Errorf("docker code runner: fetch logs: %w", err)
	}
	defer logs.Close()
	raw, _ := io.ReadAll(logs)

	result := oasis.CodeResult{Logs: stripDockerLogHeaders(raw), ExitCode: int(exitCode)}
	if exitCode != 0 {
		result.Error = fmt.Sprintf("exit code %d", exitCode)
	}
	return result, nil
}

func (r *DockerRunner) copyScript(ctx context.Context, containerID, script string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{Name: "script.py", Mode: 0o644, Size: int64(len(script))}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("docker code runner: tar header: %w", err)
	}
	if _, err := tw.Write([]byte(script)); err != nil {
		return fmt.Errorf("docker code runner: tar write: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("docker code runner: tar close: %w", err)
	}
	return r.cli.CopyToContainer(ctx, containerID, "/sandbox", &buf, container.CopyToContainerOptions{})
}

// stripDockerLogHeaders removes the 8-byte stream-multiplexing header Docker
// prepends to each frame when the container is started without a TTY.
func stripDockerLogHeaders(raw []byte) string {
	var out bytes.Buffer
	for len(raw) >= 8 {
		size := int(raw[4])<<24 | int(raw[5])<<16 | int(raw[6])<<8 | int(raw[7])
		raw = raw[8:]
		if size > len(raw) {
			size = len(raw)
		}
		out.Write(raw[:size])
		raw = raw[size:]
	}
	return out.String()
}
