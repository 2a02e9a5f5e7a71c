// Package fixtures provides reference engine.Tool implementations used to
// exercise the Tool Loop Engine against a real out-of-process tool instead
// of an in-memory stub. shell_exec runs a command inside an isolated,
// network-disabled Docker container.
package fixtures

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

const shellExecSchema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "shell command to run"},
		"timeout_secs": {"type": "integer", "description": "optional timeout override in seconds"}
	},
	"required": ["command"]
}`

// DefaultShellImage is the image shell_exec runs commands in when no
// override is configured. A small, network-capable-at-build-time-only
// image keeps pulls cheap for the reference tool.
const DefaultShellImage = "alpine:3.20"

const defaultShellTimeout = 30 * time.Second

// ShellExecTool runs shell commands inside a Docker container. It holds no
// mutable state beyond the client handle, so a single instance can be
// registered for the lifetime of the process.
type ShellExecTool struct {
	client *client.Client
	image  string
}

// NewShellExecTool connects to the local Docker daemon. Callers should treat
// a non-nil error as "Docker unavailable" and skip registering the tool
// rather than failing startup.
func NewShellExecTool(ctx context.Context) (*ShellExecTool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return &ShellExecTool{client: cli, image: DefaultShellImage}, nil
}

// Tool returns the engine.Tool descriptor for registration.
func (t *ShellExecTool) Tool() engine.Tool {
	return engine.Tool{
		Name:        "shell_exec",
		Description: "Run a shell command in an isolated, network-disabled sandbox and return its output.",
		SchemaJSON:  shellExecSchema,
		Fn:          t.run,
		Retryable:   false,
		Metadata:    engine.ToolMetadata{Category: "execution"},
	}
}

type shellExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

func (t *ShellExecTool) run(ctx context.Context, args map[string]any, _ engine.ToolContext) (engine.ToolResult, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return engine.ToolResult{}, fmt.Errorf("shell_exec: command is required")
	}

	timeout := defaultShellTimeout
	if secs, ok := args["timeout_secs"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	result, err := t.runInContainer(ctx, command, timeout)
	if err != nil {
		return engine.ToolResult{}, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("marshaling shell_exec result: %w", err)
	}

	message := result.Stdout
	if result.ExitCode != 0 {
		message = fmt.Sprintf("exit code %d\nstdout:\n%s\nstderr:\n%s", result.ExitCode, result.Stdout, result.Stderr)
	}
	return engine.ToolResult{
		Success: result.ExitCode == 0 && !result.TimedOut,
		Message: message,
		Data:    data,
	}, nil
}

func (t *ShellExecTool) runInContainer(ctx context.Context, command string, timeout time.Duration) (shellExecResult, error) {
	if err := t.ensureImage(ctx); err != nil {
		return shellExecResult{}, err
	}

	containerConfig := &container.Config{
		Image:           t.image,
		Cmd:             []string{"/bin/sh", "-c", command},
		WorkingDir:      "/workspace",
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Mounts:         []mount.Mount{},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp":       "rw,noexec,nosuid,size=100m",
			"/workspace": "rw,nosuid,size=100m",
		},
		AutoRemove: true,
	}

	created, err := t.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return shellExecResult{}, fmt.Errorf("creating shell_exec container: %w", err)
	}
	containerID := created.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := t.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return shellExecResult{}, fmt.Errorf("starting shell_exec container: %w", err)
	}

	statusCh, errCh := t.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = t.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return shellExecResult{TimedOut: true, ExitCode: 1, Stderr: "command timed out"}, nil
	case err := <-errCh:
		if err != nil {
			return shellExecResult{}, fmt.Errorf("waiting for shell_exec container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := t.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: "all"})
	if err != nil {
		return shellExecResult{}, fmt.Errorf("reading shell_exec container logs: %w", err)
	}
	defer logs.Close()

	stdout, stderr := demuxDockerLogs(logs)
	return shellExecResult{Stdout: stdout, Stderr: stderr, ExitCode: int(exitCode)}, nil
}

func (t *ShellExecTool) ensureImage(ctx context.Context) error {
	if _, _, err := t.client.ImageInspectWithRaw(ctx, t.image); err == nil {
		return nil
	}
	reader, err := t.client.ImagePull(ctx, t.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling shell_exec image %s: %w", t.image, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// demuxDockerLogs separates Docker's multiplexed stdout/stderr log stream.
// Each frame is an 8-byte header ([stream type][reserved x3][big-endian
// size]) followed by that many bytes of payload.
func demuxDockerLogs(r io.Reader) (stdout, stderr string) {
	var stdoutBuf, stderrBuf bytes.Buffer
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size <= 0 || size > 10*1024*1024 {
			break
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			break
		}
		if header[0] == 2 {
			stderrBuf.Write(payload)
		} else {
			stdoutBuf.Write(payload)
		}
	}
	return strings.TrimRight(stdoutBuf.String(), "\n"), strings.TrimRight(stderrBuf.String(), "\n")
}

// Close releases the underlying Docker client.
func (t *ShellExecTool) Close() error {
	return t.client.Close()
}
