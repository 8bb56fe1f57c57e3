package engine

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"judgehost/internal/judge/sandbox/result"
	"judgehost/internal/judge/sandbox/spec"
	"judgehost/pkg/utils/logger"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// dockerAPI is the part of the docker client the engine needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, types.ContainerPathStat, error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// ErrWaitTimeout is returned when the container outlives its wait deadline.
var ErrWaitTimeout = errors.New("sandbox wait deadline exceeded")

// DockerEngine runs each RunSpec in a fresh container.
type DockerEngine struct {
	cfg Config
	api dockerAPI
}

// NewDockerEngine connects to the docker daemon named by cfg.Host or the environment.
func NewDockerEngine(cfg Config) (*DockerEngine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newDockerEngine(cfg, cli), nil
}

func newDockerEngine(cfg Config, api dockerAPI) *DockerEngine {
	return &DockerEngine{cfg: cfg.withDefaults(), api: api}
}

// Ping checks the daemon is reachable.
func (e *DockerEngine) Ping(ctx context.Context) error {
	if _, err := e.api.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker: %w", err)
	}
	return nil
}

// Close releases the docker client.
func (e *DockerEngine) Close() error {
	return e.api.Close()
}

// Run creates, starts and waits for one container, then collects the limiter report.
// The container is removed on every path.
func (e *DockerEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.ExecResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.ExecResult{}, err
	}

	name := containerName(runSpec.Name)
	created, err := e.api.ContainerCreate(ctx, e.containerConfig(runSpec), e.hostConfig(runSpec), nil, nil, name)
	if err != nil {
		return result.ExecResult{}, fmt.Errorf("create container: %w", err)
	}
	for _, warning := range created.Warnings {
		logger.Warn(ctx, "docker create warning", zap.String("container", name), zap.String("warning", warning))
	}
	defer e.remove(ctx, created.ID, name)

	if err := e.api.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		return result.ExecResult{}, fmt.Errorf("start container: %w", err)
	}

	status, err := e.wait(ctx, created.ID, e.cfg.WaitTimeout(runSpec.Limits.Timeout()))
	if err != nil {
		return result.ExecResult{}, err
	}

	reportData, err := e.readFile(ctx, created.ID, path.Join(e.cfg.ResultDir, "result"), 4096)
	if err != nil {
		return result.ExecResult{}, err
	}
	report, err := result.ParseReport(strings.NewReader(reportData))
	if err != nil {
		return result.ExecResult{}, fmt.Errorf("container %s: %w", name, err)
	}
	stdout, err := e.readFile(ctx, created.ID, path.Join(e.cfg.ResultDir, "stdout"), e.cfg.StdoutStderrMaxBytes)
	if err != nil {
		return result.ExecResult{}, err
	}
	stderr, err := e.readFile(ctx, created.ID, path.Join(e.cfg.ResultDir, "stderr"), e.cfg.StdoutStderrMaxBytes)
	if err != nil {
		return result.ExecResult{}, err
	}

	exitCode := int(status.StatusCode)
	if report.HasExit {
		exitCode = report.ExitCode
	}
	return result.ExecResult{
		Outcome:    report.Outcome,
		Message:    report.Message,
		Stdout:     stdout,
		Stderr:     stderr,
		ExitCode:   exitCode,
		DurationMs: report.DurationMs,
		MemoryKB:   report.MemoryKB,
	}, nil
}

func (e *DockerEngine) containerConfig(runSpec spec.RunSpec) *container.Config {
	return &container.Config{
		Image:           runSpec.Image,
		Cmd:             runSpec.Cmd,
		Env:             runSpec.Env,
		WorkingDir:      runSpec.WorkDir,
		NetworkDisabled: true,
		Labels:          map[string]string{"judgehost.run": runSpec.Name},
	}
}

func (e *DockerEngine) hostConfig(runSpec spec.RunSpec) *container.HostConfig {
	binds := make([]string, 0, len(runSpec.BindMounts))
	for _, m := range runSpec.BindMounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}
	pids := e.cfg.PidsLimit
	resources := container.Resources{PidsLimit: &pids}
	if e.cfg.MemoryHeadroomKB > 0 && runSpec.Limits.MemoryKB > 0 {
		resources.Memory = (runSpec.Limits.MemoryKB + e.cfg.MemoryHeadroomKB) * 1024
	}
	return &container.HostConfig{
		Binds:       binds,
		NetworkMode: "none",
		Resources:   resources,
	}
}

func (e *DockerEngine) wait(ctx context.Context, id string, timeout time.Duration) (container.WaitResponse, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusCh, errCh := e.api.ContainerWait(waitCtx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status, fmt.Errorf("wait container: %s", status.Error.Message)
		}
		return status, nil
	case err := <-errCh:
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return container.WaitResponse{}, fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		}
		return container.WaitResponse{}, fmt.Errorf("wait container: %w", err)
	case <-waitCtx.Done():
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return container.WaitResponse{}, fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		}
		return container.WaitResponse{}, fmt.Errorf("wait container: %w", waitCtx.Err())
	}
}

// readFile copies one file out of the container; docker returns it as a single entry tar stream.
func (e *DockerEngine) readFile(ctx context.Context, id, filePath string, limit int64) (string, error) {
	rc, _, err := e.api.CopyFromContainer(ctx, id, filePath)
	if err != nil {
		return "", fmt.Errorf("copy %s from container: %w", filePath, err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	if _, err := tr.Next(); err != nil {
		return "", fmt.Errorf("read %s archive: %w", filePath, err)
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(tr, limit)); err != nil {
		return "", fmt.Errorf("read %s: %w", filePath, err)
	}
	return sb.String(), nil
}

func (e *DockerEngine) remove(ctx context.Context, id, name string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CleanupTimeout)
	defer cancel()
	err := e.api.ContainerRemove(cleanupCtx, id, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		logger.Error(ctx, "remove container failed", zap.String("container", name), zap.Error(err))
	}
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.Image == "" {
		return fmt.Errorf("run spec image is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("run spec command is required")
	}
	if runSpec.Limits.TimeMs <= 0 {
		return fmt.Errorf("run spec time limit must be positive")
	}
	for _, m := range runSpec.BindMounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("bind mount requires source and target")
		}
	}
	return nil
}

func containerName(runName string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if runName == "" {
		return "judge-" + suffix
	}
	return "judge-" + sanitizeName(runName) + "-" + suffix
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
