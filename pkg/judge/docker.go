package judge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dockerWorkingDir      = "/workspace"
	dockerInputFile       = "input.txt"
	compileTimeout        = 30 * time.Second
	containerSetupTimeout = 30 * time.Second
	killedByOOMExit       = 137
	defaultTimeLimit      = 2.0
	defaultMemoryLimit    = 262144
)

// DockerConfig configures the local container sandbox.
type DockerConfig struct {
	Host           string
	WorkspaceRoot  string
	MemoryLimitMB  int64
	CPUShares      int64
	// CompileTimeout bounds the compile step. Zero means thirty seconds.
	CompileTimeout time.Duration
	Logger         zerolog.Logger
}

// DockerClient runs jobs in throwaway containers on a local Docker daemon. It reports results
// with the same status ids as Judge0.
type DockerClient struct {
	docker *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

type containerRun struct {
	stdout    string
	stderr    string
	exitCode  int
	duration  time.Duration
	timedOut  bool
	oomKilled bool
}

// NewDockerClient connects to the Docker daemon.
func NewDockerClient(cfg DockerConfig) (*DockerClient, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = compileTimeout
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerClient{
		docker: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-contest-api/pkg/judge/docker"),
		logger: logger.With().Str("component", "docker_judge").Logger(),
	}, nil
}

// Submit compiles (when the language needs it) and runs the source against the supplied stdin.
func (d *DockerClient) Submit(parent context.Context, req Request) (Result, error) {
	language := req.Language
	if language.Image == "" {
		return Result{}, fmt.Errorf("%w: language %q has no sandbox image", ErrExecution, language.Name)
	}

	ctx, span := d.tracer.Start(parent, "docker.judge.submit", trace.WithAttributes(
		attribute.String("docker.image", language.Image),
	))
	defer span.End()

	start := time.Now()

	workspace, err := os.MkdirTemp(d.cfg.WorkspaceRoot, "judge-")
	if err != nil {
		return Result{}, fmt.Errorf("%w: create workspace: %v", ErrExecution, err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, language.FileName), []byte(req.Source), 0o600); err != nil {
		return Result{}, fmt.Errorf("%w: write source: %v", ErrExecution, err)
	}
	if err := os.WriteFile(filepath.Join(workspace, dockerInputFile), []byte(req.Stdin), 0o600); err != nil {
		return Result{}, fmt.Errorf("%w: write stdin: %v", ErrExecution, err)
	}

	memoryMB := int64(math.Ceil(float64(memoryLimitKB(req)) / 1024))
	if d.cfg.MemoryLimitMB > 0 && d.cfg.MemoryLimitMB < memoryMB {
		memoryMB = d.cfg.MemoryLimitMB
	}

	if language.Compile != "" {
		compiled, err := d.run(ctx, language.Image, language.Compile, workspace, d.cfg.CompileTimeout, memoryMB)
		if err != nil {
			judgeFailures.WithLabelValues("docker", "compile").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "compile_failed")
			return Result{}, fmt.Errorf("%w: %v", ErrExecution, err)
		}
		if compiled.exitCode != 0 || compiled.timedOut {
			return Result{
				Status:        StatusCompilationError,
				Description:   "Compilation Error",
				CompileOutput: compiled.stderr + compiled.stdout,
			}, nil
		}
	}

	limit := timeLimit(req)
	command := fmt.Sprintf("%s < %s", language.Run, dockerInputFile)
	run, err := d.run(ctx, language.Image, command, workspace, time.Duration(limit*float64(time.Second)), memoryMB)
	if err != nil {
		judgeFailures.WithLabelValues("docker", "run").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "run_failed")
		return Result{}, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	result := classifyRun(run, req)

	judgeDuration.WithLabelValues("docker", language.Name).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("judge.status", int(result.Status)))
	return result, nil
}

func (d *DockerClient) run(parent context.Context, image, command, workspace string, timeout time.Duration, memoryMB int64) (containerRun, error) {
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    memoryMB * 1024 * 1024,
			CPUShares: d.cfg.CPUShares,
		},
		NetworkMode: "none",
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: dockerWorkingDir,
		}},
	}

	config := &container.Config{
		Image:        image,
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   dockerWorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	// Container setup is bounded separately so it never counts against the time limit.
	setupCtx, cancelSetup := context.WithTimeout(parent, containerSetupTimeout)
	defer cancelSetup()

	created, err := d.docker.ContainerCreate(setupCtx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return containerRun{}, fmt.Errorf("container create: %w", err)
	}

	containerID := created.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.docker.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	// Wait is registered before start so a fast exit is never missed.
	waitCtx, cancelWait := context.WithCancel(parent)
	defer cancelWait()
	statusCh, errCh := d.docker.ContainerWait(waitCtx, containerID, container.WaitConditionNextExit)

	if err := d.docker.ContainerStart(setupCtx, containerID, container.StartOptions{}); err != nil {
		return containerRun{}, fmt.Errorf("container start: %w", err)
	}

	start := time.Now()
	limit := time.NewTimer(timeout)
	defer limit.Stop()

	outcome := containerRun{}
	select {
	case err := <-errCh:
		if err != nil {
			return containerRun{}, fmt.Errorf("container wait: %w", err)
		}
	case status := <-statusCh:
		outcome.exitCode = int(status.StatusCode)
	case <-limit.C:
		outcome.timedOut = true
	case <-parent.Done():
		return containerRun{}, parent.Err()
	}
	outcome.duration = time.Since(start)

	if outcome.timedOut {
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.docker.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			d.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
	}

	inspectCtx, cancelInspect := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelInspect()
	if inspected, err := d.docker.ContainerInspect(inspectCtx, containerID); err == nil && inspected.State != nil {
		outcome.oomKilled = inspected.State.OOMKilled
	}

	logsCtx, cancelLogs := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelLogs()
	logs, err := d.docker.ContainerLogs(logsCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		d.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return outcome, nil
	}
	defer logs.Close()

	stdout, stderr, err := splitLogs(logs)
	if err != nil {
		d.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		return outcome, nil
	}
	outcome.stdout = stdout
	outcome.stderr = stderr

	return outcome, nil
}

// Close releases the Docker client.
func (d *DockerClient) Close() error {
	if d.docker == nil {
		return nil
	}
	return d.docker.Close()
}

// classifyRun maps a finished container run onto a Judge0 status.
func classifyRun(run containerRun, req Request) Result {
	result := Result{
		Stdout:      run.stdout,
		Stderr:      run.stderr,
		TimeSeconds: run.duration.Seconds(),
	}

	switch {
	case run.timedOut:
		result.Status = StatusTimeLimitExceeded
		result.Description = "Time Limit Exceeded"
	case run.oomKilled || run.exitCode == killedByOOMExit:
		result.Status = StatusRuntimeOther
		result.Description = "Memory Limit Exceeded"
		result.MemoryKB = int64(memoryLimitKB(req))
	case run.exitCode != 0:
		result.Status = StatusRuntimeNZEC
		result.Description = fmt.Sprintf("Runtime Error (exit %d)", run.exitCode)
	case req.SkipComparison, OutputMatches(run.stdout, req.ExpectedOutput):
		result.Status = StatusAccepted
		result.Description = "Accepted"
	default:
		result.Status = StatusWrongAnswer
		result.Description = "Wrong Answer"
	}
	return result
}

func splitLogs(reader io.Reader) (string, string, error) {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func timeLimit(req Request) float64 {
	if req.CPUTimeLimit > 0 {
		return req.CPUTimeLimit
	}
	return defaultTimeLimit
}

func memoryLimitKB(req Request) int {
	if req.MemoryLimitKB > 0 {
		return req.MemoryLimitKB
	}
	return defaultMemoryLimit
}
