// Package docker runs leg steps inside containers.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	imageTypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/rzbill/slipway/pkg/executor"
	"github.com/rzbill/slipway/pkg/executor/docker/registryauth"
	"github.com/rzbill/slipway/pkg/log"
)

// Mount points inside leg containers.
const (
	containerWorkspace = "/workspace"
	containerStaging   = "/slipway/staging"
)

// Config holds docker executor options.
type Config struct {
	// APIVersion pins the Docker API version; empty negotiates
	APIVersion string

	// FallbackAPIVersion is used when negotiation picks a version the
	// daemon rejects
	FallbackAPIVersion string

	// Timeout for API version negotiation in seconds
	NegotiationTimeoutSeconds int

	// Images maps vm-image aliases to container references
	Images map[string]string

	// Registries configures pull credentials
	Registries []registryauth.RegistryConfig
}

// DefaultImages maps the common vm-image aliases onto containers.
func DefaultImages() map[string]string {
	return map[string]string{
		"ubuntu-latest": "docker.io/library/ubuntu:22.04",
		"ubuntu-22.04":  "docker.io/library/ubuntu:22.04",
		"ubuntu-20.04":  "docker.io/library/ubuntu:20.04",
		"linux":         "docker.io/library/ubuntu:22.04",
	}
}

// DefaultConfig returns the default docker executor configuration.
func DefaultConfig() *Config {
	return &Config{
		FallbackAPIVersion:        "1.43",
		NegotiationTimeoutSeconds: 3,
		Images:                    DefaultImages(),
	}
}

// Validate that Executor implements the executor interface.
var _ executor.Executor = &Executor{}

// Executor runs each leg in its own container: one container per leg,
// one exec per step.
type Executor struct {
	client    *client.Client
	logger    log.Logger
	config    *Config
	providers []registryauth.Provider

	mu         sync.Mutex
	containers map[string]string
}

// New creates a docker executor, negotiating the API version with the
// local daemon.
func New(logger log.Logger, config *Config) (*Executor, error) {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("docker-executor")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Images == nil {
		config.Images = DefaultImages()
	}

	cli, err := createClientWithVersionHandling(logger, config)
	if err != nil {
		return nil, err
	}

	return &Executor{
		client:     cli,
		logger:     logger,
		config:     config,
		providers:  registryauth.BuildProviders(config.Registries),
		containers: make(map[string]string),
	}, nil
}

// createClientWithVersionHandling creates a Docker client, pinning the
// configured API version or negotiating one with a ping check.
func createClientWithVersionHandling(logger log.Logger, config *Config) (*client.Client, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if config.APIVersion != "" {
		logger.Info("Using specified Docker API version",
			log.Str("api_version", config.APIVersion))

		dockerClient, err = client.NewClientWithOpts(
			client.FromEnv,
			client.WithVersion(config.APIVersion),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker client with version %s: %w", config.APIVersion, err)
		}
		return dockerClient, nil
	}

	negotiationTimeout := time.Duration(config.NegotiationTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()

	dockerClient.NegotiateAPIVersion(ctx)
	clientVersion := dockerClient.ClientVersion()
	logger.Info("Using negotiated Docker API version", log.Str("api_version", clientVersion))

	if err := verifyClientCompatibility(dockerClient, clientVersion, config.FallbackAPIVersion, logger); err != nil {
		return nil, err
	}
	return dockerClient, nil
}

// verifyClientCompatibility pings the daemon and falls back to a
// compatible API version on a too-new mismatch.
func verifyClientCompatibility(dockerClient *client.Client, clientVersion, fallbackVersion string, logger log.Logger) error {
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()

	_, err := dockerClient.Ping(pingCtx)

	if err != nil && strings.Contains(err.Error(), "client version") &&
		strings.Contains(err.Error(), "too new") {
		logger.Warn("Docker API version mismatch, falling back to compatibility version",
			log.Str("current_version", clientVersion),
			log.Str("fallback_version", fallbackVersion),
			log.Err(err))

		newClient, err := client.NewClientWithOpts(
			client.FromEnv,
			client.WithVersion(fallbackVersion),
		)
		if err != nil {
			return fmt.Errorf("failed to create Docker client with fallback version %s: %w",
				fallbackVersion, err)
		}
		*dockerClient = *newClient
	} else if err != nil {
		logger.Warn("Docker ping error (continuing anyway)", log.Err(err))
	}

	return nil
}

// Name identifies the executor.
func (e *Executor) Name() string {
	return "docker"
}

// MountPoints reports where the workspace and staging dirs appear
// inside leg containers.
func (e *Executor) MountPoints() (string, string) {
	return containerWorkspace, containerStaging
}

// CanRun accepts container refs and linux-family vm-image aliases.
func (e *Executor) CanRun(image string) bool {
	if image == "" {
		return false
	}
	if executor.IsContainerRef(image) {
		return true
	}
	return executor.ImageFamily(image) == executor.FamilyLinux
}

// ResolveImage maps a leg image onto a pullable container reference.
// Refs with a registry path or tag pass through; bare aliases go
// through the image map.
func (e *Executor) ResolveImage(image string) (string, error) {
	if image == "" {
		return "", fmt.Errorf("leg has no image to resolve")
	}
	if executor.IsContainerRef(image) {
		return image, nil
	}
	if ref, ok := e.config.Images[image]; ok {
		return ref, nil
	}

	known := make([]string, 0, len(e.config.Images))
	for alias := range e.config.Images {
		known = append(known, alias)
	}
	sort.Strings(known)
	return "", fmt.Errorf("no container image mapped for %q (known aliases: %s)",
		image, strings.Join(known, ", "))
}

// Prepare pulls the leg's image and starts its container with the
// workspace and staging dir bind-mounted.
func (e *Executor) Prepare(ctx context.Context, leg *executor.LegContext) error {
	resolved, err := e.ResolveImage(leg.Image)
	if err != nil {
		return err
	}

	for _, dir := range []string{leg.LogsDir(), leg.ArtifactsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := e.pullImage(ctx, resolved); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", resolved, err)
	}

	containerConfig := &container.Config{
		Image: resolved,
		Labels: map[string]string{
			"slipway.managed":  "true",
			"slipway.run.id":   leg.RunID,
			"slipway.pipeline": leg.Pipeline,
			"slipway.leg":      leg.LegName,
		},
		Env:        executor.MergeEnv(nil, leg.Env),
		WorkingDir: containerWorkspace,
		Cmd:        []string{"sleep", "infinity"},
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: leg.WorkspaceDir, Target: containerWorkspace},
			{Type: mount.TypeBind, Source: leg.StagingDir, Target: containerStaging},
		},
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName(leg))
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := e.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	e.mu.Lock()
	e.containers[leg.Key()] = resp.ID
	e.mu.Unlock()

	e.logger.Info("Started leg container",
		log.Str("leg", leg.LegName),
		log.Str("image", resolved),
		log.Str("container_id", resp.ID[:12]))
	return nil
}

// RunStep execs one step inside the leg's container and waits for its
// exit code, teeing output to the step log and the leg console.
func (e *Executor) RunStep(ctx context.Context, leg *executor.LegContext, step executor.StepExec) (int, error) {
	containerID, err := e.containerFor(leg)
	if err != nil {
		return -1, err
	}

	runCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	workDir := containerWorkspace
	if step.WorkingDir != "" {
		workDir = path.Join(containerWorkspace, filepath.ToSlash(step.WorkingDir))
	}

	execConfig := container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", step.Script},
		Env:          executor.MergeEnv(nil, leg.Env, step.Env),
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := e.client.ContainerExecCreate(runCtx, containerID, execConfig)
	if err != nil {
		return -1, fmt.Errorf("failed to create exec for step %q: %w", step.Name, err)
	}

	attach, err := e.client.ContainerExecAttach(runCtx, resp.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to attach to step %q: %w", step.Name, err)
	}
	defer attach.Close()

	logFile, err := executor.OpenStepLog(leg, step)
	if err != nil {
		return -1, err
	}
	defer logFile.Close()

	out := io.Writer(logFile)
	if leg.Console != nil {
		out = io.MultiWriter(logFile, leg.Console)
	}

	// The stream is multiplexed; fold stdout and stderr into the same
	// writers, in arrival order.
	if _, err := stdcopy.StdCopy(out, out, attach.Reader); err != nil && runCtx.Err() == nil {
		return -1, fmt.Errorf("failed to stream step %q output: %w", step.Name, err)
	}

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("step %q timed out after %s", step.Name, step.Timeout)
	}

	return e.waitForExitCode(ctx, resp.ID, step.Name)
}

// waitForExitCode inspects the exec until the process is reported
// finished. The stream EOF usually means it already is.
func (e *Executor) waitForExitCode(ctx context.Context, execID, stepName string) (int, error) {
	for {
		inspect, err := e.client.ContainerExecInspect(ctx, execID)
		if err != nil {
			return -1, fmt.Errorf("failed to inspect step %q: %w", stepName, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}

		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Cleanup stops and removes the leg's container. Runs to completion
// even when the run context is already canceled.
func (e *Executor) Cleanup(ctx context.Context, leg *executor.LegContext) error {
	e.mu.Lock()
	containerID, ok := e.containers[leg.Key()]
	delete(e.containers, leg.Key())
	e.mu.Unlock()

	if !ok {
		return nil
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	stopTimeout := 10
	if err := e.client.ContainerStop(cleanupCtx, containerID, container.StopOptions{Timeout: &stopTimeout}); err != nil {
		e.logger.Warn("Failed to stop leg container",
			log.Str("leg", leg.LegName),
			log.Err(err))
	}

	if err := e.client.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container for leg %s: %w", leg.LegName, err)
	}

	e.logger.Info("Removed leg container",
		log.Str("leg", leg.LegName),
		log.Str("container_id", containerID[:12]))
	return nil
}

func (e *Executor) containerFor(leg *executor.LegContext) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	containerID, ok := e.containers[leg.Key()]
	if !ok {
		return "", fmt.Errorf("leg %s has no container; Prepare must run first", leg.LegName)
	}
	return containerID, nil
}

// pullImage pulls an image unless it is already present locally.
func (e *Executor) pullImage(ctx context.Context, image string) error {
	if _, _, err := e.client.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}

	e.logger.Info("Pulling image", log.Str("image", image))

	auth := e.resolveRegistryAuth(ctx, image)
	reader, err := e.client.ImagePull(ctx, image, imageTypes.PullOptions{RegistryAuth: auth})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// containerName builds a daemon-friendly name for a leg container.
func containerName(leg *executor.LegContext) string {
	runPart := leg.RunID
	if len(runPart) > 8 {
		runPart = runPart[:8]
	}
	legPart := strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(leg.LegName)
	return fmt.Sprintf("slipway-%s-%s", runPart, legPart)
}
