package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by this system.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "desktopctl"
	// LabelSandboxID is the label carrying the sandbox name.
	LabelSandboxID = "desktopctl-sandbox"
	// DefaultImage is the default sandbox container image.
	DefaultImage = "controller"
	// StopTimeoutSeconds is the grace period before the container is killed.
	StopTimeoutSeconds = 10
)

// ContainerAPI is the subset of the docker client the manager uses.
type ContainerAPI interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	Close() error
}

// Config configures a Manager.
type Config struct {
	Image string
	Ports []sandbox.Port
	// Host is the address the published ports are bound to and probed on.
	Host string
	// ReadinessPath is requested on the bridge port. Defaults to "/".
	ReadinessPath     string
	ReadinessInterval time.Duration
	ReadinessAttempts int
}

// Manager implements sandbox.Manager using a single Docker container.
type Manager struct {
	api ContainerAPI
	cfg Config

	mu       sync.Mutex
	current  *sandbox.Handle
	starting bool
}

// Verify interface compliance.
var _ sandbox.Manager = (*Manager)(nil)

// New creates a Manager talking to the docker daemon from the environment.
func New(cfg Config) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &domain.ContainerLifecycleError{Op: "connect", Err: fmt.Errorf("creating docker client: %w", err)}
	}
	return NewWithAPI(cli, cfg), nil
}

// NewWithAPI creates a Manager on top of an existing docker API.
func NewWithAPI(api ContainerAPI, cfg Config) *Manager {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = sandbox.DefaultPorts
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ReadinessPath == "" {
		cfg.ReadinessPath = "/"
	}
	return &Manager{api: api, cfg: cfg}
}

func (m *Manager) Close() error {
	return m.api.Close()
}

// Current returns the tracked container, if any.
func (m *Manager) Current() (sandbox.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return sandbox.Handle{}, false
	}
	return *m.current, true
}

// Start creates and starts the sandbox container and waits until its
// remote-desktop bridge answers. A Start while another is tracked or still
// starting fails fast.
func (m *Manager) Start(ctx context.Context) (sandbox.Handle, error) {
	m.mu.Lock()
	switch {
	case m.current != nil:
		h := *m.current
		m.mu.Unlock()
		return sandbox.Handle{}, &domain.ContainerLifecycleError{
			Op:  "start",
			Err: fmt.Errorf("%w: %s", domain.ErrAlreadyRunning, h),
		}
	case m.starting:
		m.mu.Unlock()
		return sandbox.Handle{}, &domain.ContainerLifecycleError{
			Op:  "start",
			Err: fmt.Errorf("%w: start in progress", domain.ErrAlreadyRunning),
		}
	}
	m.starting = true
	m.mu.Unlock()

	h, err := m.start(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.starting = false
	if err != nil {
		return sandbox.Handle{}, err
	}
	m.current = &h
	return h, nil
}

func (m *Manager) start(ctx context.Context) (sandbox.Handle, error) {

	if _, _, err := m.api.ImageInspectWithRaw(ctx, m.cfg.Image); err != nil {
		return sandbox.Handle{}, &domain.ContainerLifecycleError{
			Op:  "start",
			Err: fmt.Errorf("sandbox image '%s' not found: %w", m.cfg.Image, err),
		}
	}

	name := "desktopctl-sandbox-" + uuid.NewString()[:8]
	cfg, hostCfg := m.containerConfig(name)

	resp, err := m.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return sandbox.Handle{}, &domain.ContainerLifecycleError{Op: "start", Err: fmt.Errorf("creating container: %w", err)}
	}
	for _, w := range resp.Warnings {
		slog.Warn("Docker warning", "container", name, "warning", w)
	}

	if err := m.api.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		m.remove(resp.ID)
		return sandbox.Handle{}, &domain.ContainerLifecycleError{Op: "start", Err: fmt.Errorf("starting container: %w", err)}
	}
	slog.Info("Sandbox container started, waiting for readiness", "name", name, "id", resp.ID)

	prober := &sandbox.Prober{
		URL:         m.hostURL(sandbox.PortBridge) + m.cfg.ReadinessPath,
		Interval:    m.cfg.ReadinessInterval,
		MaxAttempts: m.cfg.ReadinessAttempts,
	}
	attempts, err := prober.Wait(ctx)
	if err != nil {
		m.remove(resp.ID)
		return sandbox.Handle{}, &domain.ContainerLifecycleError{Op: "start", Err: fmt.Errorf("%w: %w", domain.ErrNotReady, err)}
	}

	h := sandbox.Handle{
		ID:         resp.ID,
		Name:       name,
		CommandURL: m.hostURL(sandbox.PortCommands),
		StartedAt:  time.Now(),
	}
	slog.Info("Sandbox ready", "name", name, "probes", attempts, "commands", h.CommandURL)
	return h, nil
}

// Stop stops and removes the tracked container.
func (m *Manager) Stop(ctx context.Context) (sandbox.StopResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.starting {
		return sandbox.StopResult{}, &domain.ContainerLifecycleError{Op: "stop", Err: errors.New("start in progress; cancel it instead")}
	}
	if m.current == nil {
		slog.Info("No sandbox to stop")
		return sandbox.StopResult{Message: "nothing to stop"}, nil
	}
	h := *m.current

	timeout := StopTimeoutSeconds
	if err := m.api.ContainerStop(ctx, h.ID, container.StopOptions{Timeout: &timeout}); err != nil {
		if !client.IsErrNotFound(err) {
			return sandbox.StopResult{}, &domain.ContainerLifecycleError{Op: "stop", Err: fmt.Errorf("stopping container %s: %w", h, err)}
		}
		slog.Warn("Sandbox container already gone", "name", h.Name)
	}
	if err := m.api.ContainerRemove(ctx, h.ID, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		slog.Warn("Failed to remove container", "id", h.ID, "error", err)
	}

	m.current = nil
	slog.Info("Sandbox stopped", "name", h.Name, "id", h.ID)
	return sandbox.StopResult{Stopped: true, Handle: h, Message: fmt.Sprintf("stopped %s", h)}, nil
}

// Adopt starts tracking a running sandbox left behind by another process, so
// that a later Stop can remove it. It is a no-op when a sandbox is already
// tracked.
func (m *Manager) Adopt(ctx context.Context) (sandbox.Handle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return *m.current, true, nil
	}

	list, err := m.api.ContainerList(ctx, types.ContainerListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
			filters.Arg("status", "running"),
		),
	})
	if err != nil {
		return sandbox.Handle{}, false, &domain.ContainerLifecycleError{Op: "adopt", Err: fmt.Errorf("listing containers: %w", err)}
	}
	if len(list) == 0 {
		return sandbox.Handle{}, false, nil
	}
	if len(list) > 1 {
		slog.Warn("Several sandboxes running, adopting the first", "count", len(list))
	}

	c := list[0]
	h := sandbox.Handle{
		ID:         c.ID,
		Name:       c.Labels[LabelSandboxID],
		CommandURL: m.hostURL(sandbox.PortCommands),
		StartedAt:  time.Unix(c.Created, 0),
	}
	if h.Name == "" && len(c.Names) > 0 {
		h.Name = strings.TrimPrefix(c.Names[0], "/")
	}
	m.current = &h
	slog.Debug("Adopted running sandbox", "name", h.Name, "id", h.ID)
	return h, true, nil
}

func (m *Manager) containerConfig(name string) (*container.Config, *container.HostConfig) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range m.cfg.Ports {
		port := nat.Port(strconv.Itoa(p.Container) + "/tcp")
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostIP: m.cfg.Host, HostPort: strconv.Itoa(p.Host)}}
	}

	cfg := &container.Config{
		Image: m.cfg.Image,
		Tty:   true,
		Labels: map[string]string{
			LabelManager:   LabelManagerValue,
			LabelSandboxID: name,
		},
		ExposedPorts: exposed,
	}
	hostCfg := &container.HostConfig{PortBindings: bindings}
	return cfg, hostCfg
}

// hostURL returns the host address of the container port, following the
// configured port map.
func (m *Manager) hostURL(containerPort int) string {
	host := containerPort
	for _, p := range m.cfg.Ports {
		if p.Container == containerPort {
			host = p.Host
			break
		}
	}
	return fmt.Sprintf("http://%s:%d", m.cfg.Host, host)
}

// remove discards a container that never became usable.
func (m *Manager) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.api.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("Failed to remove container", "id", id, "error", err)
	}
}
