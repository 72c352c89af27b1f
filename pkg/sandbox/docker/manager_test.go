package docker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/goleak"

	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/sandbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

type fakeAPI struct {
	mu       sync.Mutex
	imageErr error
	created  []*container.Config
	hostCfgs []*container.HostConfig
	started  []string
	stopped  []string
	removed  []string
	running  []types.Container
}

func (f *fakeAPI) ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error) {
	return types.ImageInspect{ID: imageID}, nil, f.imageErr
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, cfg)
	f.hostCfgs = append(f.hostCfgs, hostCfg)
	return container.CreateResponse{ID: "cid-" + strconv.Itoa(len(f.created))}, nil
}

func (f *fakeAPI) ContainerStart(ctx context.Context, id string, _ types.ContainerStartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeAPI) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, id string, _ types.ContainerRemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeAPI) ContainerList(ctx context.Context, opts types.ContainerListOptions) ([]types.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

func (f *fakeAPI) Close() error { return nil }

// bridge serves the readiness endpoint, failing the first n probes with 503.
type bridge struct {
	*httptest.Server
	probes atomic.Int32
	times  []time.Time
	mu     sync.Mutex
}

func newBridge(t *testing.T, failFirst int32) *bridge {
	t.Helper()
	b := &bridge{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.times = append(b.times, time.Now())
		b.mu.Unlock()
		if b.probes.Add(1) <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *bridge) port(t *testing.T) int {
	t.Helper()
	u, err := url.Parse(b.URL)
	if err != nil {
		t.Fatal(err)
	}
	_, p, _ := net.SplitHostPort(u.Host)
	n, _ := strconv.Atoi(p)
	return n
}

func testConfig(t *testing.T, b *bridge, interval time.Duration) Config {
	ports := []sandbox.Port{
		{Name: "display", Container: sandbox.PortDisplay, Host: sandbox.PortDisplay},
		{Name: "chat-ui", Container: sandbox.PortChatUI, Host: sandbox.PortChatUI},
		{Name: "bridge", Container: sandbox.PortBridge, Host: b.port(t)},
		{Name: "web-ui", Container: sandbox.PortWebUI, Host: sandbox.PortWebUI},
		{Name: "commands", Container: sandbox.PortCommands, Host: sandbox.PortCommands},
	}
	return Config{Ports: ports, ReadinessInterval: interval, ReadinessAttempts: 10}
}

func TestManager_StartReadyOnFirstProbe(t *testing.T) {
	api := &fakeAPI{}
	b := newBridge(t, 0)
	m := NewWithAPI(api, testConfig(t, b, 500*time.Millisecond))

	start := time.Now()
	h, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := b.probes.Load(); n != 1 {
		t.Errorf("expected 1 probe, got %d", n)
	}
	if elapsed := time.Since(start); elapsed >= 400*time.Millisecond {
		t.Errorf("expected no wait before first probe, took %v", elapsed)
	}
	if h.ID != "cid-1" || h.CommandURL != "http://127.0.0.1:5000" {
		t.Errorf("unexpected handle %+v", h)
	}
	if cur, ok := m.Current(); !ok || cur.ID != h.ID {
		t.Errorf("expected handle to be tracked")
	}

	cfg := api.created[0]
	if cfg.Image != DefaultImage || !cfg.Tty || cfg.Labels[LabelManager] != LabelManagerValue {
		t.Errorf("unexpected container config %+v", cfg)
	}
	if len(cfg.ExposedPorts) != 5 || len(api.hostCfgs[0].PortBindings) != 5 {
		t.Errorf("expected 5 published ports, got %d/%d", len(cfg.ExposedPorts), len(api.hostCfgs[0].PortBindings))
	}
	if got := api.hostCfgs[0].PortBindings["5900/tcp"][0].HostPort; got != "5900" {
		t.Errorf("expected display port 5900, got %s", got)
	}
}

func TestManager_StartAfterUnreadyProbes(t *testing.T) {
	const interval = 20 * time.Millisecond
	api := &fakeAPI{}
	b := newBridge(t, 3)
	m := NewWithAPI(api, testConfig(t, b, interval))

	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := b.probes.Load(); n != 4 {
		t.Fatalf("expected exactly 4 probes, got %d", n)
	}
	for i := 1; i < len(b.times); i++ {
		if gap := b.times[i].Sub(b.times[i-1]); gap < interval/2 {
			t.Errorf("probe %d came %v after the previous one", i, gap)
		}
	}
}

func TestManager_NeverReady(t *testing.T) {
	api := &fakeAPI{}
	b := newBridge(t, 1000)
	cfg := testConfig(t, b, time.Millisecond)
	cfg.ReadinessAttempts = 3
	m := NewWithAPI(api, cfg)

	_, err := m.Start(context.Background())
	var le *domain.ContainerLifecycleError
	if !errors.As(err, &le) || !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ContainerLifecycleError wrapping ErrNotReady, got %v", err)
	}
	if n := b.probes.Load(); n != 3 {
		t.Errorf("expected 3 probes, got %d", n)
	}
	if len(api.removed) != 1 {
		t.Errorf("expected failed container to be removed")
	}
	if _, ok := m.Current(); ok {
		t.Errorf("failed start must not be tracked")
	}
}

func TestManager_DoubleStartFails(t *testing.T) {
	api := &fakeAPI{}
	b := newBridge(t, 0)
	m := NewWithAPI(api, testConfig(t, b, time.Millisecond))

	first, err := m.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err = m.Start(context.Background())
	if !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if !domain.IsFatal(err) {
		t.Errorf("double start should be a lifecycle error")
	}
	if len(api.created) != 1 {
		t.Errorf("second start must not create a container")
	}
	if cur, _ := m.Current(); cur.ID != first.ID {
		t.Errorf("first handle must stay tracked")
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	api := &fakeAPI{}
	b := newBridge(t, 0)
	m := NewWithAPI(api, testConfig(t, b, time.Millisecond))
	ctx := context.Background()

	res, err := m.Stop(ctx)
	if err != nil || res.Stopped || res.Message != "nothing to stop" {
		t.Fatalf("unexpected stop without container: %+v, %v", res, err)
	}

	h, err := m.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	res, err = m.Stop(ctx)
	if err != nil || !res.Stopped || res.Handle.ID != h.ID {
		t.Fatalf("unexpected stop: %+v, %v", res, err)
	}
	if len(api.stopped) != 1 || len(api.removed) != 1 {
		t.Errorf("expected stop and remove, got %v / %v", api.stopped, api.removed)
	}

	res, err = m.Stop(ctx)
	if err != nil || res.Stopped {
		t.Fatalf("second stop should be a no-op: %+v, %v", res, err)
	}

	// A stopped manager can start again.
	if _, err := m.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestManager_MissingImage(t *testing.T) {
	api := &fakeAPI{imageErr: errors.New("no such image")}
	b := newBridge(t, 0)
	m := NewWithAPI(api, testConfig(t, b, time.Millisecond))

	_, err := m.Start(context.Background())
	var le *domain.ContainerLifecycleError
	if !errors.As(err, &le) {
		t.Fatalf("expected ContainerLifecycleError, got %v", err)
	}
	if len(api.created) != 0 || b.probes.Load() != 0 {
		t.Errorf("nothing should happen without an image")
	}
}

func TestManager_StartAsyncCancel(t *testing.T) {
	api := &fakeAPI{}
	b := newBridge(t, 1000)
	cfg := testConfig(t, b, 10*time.Millisecond)
	cfg.ReadinessAttempts = 1000
	m := NewWithAPI(api, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	ch := sandbox.StartAsync(ctx, m)

	// The caller is free while the sandbox boots.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case out := <-ch:
		if out.Err == nil {
			t.Fatal("expected cancelled start to fail")
		}
		if !errors.Is(out.Err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", out.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("start did not observe cancellation")
	}
	if _, ok := m.Current(); ok {
		t.Error("cancelled start must not be tracked")
	}
}

func TestManager_Adopt(t *testing.T) {
	api := &fakeAPI{running: []types.Container{{
		ID:      "cid-orphan",
		Names:   []string{"/desktopctl-sandbox-abcd1234"},
		Labels:  map[string]string{LabelManager: LabelManagerValue},
		Created: 1700000000,
	}}}
	m := NewWithAPI(api, Config{})

	h, ok, err := m.Adopt(context.Background())
	if err != nil {
		t.Fatalf("Adopt: %v", err)
	}
	if !ok || h.ID != "cid-orphan" || h.Name != "desktopctl-sandbox-abcd1234" {
		t.Fatalf("unexpected handle %+v (ok=%v)", h, ok)
	}
	if h.CommandURL != "http://127.0.0.1:5000" {
		t.Errorf("unexpected command url %q", h.CommandURL)
	}

	res, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !res.Stopped || len(api.removed) != 1 || api.removed[0] != "cid-orphan" {
		t.Errorf("expected adopted container to be removed, got %+v / %v", res, api.removed)
	}
}

func TestManager_AdoptNothing(t *testing.T) {
	m := NewWithAPI(&fakeAPI{}, Config{})
	if _, ok, err := m.Adopt(context.Background()); err != nil || ok {
		t.Fatalf("expected nothing adopted, got ok=%v err=%v", ok, err)
	}
}
