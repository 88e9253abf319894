// Package manager coordinates router selection, the persisted endpoint set and
// the single routing process that bridges them.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
	"github.com/volantvm/mavproxy/internal/mavproxy/endpoints"
	"github.com/volantvm/mavproxy/internal/mavproxy/eventbus"
	"github.com/volantvm/mavproxy/internal/mavproxy/router"
	"github.com/volantvm/mavproxy/internal/mavproxy/supervisor"
)

var (
	// ErrNotRunning is returned when stopping while no router runs.
	ErrNotRunning = errors.New("router not running")
	// ErrAlreadyRunning is returned when starting while a router runs.
	ErrAlreadyRunning = errors.New("router already running")
	// ErrEndpointExists is returned when adding an endpoint under a taken name.
	ErrEndpointExists = errors.New("endpoint already exists")
	// ErrProtected is returned when removing a protected endpoint.
	ErrProtected = errors.New("endpoint is protected")
)

// ValidationError marks input validation failures.
type ValidationError struct{ Err error }

func (e ValidationError) Error() string { return e.Err.Error() }
func (e ValidationError) Unwrap() error { return e.Err }

// RouterUnavailableError indicates no backend can currently serve the request.
type RouterUnavailableError struct{ Err error }

func (e RouterUnavailableError) Error() string { return fmt.Sprintf("router unavailable: %v", e.Err) }
func (e RouterUnavailableError) Unwrap() error { return e.Err }

// Params wires a Manager.
type Params struct {
	Registry *router.Registry
	Store    endpoints.Store
	Launcher supervisor.Launcher
	Bus      eventbus.Bus
	Logger   *slog.Logger
	// Master is the upstream endpoint fanned out to every subordinate.
	Master endpoint.Endpoint
	// Preferred names the backend tried before falling back to priority order.
	Preferred string
}

// RouterInfo summarises one backend candidate.
type RouterInfo struct {
	Name       string `json:"name"`
	BinaryName string `json:"binary_name"`
	Binary     string `json:"binary,omitempty"`
	Version    string `json:"version,omitempty"`
	Healthy    bool   `json:"healthy"`
	Preferred  bool   `json:"preferred"`
	Active     bool   `json:"active"`
}

// Status reports the routing process state.
type Status struct {
	Running   bool              `json:"running"`
	Router    string            `json:"router,omitempty"`
	PID       int               `json:"pid,omitempty"`
	Command   string            `json:"command,omitempty"`
	Master    endpoint.Endpoint `json:"master"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
}

// Manager owns the active backend and its process.
type Manager struct {
	registry *router.Registry
	store    endpoints.Store
	launcher supervisor.Launcher
	bus      eventbus.Bus
	logger   *slog.Logger

	mu        sync.Mutex
	master    endpoint.Endpoint
	preferred string
	backend   router.Backend
	process   supervisor.Process
	startedAt time.Time
}

// New constructs a Manager.
func New(p Params) (*Manager, error) {
	if p.Registry == nil {
		return nil, fmt.Errorf("manager: registry required")
	}
	if p.Store == nil {
		return nil, fmt.Errorf("manager: endpoint store required")
	}
	if p.Launcher == nil {
		return nil, fmt.Errorf("manager: launcher required")
	}
	if err := p.Master.Validate(); err != nil {
		return nil, fmt.Errorf("manager: master endpoint: %w", err)
	}
	if p.Preferred != "" {
		if _, err := p.Registry.New(p.Preferred); err != nil {
			return nil, fmt.Errorf("manager: %w", err)
		}
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		registry:  p.Registry,
		store:     p.Store,
		launcher:  p.Launcher,
		bus:       p.Bus,
		logger:    p.Logger,
		master:    p.Master,
		preferred: p.Preferred,
	}, nil
}

// Routers probes every candidate backend.
func (m *Manager) Routers(ctx context.Context) []RouterInfo {
	m.mu.Lock()
	preferred := m.preferred
	active := ""
	if m.backend != nil {
		active = m.backend.Name()
	}
	m.mu.Unlock()

	candidates := m.registry.Candidates()
	out := make([]RouterInfo, 0, len(candidates))
	for _, b := range candidates {
		info := RouterInfo{
			Name:       b.Name(),
			BinaryName: b.BinaryName(),
			Healthy:    b.IsOk(ctx),
			Preferred:  b.Name() == preferred,
			Active:     b.Name() == active,
		}
		info.Binary, _ = b.Binary()
		if info.Healthy {
			info.Version, _, _ = b.Version(ctx)
		}
		out = append(out, info)
	}
	return out
}

// SetPreferredRouter records the backend tried first on the next start. An
// empty name restores plain priority order.
func (m *Manager) SetPreferredRouter(name string) error {
	if name != "" {
		if _, err := m.registry.New(name); err != nil {
			return ValidationError{Err: err}
		}
	}
	m.mu.Lock()
	m.preferred = name
	m.mu.Unlock()
	return nil
}

// Master returns the configured master endpoint.
func (m *Manager) Master() endpoint.Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master
}

// SetMaster replaces the master endpoint, restarting a running router.
func (m *Manager) SetMaster(ctx context.Context, master endpoint.Endpoint) error {
	if err := master.Validate(); err != nil {
		return ValidationError{Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		if _, err := m.backend.AssembleCommand(master); err != nil {
			return ValidationError{Err: err}
		}
	}
	if m.process == nil {
		m.master = master
		return nil
	}
	items, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}
	previous := m.master
	m.master = master
	return m.relaunchLocked(ctx, items, items, func() { m.master = previous })
}

// Endpoints returns the persisted subordinate endpoints in order.
func (m *Manager) Endpoints(ctx context.Context) ([]endpoint.Endpoint, error) {
	return m.store.List(ctx)
}

// AddEndpoint validates and persists a subordinate endpoint, restarting a
// running router so its command line includes it.
func (m *Manager) AddEndpoint(ctx context.Context, e endpoint.Endpoint) (endpoint.Endpoint, error) {
	if err := e.Validate(); err != nil {
		return endpoint.Endpoint{}, ValidationError{Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.store.List(ctx)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("load endpoints: %w", err)
	}
	if slices.ContainsFunc(current, func(x endpoint.Endpoint) bool { return x.Name == e.Name }) {
		return endpoint.Endpoint{}, ValidationError{Err: fmt.Errorf("%w: %s", ErrEndpointExists, e.Name)}
	}
	if m.backend != nil && !m.backend.ValidateEndpoint(e) {
		return endpoint.Endpoint{}, ValidationError{Err: fmt.Errorf("%w: %s cannot route %s", router.ErrUnsupportedEndpoint, m.backend.Name(), e.ConnectionType)}
	}

	next := append(slices.Clone(current), e)
	if err := m.relaunchLocked(ctx, next, current, nil); err != nil {
		return endpoint.Endpoint{}, err
	}
	if err := m.store.Upsert(ctx, e); err != nil {
		m.revertLocked(ctx, current)
		return endpoint.Endpoint{}, err
	}
	m.logger.Info("endpoint added", "name", e.Name, "endpoint", e.String())
	return e, nil
}

// RemoveEndpoint deletes a subordinate endpoint unless it is protected.
func (m *Manager) RemoveEndpoint(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if e.Protected {
		return ValidationError{Err: fmt.Errorf("%w: %s", ErrProtected, name)}
	}
	current, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load endpoints: %w", err)
	}
	next := slices.DeleteFunc(slices.Clone(current), func(x endpoint.Endpoint) bool { return x.Name == name })
	if err := m.relaunchLocked(ctx, next, current, nil); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, name); err != nil {
		m.revertLocked(ctx, current)
		return err
	}
	m.logger.Info("endpoint removed", "name", name)
	return nil
}

// Preview returns the backend and command Start would launch.
func (m *Manager) Preview(ctx context.Context) (string, router.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.process != nil {
		return m.backend.Name(), m.process.Command(), nil
	}
	items, err := m.store.List(ctx)
	if err != nil {
		return "", router.Command{}, fmt.Errorf("load endpoints: %w", err)
	}
	b, cmd, err := m.prepareLocked(ctx, items)
	if err != nil {
		return "", router.Command{}, err
	}
	return b.Name(), cmd, nil
}

// Start selects a healthy backend and launches it.
func (m *Manager) Start(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.process != nil {
		return m.statusLocked(), ErrAlreadyRunning
	}
	items, err := m.store.List(ctx)
	if err != nil {
		return m.statusLocked(), fmt.Errorf("load endpoints: %w", err)
	}
	if err := m.startLocked(ctx, items); err != nil {
		return m.statusLocked(), err
	}
	return m.statusLocked(), nil
}

// Stop terminates the routing process and releases its backend.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

// Restart stops a running router, if any, and starts again.
func (m *Manager) Restart(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, err := m.store.List(ctx)
	if err != nil {
		return m.statusLocked(), fmt.Errorf("load endpoints: %w", err)
	}
	if err := m.stopLocked(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return m.statusLocked(), err
	}
	if err := m.startLocked(ctx, items); err != nil {
		return m.statusLocked(), err
	}
	return m.statusLocked(), nil
}

// Status reports the current routing process.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	st := Status{Master: m.master}
	if m.process == nil {
		return st
	}
	startedAt := m.startedAt
	st.Running = true
	st.Router = m.backend.Name()
	st.PID = m.process.PID()
	st.Command = m.process.Command().String()
	st.StartedAt = &startedAt
	return st
}

// selectLocked prefers the configured backend and falls back to priority order.
func (m *Manager) selectLocked(ctx context.Context) (router.Backend, error) {
	if m.preferred != "" {
		b, err := m.registry.New(m.preferred)
		if err != nil {
			return nil, err
		}
		if b.IsOk(ctx) {
			return b, nil
		}
		m.logger.Warn("preferred router unavailable, falling back", "router", m.preferred)
	}
	b, ok := m.registry.SelectHealthy(ctx)
	if !ok {
		return nil, RouterUnavailableError{Err: router.ErrNoHealthyBackend}
	}
	return b, nil
}

// prepareLocked assembles the command for items on a freshly selected backend.
func (m *Manager) prepareLocked(ctx context.Context, items []endpoint.Endpoint) (router.Backend, router.Command, error) {
	b, err := m.selectLocked(ctx)
	if err != nil {
		return nil, router.Command{}, err
	}
	for _, e := range items {
		if !e.Enabled {
			continue
		}
		if err := b.AddEndpoint(e); err != nil {
			m.logger.Warn("endpoint skipped", "router", b.Name(), "endpoint", e.Name, "error", err)
		}
	}
	cmd, err := b.AssembleCommand(m.master)
	if err != nil {
		if errors.Is(err, router.ErrUnsupportedEndpoint) {
			return nil, router.Command{}, ValidationError{Err: err}
		}
		return nil, router.Command{}, err
	}
	return b, cmd, nil
}

func (m *Manager) startLocked(ctx context.Context, items []endpoint.Endpoint) error {
	if m.process != nil {
		return ErrAlreadyRunning
	}
	b, cmd, err := m.prepareLocked(ctx, items)
	if err != nil {
		return err
	}
	if err := m.registry.Activate(b); err != nil {
		return err
	}
	proc, err := m.launcher.Launch(ctx, b.Name(), cmd)
	if err != nil {
		m.registry.Release()
		return fmt.Errorf("launch %s: %w", b.Name(), err)
	}

	m.backend = b
	m.process = proc
	m.startedAt = time.Now().UTC()
	m.logger.Info("router started", "router", b.Name(), "pid", proc.PID(), "command", cmd.String())
	m.publish(eventbus.RouterEvent{Type: eventbus.RouterStarted, Router: b.Name(), PID: proc.PID(), Command: cmd.String()})

	go m.watch(proc)
	return nil
}

func (m *Manager) stopLocked(ctx context.Context) error {
	if m.process == nil {
		return ErrNotRunning
	}
	proc, b := m.process, m.backend
	if err := proc.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", b.Name(), err)
	}
	m.process = nil
	m.backend = nil
	m.registry.Release()
	m.logger.Info("router stopped", "router", b.Name(), "pid", proc.PID())
	m.publish(eventbus.RouterEvent{Type: eventbus.RouterStopped, Router: b.Name(), PID: proc.PID()})
	return nil
}

// relaunchLocked restarts a running router with next. When that launch fails,
// restore runs and the router is started again with previous; the launch error
// is returned either way. Nothing happens while the router is stopped.
func (m *Manager) relaunchLocked(ctx context.Context, next, previous []endpoint.Endpoint, restore func()) error {
	if m.process == nil {
		return nil
	}
	if err := m.stopLocked(ctx); err != nil {
		if restore != nil {
			restore()
		}
		return err
	}
	if err := m.startLocked(ctx, next); err != nil {
		if restore != nil {
			restore()
		}
		if rerr := m.startLocked(ctx, previous); rerr != nil {
			m.logger.Error("restore previous router configuration", "error", rerr)
		}
		return err
	}
	return nil
}

// revertLocked puts a running router back on previous after a store write failed.
func (m *Manager) revertLocked(ctx context.Context, previous []endpoint.Endpoint) {
	if err := m.relaunchLocked(ctx, previous, previous, nil); err != nil {
		m.logger.Error("revert router configuration", "error", err)
	}
}

// watch clears state when the process exits on its own. Restart policy is
// left to the caller.
func (m *Manager) watch(proc supervisor.Process) {
	<-proc.Wait()

	m.mu.Lock()
	if m.process != proc {
		m.mu.Unlock()
		return
	}
	name := m.backend.Name()
	m.process = nil
	m.backend = nil
	m.registry.Release()
	m.mu.Unlock()

	evt := eventbus.RouterEvent{Type: eventbus.RouterExited, Router: name, PID: proc.PID()}
	if err := proc.ExitErr(); err != nil {
		evt.Error = err.Error()
	}
	m.logger.Warn("router exited unexpectedly", "router", name, "pid", proc.PID(), "error", evt.Error)
	m.publish(evt)
}

func (m *Manager) publish(evt eventbus.RouterEvent) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(context.Background(), evt); err != nil {
		m.logger.Warn("publish router event", "type", evt.Type, "error", err)
	}
}
