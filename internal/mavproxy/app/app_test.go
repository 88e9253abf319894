package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/volantvm/mavproxy/internal/mavproxy/config"
	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
	"github.com/volantvm/mavproxy/internal/mavproxy/endpoints"
	"github.com/volantvm/mavproxy/internal/mavproxy/manager"
	"github.com/volantvm/mavproxy/internal/mavproxy/router"
	"github.com/volantvm/mavproxy/internal/mavproxy/supervisor"
)

type testRunner struct{}

func (testRunner) Output(context.Context, string, ...string) ([]byte, error) {
	return []byte("mavlink-routerd version 5\n"), nil
}

type testProcess struct {
	cmd     router.Command
	done    chan struct{}
	once    sync.Once
	stopped chan struct{}
}

func (p *testProcess) Name() string            { return "test" }
func (p *testProcess) PID() int                { return 1 }
func (p *testProcess) Command() router.Command { return p.cmd }
func (p *testProcess) Wait() <-chan struct{}   { return p.done }
func (p *testProcess) ExitErr() error          { return nil }

func (p *testProcess) Stop(context.Context) error {
	p.once.Do(func() {
		close(p.done)
		close(p.stopped)
	})
	return nil
}

type testLauncher struct{ proc *testProcess }

func (l *testLauncher) Launch(_ context.Context, _ string, cmd router.Command) (supervisor.Process, error) {
	l.proc.cmd = cmd
	return l.proc, nil
}

func TestRunAutostartsAndStopsRouter(t *testing.T) {
	proc := &testProcess{done: make(chan struct{}), stopped: make(chan struct{})}
	registry := router.NewRegistry(router.Options{
		LookPath: func(string) (string, error) { return "/usr/bin/mavlink-routerd", nil },
		Runner:   testRunner{},
	})
	master, err := endpoint.Parse("master", "udp_server:0.0.0.0:14550")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := manager.New(manager.Params{
		Registry: registry,
		Store:    endpoints.NewMemoryStore(),
		Launcher: &testLauncher{proc: proc},
		Logger:   logger,
		Master:   master,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	cfg := config.Config{HTTPListen: "127.0.0.1:0", Autostart: true, StopTimeout: time.Second}
	daemon := New(cfg, logger, mgr, http.NotFoundHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !mgr.Status().Running {
		select {
		case <-deadline:
			t.Fatalf("router not autostarted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("daemon did not shut down")
	}
	select {
	case <-proc.stopped:
	default:
		t.Fatalf("router process not stopped on shutdown")
	}
}
