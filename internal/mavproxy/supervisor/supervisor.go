// Package supervisor runs the assembled router command as a child process and
// stops it on request. It performs no restarts; callers watch Wait.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/volantvm/mavproxy/internal/mavproxy/router"
)

const defaultStopTimeout = 10 * time.Second

// Process is a running router program.
type Process interface {
	Name() string
	PID() int
	Command() router.Command
	Stop(ctx context.Context) error
	// Wait is closed once the process has exited.
	Wait() <-chan struct{}
	// ExitErr reports how the process ended; valid after Wait is closed.
	ExitErr() error
}

// Launcher starts router programs.
type Launcher interface {
	Launch(ctx context.Context, name string, cmd router.Command) (Process, error)
}

// Options configures a Supervisor.
type Options struct {
	// OutputDir receives <name>.log with the child's stdout and stderr.
	OutputDir   string
	StopTimeout time.Duration
	// MaxOutputMB caps a log file before it is rotated.
	MaxOutputMB      int
	MaxOutputBackups int
	Logger           *slog.Logger
}

// Supervisor launches router processes with rotated output capture.
type Supervisor struct {
	opts Options
}

// New returns a Supervisor.
func New(opts Options) *Supervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.MaxOutputMB <= 0 {
		opts.MaxOutputMB = 10
	}
	if opts.MaxOutputBackups <= 0 {
		opts.MaxOutputBackups = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{opts: opts}
}

// Launch starts cmd. The process is not tied to ctx; ctx only aborts a launch
// that has not begun.
func (s *Supervisor) Launch(ctx context.Context, name string, cmd router.Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cmd.Path == "" {
		return nil, fmt.Errorf("supervisor: command path required")
	}
	if name == "" {
		name = filepath.Base(cmd.Path)
	}

	var output io.WriteCloser = nopCloser{io.Discard}
	if s.opts.OutputDir != "" {
		if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("supervisor: ensure output dir: %w", err)
		}
		output = &lumberjack.Logger{
			Filename:   filepath.Join(s.opts.OutputDir, name+".log"),
			MaxSize:    s.opts.MaxOutputMB,
			MaxBackups: s.opts.MaxOutputBackups,
			Compress:   true,
		}
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Stdout = output
	c.Stderr = output
	configureProcessGroup(c)

	if err := c.Start(); err != nil {
		_ = output.Close()
		return nil, fmt.Errorf("supervisor: start %s: %w", name, err)
	}
	s.opts.Logger.Info("router process started", "name", name, "pid", c.Process.Pid, "command", cmd.String())

	p := &process{
		name:    name,
		cmd:     c,
		command: cmd,
		output:  output,
		done:    make(chan struct{}),
		timeout: s.opts.StopTimeout,
		logger:  s.opts.Logger,
	}
	go func() {
		err := c.Wait()
		_ = output.Close()
		p.exit(err)
	}()
	return p, nil
}

type process struct {
	name    string
	cmd     *exec.Cmd
	command router.Command
	output  io.WriteCloser
	done    chan struct{}
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	exited   bool
	exitErr  error
	stopping bool
}

func (p *process) Name() string            { return p.name }
func (p *process) PID() int                { return p.cmd.Process.Pid }
func (p *process) Command() router.Command { return p.command }
func (p *process) Wait() <-chan struct{}   { return p.done }

func (p *process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func (p *process) exit(err error) {
	p.mu.Lock()
	p.exited = true
	p.exitErr = err
	stopping := p.stopping
	p.mu.Unlock()
	close(p.done)
	if !stopping {
		p.logger.Warn("router process exited", "name", p.name, "pid", p.PID(), "error", err)
	}
}

// Stop sends SIGTERM to the process group and escalates to SIGKILL after the
// configured timeout or when ctx is done.
func (p *process) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := terminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("supervisor: signal term: %w", err)
	}

	select {
	case <-p.done:
	case <-stopCtx.Done():
		p.logger.Warn("router process ignored SIGTERM, killing", "name", p.name, "pid", p.PID())
		if err := kill(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("supervisor: signal kill: %w", err)
		}
		<-p.done
	}
	p.logger.Info("router process stopped", "name", p.name, "pid", p.PID())
	return nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

var _ Launcher = (*Supervisor)(nil)
var _ Process = (*process)(nil)
