// Package router abstracts the external MAVLink routing programs the proxy can
// drive. Each Backend wraps one program: it locates the binary, probes its
// version, validates endpoints and assembles the command line that starts it.
package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

var (
	// ErrUnsupportedEndpoint is returned when a backend cannot serve an endpoint's connection type.
	ErrUnsupportedEndpoint = errors.New("router: unsupported endpoint type")
	// ErrNotInstalled is returned when the backend binary cannot be located.
	ErrNotInstalled = errors.New("router: binary not installed")
	// ErrDuplicateEndpoint is returned when an endpoint name is already configured.
	ErrDuplicateEndpoint = errors.New("router: endpoint already configured")
	// ErrEndpointNotFound is returned when removing an endpoint that is not configured.
	ErrEndpointNotFound = errors.New("router: endpoint not configured")
	// ErrUndecodableOutput is returned when a probe prints something other than UTF-8 text.
	ErrUndecodableOutput = errors.New("router: probe output is not utf-8")
)

// Backend is the contract every routing program implementation satisfies.
//
// Binary and Version memoize their first successful result on the instance;
// instances are not safe for concurrent first use without external locking.
type Backend interface {
	// Name is the stable identifier of the variant.
	Name() string
	// BinaryName is the executable file name searched for on the host.
	BinaryName() string
	// Binary returns the resolved executable path, or false when not installed.
	Binary() (string, bool)
	// Version runs the binary with --version. It reports false when the output
	// carries no version and returns an error when the binary cannot be run.
	Version(ctx context.Context) (string, bool, error)
	// IsOk reports whether the binary is present and its version readable. It never fails.
	IsOk(ctx context.Context) bool
	// ValidateEndpoint reports whether an endpoint may be added to this backend.
	ValidateEndpoint(e endpoint.Endpoint) bool
	// AssembleCommand builds the invocation routing master to every configured endpoint.
	AssembleCommand(master endpoint.Endpoint) (Command, error)

	AddEndpoint(e endpoint.Endpoint) error
	RemoveEndpoint(name string) error
	ClearEndpoints()
	Endpoints() []endpoint.Endpoint
	LogDir() string
}

// Command is an assembled invocation: the binary path followed by its arguments.
type Command struct {
	Path string   `json:"path"`
	Args []string `json:"args"`
}

// Argv returns the full argument vector including the binary path.
func (c Command) Argv() []string {
	return append([]string{c.Path}, c.Args...)
}

// String joins the argument vector with single spaces.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Runner executes a program synchronously and returns its standard output.
// A non-zero exit or a failure to start is an error.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Options configures a backend instance.
type Options struct {
	// LogDir is handed to routers that write their own telemetry logs.
	LogDir string
	// BinaryPath skips the search and pins the executable location.
	BinaryPath string
	// SearchPaths are directories checked before $PATH.
	SearchPaths []string
	// LookPath resolves a bare binary name. Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// Runner executes version probes. Defaults to ExecRunner.
	Runner Runner
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
