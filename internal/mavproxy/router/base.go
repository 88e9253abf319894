package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

// base carries the behaviour shared by every variant: binary discovery,
// memoized version probing and the ordered subordinate endpoint list.
type base struct {
	opts       Options
	name       string
	binaryName string
	parse      func(output string) (string, bool)
	supported  []endpoint.ConnectionType

	mu        sync.Mutex
	binary    string
	version   string
	endpoints []endpoint.Endpoint
}

func newBase(name, binaryName string, parse func(string) (string, bool), supported []endpoint.ConnectionType, opts Options) *base {
	return &base{
		opts:       opts.withDefaults(),
		name:       name,
		binaryName: binaryName,
		parse:      parse,
		supported:  supported,
	}
}

func (b *base) Name() string       { return b.name }
func (b *base) BinaryName() string { return b.binaryName }

func (b *base) Binary() (string, bool) {
	b.mu.Lock()
	cached := b.binary
	b.mu.Unlock()
	if cached != "" {
		return cached, true
	}

	path, ok := b.locate()
	if !ok {
		b.opts.Logger.Debug("router binary not found", "router", b.name, "binary", b.binaryName)
		return "", false
	}
	b.mu.Lock()
	b.binary = path
	b.mu.Unlock()
	return path, true
}

func (b *base) locate() (string, bool) {
	if b.opts.BinaryPath != "" {
		return b.opts.BinaryPath, isExecutable(b.opts.BinaryPath)
	}
	for _, dir := range b.opts.SearchPaths {
		candidate := filepath.Join(dir, b.binaryName)
		if isExecutable(candidate) {
			return candidate, true
		}
	}
	path, err := b.opts.LookPath(b.binaryName)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

func (b *base) Version(ctx context.Context) (string, bool, error) {
	b.mu.Lock()
	cached := b.version
	b.mu.Unlock()
	if cached != "" {
		return cached, true, nil
	}

	binary, ok := b.Binary()
	if !ok {
		return "", false, nil
	}
	out, err := b.opts.Runner.Output(ctx, binary, "--version")
	if err != nil {
		return "", false, fmt.Errorf("%s: probe version: %w", b.name, err)
	}
	if !utf8.Valid(out) {
		return "", false, fmt.Errorf("%s: %w", b.name, ErrUndecodableOutput)
	}
	version, ok := b.parse(string(out))
	if !ok {
		return "", false, nil
	}
	b.mu.Lock()
	b.version = version
	b.mu.Unlock()
	return version, true, nil
}

func (b *base) IsOk(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.Warn("router health check panicked", "router", b.name, "panic", r)
			ok = false
		}
	}()
	if _, found := b.Binary(); !found {
		return false
	}
	_, found, err := b.Version(ctx)
	if err != nil {
		b.opts.Logger.Warn("router health check failed", "router", b.name, "error", err)
		return false
	}
	return found
}

func (b *base) ValidateEndpoint(e endpoint.Endpoint) bool {
	return slices.Contains(b.supported, e.ConnectionType)
}

func (b *base) AddEndpoint(e endpoint.Endpoint) error {
	if !b.ValidateEndpoint(e) {
		return fmt.Errorf("%w: %s cannot route %s", ErrUnsupportedEndpoint, b.name, e.ConnectionType)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.endpoints {
		if existing.Name == e.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, e.Name)
		}
	}
	b.endpoints = append(b.endpoints, e)
	return nil
}

func (b *base) RemoveEndpoint(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.endpoints {
		if existing.Name == name {
			b.endpoints = slices.Delete(b.endpoints, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEndpointNotFound, name)
}

func (b *base) ClearEndpoints() {
	b.mu.Lock()
	b.endpoints = nil
	b.mu.Unlock()
}

func (b *base) Endpoints() []endpoint.Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.endpoints)
}

// LogDir returns the configured log directory as an absolute, symlink-free path
// when it exists, and as a cleaned absolute path otherwise.
func (b *base) LogDir() string {
	abs, err := filepath.Abs(b.opts.LogDir)
	if err != nil {
		return filepath.Clean(b.opts.LogDir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// resolvedBinary is the precondition check shared by command assembly.
func (b *base) resolvedBinary() (string, error) {
	binary, ok := b.Binary()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, b.binaryName)
	}
	return binary, nil
}
