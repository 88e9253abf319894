package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownBackend is returned for names no variant is registered under.
	ErrUnknownBackend = errors.New("router: unknown backend")
	// ErrNoHealthyBackend is returned by callers that require a usable backend.
	ErrNoHealthyBackend = errors.New("router: no healthy backend")
	// ErrBackendActive is returned when activating while another backend still owns the process.
	ErrBackendActive = errors.New("router: another backend is active")
)

// Factory builds a fresh backend instance.
type Factory func(opts Options) Backend

// Variant names a backend implementation and how to construct it.
type Variant struct {
	Name string
	New  Factory
}

// DefaultVariants lists the known backends in selection priority order.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "MAVLinkRouter", New: func(o Options) Backend { return NewMAVLinkRouter(o) }},
		{Name: "MAVP2P", New: func(o Options) Backend { return NewMAVP2P(o) }},
	}
}

// Registry enumerates backend variants in a fixed order and tracks the single
// backend that currently owns a running routing process.
type Registry struct {
	opts     Options
	variants []Variant

	mu          sync.Mutex
	binaryPaths map[string]string
	active      Backend
}

// NewRegistry returns a registry over variants, or DefaultVariants when none are given.
func NewRegistry(opts Options, variants ...Variant) *Registry {
	if len(variants) == 0 {
		variants = DefaultVariants()
	}
	return &Registry{
		opts:        opts,
		variants:    variants,
		binaryPaths: make(map[string]string),
	}
}

// SetBinaryPath pins the executable used by the named variant.
func (r *Registry) SetBinaryPath(name, path string) error {
	if _, err := r.variant(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.binaryPaths[name] = path
	return nil
}

// Names returns the variant names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.variants))
	for _, v := range r.variants {
		names = append(names, v.Name)
	}
	return names
}

// New instantiates the named variant. Each call probes from scratch.
func (r *Registry) New(name string) (Backend, error) {
	v, err := r.variant(name)
	if err != nil {
		return nil, err
	}
	return r.build(v), nil
}

// Candidates instantiates every variant in priority order.
func (r *Registry) Candidates() []Backend {
	out := make([]Backend, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, r.build(v))
	}
	return out
}

// SelectHealthy returns the first candidate whose health check passes.
func (r *Registry) SelectHealthy(ctx context.Context) (Backend, bool) {
	for _, b := range r.Candidates() {
		if b.IsOk(ctx) {
			return b, true
		}
	}
	return nil, false
}

// Available returns every healthy candidate, keeping priority order.
func (r *Registry) Available(ctx context.Context) []Backend {
	var out []Backend
	for _, b := range r.Candidates() {
		if b.IsOk(ctx) {
			out = append(out, b)
		}
	}
	return out
}

// Activate records b as the owner of the routing process. The previous owner
// must be released first.
func (r *Registry) Activate(b Backend) error {
	if b == nil {
		return fmt.Errorf("router: activate nil backend")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil && r.active != b {
		return fmt.Errorf("%w: %s", ErrBackendActive, r.active.Name())
	}
	r.active = b
	return nil
}

// Active returns the backend owning the routing process, if any.
func (r *Registry) Active() (Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.active != nil
}

// Release clears the active backend.
func (r *Registry) Release() {
	r.mu.Lock()
	r.active = nil
	r.mu.Unlock()
}

func (r *Registry) variant(name string) (Variant, error) {
	for _, v := range r.variants {
		if v.Name == name {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

func (r *Registry) build(v Variant) Backend {
	opts := r.opts
	r.mu.Lock()
	if path, ok := r.binaryPaths[v.Name]; ok {
		opts.BinaryPath = path
	}
	r.mu.Unlock()
	return v.New(opts)
}
