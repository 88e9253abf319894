package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

// FileStore persists endpoints to a JSON file on disk.
type FileStore struct {
	path  string
	mu    sync.RWMutex
	items []endpoint.Endpoint
}

// NewFileStore loads existing endpoints from path or creates a new empty store.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("endpoints: file path required")
	}
	store := &FileStore{path: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("endpoints: read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var items []endpoint.Endpoint
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("endpoints: decode file: %w", err)
	}
	for _, e := range items {
		if i := indexOf(f.items, e.Name); i >= 0 {
			f.items[i] = e
			continue
		}
		f.items = append(f.items, e)
	}
	return nil
}

// List returns all persisted endpoints.
func (f *FileStore) List(context.Context) ([]endpoint.Endpoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.items), nil
}

// Get fetches an endpoint by name.
func (f *FileStore) Get(_ context.Context, name string) (*endpoint.Endpoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if i := indexOf(f.items, name); i >= 0 {
		copy := f.items[i]
		return &copy, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Upsert writes or replaces an endpoint on disk.
func (f *FileStore) Upsert(_ context.Context, e endpoint.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	previous := slices.Clone(f.items)
	if i := indexOf(f.items, e.Name); i >= 0 {
		f.items[i] = e
	} else {
		f.items = append(f.items, e)
	}
	if err := f.persistLocked(); err != nil {
		f.items = previous
		return err
	}
	return nil
}

// Delete removes an endpoint from disk.
func (f *FileStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := indexOf(f.items, name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	previous := slices.Clone(f.items)
	f.items = slices.Delete(f.items, i, i+1)
	if err := f.persistLocked(); err != nil {
		f.items = previous
		return err
	}
	return nil
}

func (f *FileStore) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("endpoints: ensure directory: %w", err)
	}

	entries := f.items
	if entries == nil {
		entries = []endpoint.Endpoint{}
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "endpoints-*.json")
	if err != nil {
		return fmt.Errorf("endpoints: create temp file: %w", err)
	}
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("endpoints: encode file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("endpoints: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("endpoints: replace file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
