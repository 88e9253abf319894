package endpoints

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

func sample(name, place string, port uint32) endpoint.Endpoint {
	return endpoint.Endpoint{
		Name:           name,
		Owner:          "tests",
		ConnectionType: endpoint.UDPClient,
		Place:          place,
		Argument:       port,
		Persistent:     true,
		Enabled:        true,
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	for _, e := range []endpoint.Endpoint{
		sample("gcs-b", "10.0.0.2", 14551),
		sample("gcs-a", "10.0.0.1", 14550),
		sample("gcs-c", "10.0.0.3", 14552),
	} {
		if err := store.Upsert(ctx, e); err != nil {
			t.Fatalf("upsert %s: %v", e.Name, err)
		}
	}

	updated := sample("gcs-a", "10.0.0.9", 14559)
	updated.Protected = true
	if err := store.Upsert(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	wantOrder := []string{"gcs-b", "gcs-a", "gcs-c"}
	if len(items) != len(wantOrder) {
		t.Fatalf("expected %d items, got %d", len(wantOrder), len(items))
	}
	for i, name := range wantOrder {
		if items[i].Name != name {
			t.Fatalf("position %d: got %s want %s", i, items[i].Name, name)
		}
	}

	got, err := store.Get(ctx, "gcs-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *got != updated {
		t.Fatalf("unexpected endpoint: %+v", *got)
	}

	if err := store.Delete(ctx, "gcs-b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "gcs-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "gcs-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "endpoints.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	exerciseStore(t, store)

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	items, err := reopened.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Name != "gcs-a" || items[1].Name != "gcs-c" {
		t.Fatalf("unexpected persisted items: %+v", items)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := NewFileStore(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "endpoints.db")
	store, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	exerciseStore(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	items, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Name != "gcs-a" || !items[0].Protected {
		t.Fatalf("unexpected persisted items: %+v", items)
	}
}
