// Package endpoints persists the subordinate endpoints the proxy routes to.
// Every Store keeps endpoints in insertion order since router command lines
// list them in that order.
package endpoints

import (
	"context"
	"errors"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

// ErrNotFound indicates the requested endpoint does not exist.
var ErrNotFound = errors.New("endpoint not found")

// Store abstracts persistent management of endpoints.
type Store interface {
	List(ctx context.Context) ([]endpoint.Endpoint, error)
	Get(ctx context.Context, name string) (*endpoint.Endpoint, error)
	// Upsert replaces an endpoint in place or appends it when new.
	Upsert(ctx context.Context, e endpoint.Endpoint) error
	Delete(ctx context.Context, name string) error
}

func indexOf(items []endpoint.Endpoint, name string) int {
	for i := range items {
		if items[i].Name == name {
			return i
		}
	}
	return -1
}
