// Package store defines the key-value collaborator the masking engine keeps
// its mappings in, plus the memory and redis backends.
//
// The engine holds no cross-call state of its own: every masking mapping and
// reverse mapping lives behind this contract, namespaced by conversation id
// through key prefixes. Backends only need TTL-capable upserts, point reads,
// and prefix scans/deletes.
package store

import (
	"context"
	"time"

	"github.com/mergedao/masking-mcp-server/internal/errors"
)

// ErrNotFound is returned by Get when a key is absent or expired.
var ErrNotFound = errors.ErrNotFound

// Store is the mapping-service contract.
//
// Writes are blind upserts keyed by deterministic identifiers, so last-writer
// wins is safe for concurrent calls within one conversation. Implementations
// must honor ctx cancellation; callers bound every operation with the
// configured store timeout.
type Store interface {
	// Set upserts key to value with the given TTL (ttl <= 0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Keys lists all live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// DeleteByPrefix removes every key starting with prefix and returns the
	// number of keys removed. Deleting a prefix with no keys is a no-op.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Close releases backend resources.
	Close() error
}
