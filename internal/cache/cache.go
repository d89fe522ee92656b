// Package cache stores per-plugin fetch results keyed by instance id
// and query parameters. Entries carry their write time; staleness is
// judged by the caller, because stale entries are still substituted
// when a live fetch fails.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one cached payload with its write timestamp.
type Entry struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how long ago the entry was written.
func (e *Entry) Age() time.Duration {
	return time.Since(e.StoredAt)
}

// Cache is the backend contract. Get returns (nil, nil) on a miss;
// entries are returned regardless of age.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Key builds the canonical (instance_id, query_parameters) cache key.
func Key(instanceID string, params ...string) string {
	parts := append([]string{instanceID}, params...)
	return strings.Join(parts, "|")
}

// WindowKey builds the key for a calendar window query.
func WindowKey(instanceID string, start, end time.Time) string {
	return Key(instanceID,
		fmt.Sprintf("%d", start.Unix()),
		fmt.Sprintf("%d", end.Unix()),
	)
}
