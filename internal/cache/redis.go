package cache

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "homedash/internal/errors"
)

// RedisConfig describes the redis cache connection.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	// Retention bounds how long stale entries stay available for
	// failure substitution. It is deliberately much longer than the
	// freshness TTL applied by the aggregation services.
	Retention time.Duration
}

// Redis stores entries as JSON values so StoredAt survives the round
// trip and staleness stays a caller decision.
type Redis struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address cannot be empty")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "homedash:cache:"
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "reach redis")
	}
	return &Redis{client: client, prefix: prefix, retention: retention}, nil
}

// Get returns the entry for key, or nil on a miss.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read cache entry")
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode cache entry")
	}
	return &entry, nil
}

// Put stores a payload under key with the retention bound.
func (r *Redis) Put(ctx context.Context, key string, payload []byte) error {
	entry := Entry{Payload: payload, StoredAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode cache entry")
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.retention).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write cache entry")
	}
	return nil
}

// Close releases the redis client.
func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// ensure interface compliance at compile time
var _ Cache = (*Redis)(nil)
