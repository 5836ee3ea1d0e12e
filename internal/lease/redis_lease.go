// Package lease provides a Redis-backed mutual-exclusion lease so that only one
// process runs a reminder tick at a time.
package lease

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/assistant/internal/reminders"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey = "assistant:scheduler:lease"
	DefaultTTL = 2 * time.Minute
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrNotHeld is returned by a release whose token no longer owns the key.
var ErrNotHeld = errors.New("lease: not held")

// RedisLeaseConfig describes a lease.
type RedisLeaseConfig struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
}

// RedisLease acquires with SET NX PX. Extension and release are compare-and-act scripts
// keyed on the holder's token. The TTL bounds how long a crashed holder blocks others.
type RedisLease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLease validates the configuration and builds a lease.
func NewRedisLease(cfg RedisLeaseConfig) (*RedisLease, error) {
	if cfg.Client == nil {
		return nil, errors.New("lease: redis client required")
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = DefaultKey
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLease{client: cfg.Client, key: key, ttl: ttl}, nil
}

// Acquire tries to take the lease once. ok is false when another holder owns it.
func (l *RedisLease) Acquire(ctx context.Context) (reminders.HeldLease, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return &Hold{lease: l, token: token}, true, nil
}

// Hold is one acquisition of a RedisLease, identified by its random token.
type Hold struct {
	lease *RedisLease
	token string
}

// Extend pushes the expiry a full TTL into the future while the token still owns the key.
func (h *Hold) Extend(ctx context.Context) error {
	extended, err := extendScript.Run(ctx, h.lease.client, []string{h.lease.key}, h.token, h.lease.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if extended == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release deletes the key when the token still owns it.
func (h *Hold) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, h.lease.client, []string{h.lease.key}, h.token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotHeld
	}
	return nil
}
