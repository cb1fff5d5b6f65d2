// Package redis implements the access-token denylist on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces denylist keys.
const KeyPrefix = "englearn:auth:denylist:"

// Denylist stores revoked access-token jtis as expiring keys, so entries
// disappear on their own when the token would have expired anyway.
type Denylist struct {
	client goredis.UniversalClient
}

// NewDenylist creates a Redis-backed denylist.
func NewDenylist(client goredis.UniversalClient) *Denylist {
	return &Denylist{client: client}
}

// Add denylists jti for ttl.
func (d *Denylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 || jti == "" {
		return nil
	}
	if err := d.client.Set(ctx, KeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("denylist jti: %w", err)
	}
	return nil
}

// Contains reports whether jti is denylisted.
func (d *Denylist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, KeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check denylist: %w", err)
	}
	return n > 0, nil
}
