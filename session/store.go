// Package session stores per-chat conversation state as a keyed blob with a
// TTL, so an in-flight flow survives process restarts and scales across
// instances. Expiry of a key is equivalent to an implicit cancel.
package session

import (
	"context"
	"time"
)

type Store interface {
	// Get unmarshals the blob under key into dest. The second return is
	// false when the key is absent or expired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Put stores value under key and resets its TTL.
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
