// Package cache is a read-through Redis cache for the floor view: the
// per-branch table list every terminal polls between pushes. Entries are
// short-lived and invalidated on any table or order mutation in the branch,
// so a stale read never outlives the next poll. A nil client disables
// caching entirely.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const floorTTL = 10 * time.Second

// NewClient connects to Redis at addr, or returns nil when addr is empty or
// the server is unreachable. Callers degrade to uncached reads on nil.
func NewClient(addr, password string, useTLS bool) *redis.Client {
	if addr == "" {
		return nil
	}
	var tlsConf *tls.Config
	if useTLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      addr,
		Password:  password,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}
	return client
}

// Floor caches the rendered table-list response per branch.
type Floor struct {
	rdb *redis.Client
}

func NewFloor(rdb *redis.Client) *Floor {
	return &Floor{rdb: rdb}
}

func floorKey(branchID uuid.UUID) string {
	return fmt.Sprintf("floor:%s", branchID)
}

// Get returns the cached floor body for a branch, or ok=false on miss,
// disabled cache, or any Redis error.
func (f *Floor) Get(ctx context.Context, branchID uuid.UUID) ([]byte, bool) {
	if f == nil || f.rdb == nil {
		return nil, false
	}
	body, err := f.rdb.Get(ctx, floorKey(branchID)).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

// Set stores the rendered floor body. Errors are swallowed; the cache is an
// optimization, never a dependency.
func (f *Floor) Set(ctx context.Context, branchID uuid.UUID, body []byte) {
	if f == nil || f.rdb == nil {
		return
	}
	_ = f.rdb.Set(ctx, floorKey(branchID), body, floorTTL).Err()
}

// Invalidate drops the branch's floor entry after a mutation.
func (f *Floor) Invalidate(ctx context.Context, branchID uuid.UUID) {
	if f == nil || f.rdb == nil {
		return
	}
	_ = f.rdb.Del(ctx, floorKey(branchID)).Err()
}
