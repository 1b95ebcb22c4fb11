// Package cache is a Redis cache-aside layer for balances, history pages and
// admin listings. A nil *Cache, or one built without a client, never hits
// and never fails, so callers need no Redis in memory mode.
package cache

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"        // redis.Nil detection
	"strconv"       // Key building
	"strings"       // Key building
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// Cache wraps a Redis client with a default TTL
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache over rdb; rdb may be nil
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.rdb != nil
}

// Get retrieves a value from Redis and unmarshals it into dest
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, key).Bytes() // Get value from Redis
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal(val, dest) // Unmarshal JSON into dest
}

// Set stores value under key with the cache TTL
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if !c.enabled() {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err() // Set value in Redis with TTL
}

// Delete deletes keys from Redis
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func accountGenKey(accountID int64) string {
	return "account:" + strconv.FormatInt(accountID, 10) + ":gen"
}

// BalanceKey is the key of an account's cached balance. Like history pages it
// embeds the account's generation, so a value read before a mutation and
// stored after its invalidation lands under a retired key. Callers build the
// key before loading the value.
func (c *Cache) BalanceKey(ctx context.Context, accountID int64) string {
	gen := c.generation(ctx, accountGenKey(accountID))
	return "balance:account:" + strconv.FormatInt(accountID, 10) + ":gen:" + gen
}

const adminGenKey = "admin:gen"

// HistoryKey is the key of one history page. It embeds the account's
// generation so that InvalidateAccount retires every page at once.
func (c *Cache) HistoryKey(ctx context.Context, accountID int64, page, size int) string {
	gen := c.generation(ctx, accountGenKey(accountID))
	return "txhistory:account:" + strconv.FormatInt(accountID, 10) +
		":gen:" + gen + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(size)
}

// AdminKey is the key of an admin listing built from the given query parts
func (c *Cache) AdminKey(ctx context.Context, kind string, parts ...string) string {
	gen := c.generation(ctx, adminGenKey)
	return "admin:" + kind + ":gen:" + gen + ":" + strings.Join(parts, ":")
}

// InvalidateAccount drops the cached balance and history of the accounts
// along with every admin listing
func (c *Cache) InvalidateAccount(ctx context.Context, accountIDs ...int64) error {
	if !c.enabled() {
		return nil
	}
	pipe := c.rdb.TxPipeline()
	for _, id := range accountIDs {
		pipe.Incr(ctx, accountGenKey(id))
	}
	pipe.Incr(ctx, adminGenKey)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateAdmin retires every admin listing
func (c *Cache) InvalidateAdmin(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, adminGenKey).Err()
}

func (c *Cache) generation(ctx context.Context, key string) string {
	if !c.enabled() {
		return "0"
	}
	gen, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "0"
	}
	return gen
}
