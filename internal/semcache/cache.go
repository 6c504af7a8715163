// Package semcache implements the semantic cache: a tenant-scoped store of
// previously generated responses keyed by embedding fingerprint, looked up
// by nearest-neighbor similarity rather than exact match.
package semcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/convoy/internal/model"
	"github.com/nextlevelbuilder/convoy/internal/retrieval"
)

// similarityThreshold is the minimum cosine similarity for a cached entry to
// count as a hit.
const similarityThreshold = 0.95

// Cache is a Redis-backed semantic cache. Entries expire via Redis' native
// TTL; a per-tenant Redis set tracks live fingerprints so Lookup can fetch a
// bounded working set to scan instead of running a Redis-wide KEYS scan.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to addr and validates the connection with a ping.
func New(addr string, ttl time.Duration) (*Cache, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Cache{client: c, ttl: ttl}, nil
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func entryKey(tenantID, fingerprint string) string {
	return fmt.Sprintf("semcache:%s:%s", tenantID, fingerprint)
}

func indexKey(tenantID string) string {
	return fmt.Sprintf("semcache-index:%s", tenantID)
}

// Put writes entry under its tenant+fingerprint key with the given TTL
// (falling back to the cache's default when ttl is zero) and registers the
// fingerprint in the tenant's index set. ExpiresAt is stamped from the
// effective TTL so readers can apply a max-age filter independent of
// Redis' own expiry.
func (c *Cache) Put(ctx context.Context, entry model.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	entry.ExpiresAt = time.Now().Add(ttl)
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := entryKey(entry.TenantID, entry.Fingerprint)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, raw, ttl)
	pipe.SAdd(ctx, indexKey(entry.TenantID), entry.Fingerprint)
	pipe.Expire(ctx, indexKey(entry.TenantID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Lookup performs a brute-force cosine scan over the tenant's live
// fingerprints and returns the best match if it reaches similarityThreshold.
// A tenant with a very large working set would want an ANN index instead;
// this is fine at the scale a single tenant's live cache entries reach.
func (c *Cache) Lookup(ctx context.Context, tenantID string, queryEmbedding []float32) (model.CacheEntry, bool, error) {
	fingerprints, err := c.client.SMembers(ctx, indexKey(tenantID)).Result()
	if err != nil {
		return model.CacheEntry{}, false, err
	}
	if len(fingerprints) == 0 {
		return model.CacheEntry{}, false, nil
	}

	keys := make([]string, len(fingerprints))
	for i, fp := range fingerprints {
		keys[i] = entryKey(tenantID, fp)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return model.CacheEntry{}, false, err
	}

	var best model.CacheEntry
	var bestScore float32 = -1
	found := false
	for _, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var entry model.CacheEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
			continue
		}
		score := retrieval.Cosine(queryEmbedding, entry.Embedding)
		if score > bestScore {
			bestScore = score
			best = entry
			found = true
		}
	}
	if !found || bestScore < similarityThreshold {
		return model.CacheEntry{}, false, nil
	}
	return best, true, nil
}

// Invalidate removes every cached entry for a tenant, used when a tenant's
// knowledge base changes underneath the cache.
func (c *Cache) Invalidate(ctx context.Context, tenantID string) error {
	fingerprints, err := c.client.SMembers(ctx, indexKey(tenantID)).Result()
	if err != nil {
		return err
	}
	if len(fingerprints) > 0 {
		keys := make([]string, len(fingerprints))
		for i, fp := range fingerprints {
			keys[i] = entryKey(tenantID, fp)
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return c.client.Del(ctx, indexKey(tenantID)).Err()
}
