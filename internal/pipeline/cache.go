package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/metrics"
)

// DefaultCacheTTL is how long an extraction result stays cached.
const DefaultCacheTTL = 5 * time.Minute

// DefaultComputeTimeout bounds one shared computation. It covers a cold model
// load plus generation of every field.
const DefaultComputeTimeout = 20 * time.Minute

// Cache memoizes extraction results by content hash and collapses concurrent
// identical requests into one computation. A nil *Cache computes every time.
type Cache[V any] struct {
	kind      string
	cache     *ttlcache.Cache[string, V]
	group     singleflight.Group
	cacheable func(V) bool
	timeout   time.Duration
	logger    *slog.Logger
}

// NewCache creates a cache for one result kind. cacheable, when set, decides
// whether a successful result may be stored.
func NewCache[V any](kind string, ttl time.Duration, cacheable func(V) bool, logger *slog.Logger) *Cache[V] {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := ttlcache.New[string, V](
		ttlcache.WithTTL[string, V](ttl),
		ttlcache.WithDisableTouchOnHit[string, V](),
	)
	go c.Start()
	return &Cache[V]{kind: kind, cache: c, cacheable: cacheable, timeout: DefaultComputeTimeout, logger: logger}
}

// Do returns the cached value for key or computes it with fn. shared reports
// whether the value came from the cache or was handed to more than one caller.
//
// The computation runs detached from any single caller: it keeps the values of
// the first caller's ctx but not its cancellation, and is bounded by the
// compute timeout. Each caller stops waiting when its own ctx is done.
func (c *Cache[V]) Do(ctx context.Context, key string, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	if c == nil {
		v, err = fn(ctx)
		return v, false, err
	}

	if item := c.cache.Get(key); item != nil {
		metrics.RecordCacheHit(c.kind)
		c.logger.Debug("pipeline.cache.hit", "kind", c.kind)
		return item.Value(), true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		metrics.RecordCacheMiss(c.kind)
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		v, err := fn(cctx)
		if err != nil {
			return v, err
		}
		if c.cacheable == nil || c.cacheable(v) {
			c.cache.Set(key, v, ttlcache.DefaultTTL)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return v, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("pipeline.cache.singleflight", "kind", c.kind)
		}
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		out, _ := res.Val.(V)
		return out, res.Shared, nil
	}
}

// Stop halts the expiry loop.
func (c *Cache[V]) Stop() {
	if c != nil {
		c.cache.Stop()
	}
}

// ContentHash fingerprints document bytes for cache keys and the ledger.
func ContentHash(data []byte) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64(data))
	return hex.EncodeToString(buf[:])
}

// cacheKey scopes a content hash to an operation and the inputs that change its result.
func cacheKey(op, hash string, parts ...string) string {
	h := xxhash.New()
	_, _ = h.WriteString(op)
	for _, p := range parts {
		_, _ = h.WriteString("|")
		_, _ = h.WriteString(p)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h.Sum64())
	return op + ":" + hash + ":" + hex.EncodeToString(buf[:])
}
