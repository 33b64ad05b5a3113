package health

import (
	"context"
	"time"

	"github.com/nyc-landmarks/vectordb/internal/catalog"
	"github.com/nyc-landmarks/vectordb/internal/vectorstore"
)

// slowProbe marks a dependency degraded when it answers but takes this
// long to do it.
const slowProbe = 2 * time.Second

// VectorStoreChecker probes the vector index. The index is the one
// dependency queries cannot work without, so it gates readiness.
type VectorStoreChecker struct {
	store   *vectorstore.Client
	timeout time.Duration
}

// NewVectorStoreChecker builds a critical checker over the store.
func NewVectorStoreChecker(store *vectorstore.Client) *VectorStoreChecker {
	return &VectorStoreChecker{store: store, timeout: 5 * time.Second}
}

func (c *VectorStoreChecker) Name() string           { return "vector_store" }
func (c *VectorStoreChecker) IsCritical() bool       { return true }
func (c *VectorStoreChecker) Timeout() time.Duration { return c.timeout }

func (c *VectorStoreChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: c.Name(), Critical: true}

	stats, err := c.store.Stats(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "index stats unavailable"
		result.Error = err.Error()
		return result
	}

	result.Status = StatusHealthy
	result.Message = "index reachable"
	if result.Duration > slowProbe {
		result.Status = StatusDegraded
		result.Message = "index responding slowly"
	}
	result.Details = map[string]any{
		"dimension":     stats.Dimension,
		"total_vectors": stats.TotalVectorCount,
	}
	return result
}

// CatalogChecker probes the landmark catalog. Queries still answer
// without it, only name enrichment suffers, so it is non-critical.
type CatalogChecker struct {
	client  *catalog.Client
	timeout time.Duration
}

// NewCatalogChecker builds a non-critical checker over the catalog.
func NewCatalogChecker(client *catalog.Client) *CatalogChecker {
	return &CatalogChecker{client: client, timeout: 5 * time.Second}
}

func (c *CatalogChecker) Name() string           { return "catalog" }
func (c *CatalogChecker) IsCritical() bool       { return false }
func (c *CatalogChecker) Timeout() time.Duration { return c.timeout }

func (c *CatalogChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: c.Name()}

	total, err := c.client.TotalCount(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "catalog unavailable"
		result.Error = err.Error()
		return result
	}

	result.Status = StatusHealthy
	result.Message = "catalog reachable"
	if result.Duration > slowProbe {
		result.Status = StatusDegraded
		result.Message = "catalog responding slowly"
	}
	result.Details = map[string]any{"total_landmarks": total}
	return result
}

// Pinger is the slice of a cache client the Redis checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisChecker probes the shared embedding cache. A cold cache only
// costs latency, so it is non-critical.
type RedisChecker struct {
	pinger  Pinger
	timeout time.Duration
}

// NewRedisChecker builds a non-critical checker over the cache.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger, timeout: 3 * time.Second}
}

func (c *RedisChecker) Name() string           { return "redis" }
func (c *RedisChecker) IsCritical() bool       { return false }
func (c *RedisChecker) Timeout() time.Duration { return c.timeout }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Component: c.Name()}

	err := c.pinger.Ping(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = "cache ping failed"
		result.Error = err.Error()
		return result
	}

	result.Status = StatusHealthy
	result.Message = "cache reachable"
	return result
}
