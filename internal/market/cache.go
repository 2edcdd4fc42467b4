package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"evo-trading-bot/internal/logging"

	"github.com/redis/go-redis/v9"
)

// CachedFetcher wraps a Fetcher with a Redis bar cache. When Redis is
// unavailable the cache degrades to a pass-through: fetches still succeed,
// cache writes are dropped.
type CachedFetcher struct {
	inner  Fetcher
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time
}

// CacheConfig holds bar cache configuration
type CacheConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	TTL      time.Duration
}

// NewCachedFetcher creates a Redis-backed caching layer around inner
func NewCachedFetcher(inner Fetcher, cfg CacheConfig, logger *logging.Logger) *CachedFetcher {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	cf := &CachedFetcher{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger.WithComponent("market-cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		cf.logger.Warn("Initial Redis connection failed, caching degraded: %v", err)
	} else {
		cf.healthy = true
		cf.lastCheck = time.Now()
	}

	return cf
}

// Fetch implements Fetcher, consulting the cache first
func (cf *CachedFetcher) Fetch(ctx context.Context, req FetchRequest) ([]Bar, error) {
	key := cf.cacheKey(req)

	if cf.isHealthy() {
		if data, err := cf.client.Get(ctx, key).Bytes(); err == nil {
			var bars []Bar
			if err := json.Unmarshal(data, &bars); err == nil && len(bars) > 0 {
				return bars, nil
			}
		} else if err != redis.Nil {
			cf.recordFailure(err)
		}
	}

	bars, err := cf.inner.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if cf.isHealthy() {
		if data, err := json.Marshal(bars); err == nil {
			if err := cf.client.Set(ctx, key, data, cf.ttl).Err(); err != nil {
				cf.recordFailure(err)
			}
		}
	}

	return bars, nil
}

func (cf *CachedFetcher) cacheKey(req FetchRequest) string {
	return fmt.Sprintf("bars:%s:%s:%s:%d:%d",
		req.AssetClass, req.Symbol, req.Interval,
		req.StartDate.Unix(), req.EndDate.Unix())
}

func (cf *CachedFetcher) isHealthy() bool {
	cf.mu.RLock()
	healthy := cf.healthy
	lastCheck := cf.lastCheck
	cf.mu.RUnlock()

	if healthy {
		return true
	}

	// Probe for recovery at most every 30s
	if time.Since(lastCheck) < 30*time.Second {
		return false
	}

	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := cf.client.Ping(ctx).Err(); err == nil {
		cf.healthy = true
		cf.failureCount = 0
		cf.logger.Info("Redis connection recovered")
	}
	return cf.healthy
}

func (cf *CachedFetcher) recordFailure(err error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	cf.failureCount++
	if cf.healthy && cf.failureCount >= 3 {
		cf.healthy = false
		cf.lastCheck = time.Now()
		cf.logger.Warn("Redis marked unhealthy after %d failures: %v", cf.failureCount, err)
	}
}

// Close releases the Redis connection
func (cf *CachedFetcher) Close() error {
	return cf.client.Close()
}
