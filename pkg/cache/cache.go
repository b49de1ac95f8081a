// Package cache keeps recently computed feature vectors in Redis so repeated
// predictions for a device with no new telemetry skip the extraction.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/levenlabs/go-lflag"

	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	DefaultTTL = 5 * time.Minute
)

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Key identifies the inputs a feature vector was computed from.
type Key struct {
	DeviceID string
	// Newest is the timestamp of the newest sample.
	Newest time.Time
	// LastMaintenance is the latest completed maintenance, zero if none.
	LastMaintenance time.Time
}

// FeatureCache stores feature vectors by Key. A nil or disabled cache
// misses every lookup.
type FeatureCache struct {
	client Client
	ttl    time.Duration
}

// New wraps an existing client.
func New(client Client, ttl time.Duration) *FeatureCache {
	return &FeatureCache{client: client, ttl: ttl}
}

// Configured sets up the cache based on flags. An empty redis-addr
// disables caching.
func Configured() *FeatureCache {
	addr := lflag.String("redis-addr", "", "Redis address for the feature cache, empty disables it")
	password := lflag.String("redis-password", "", "Redis password")
	ttl := lflag.Duration("feature-cache-ttl", DefaultTTL, "How long computed feature vectors are cached")

	c := &FeatureCache{}

	lflag.Do(func() {
		c.ttl = *ttl
		if *addr == "" {
			return
		}
		c.client = redis.NewClient(&redis.Options{
			Addr:         *addr,
			Password:     *password,
			DB:           0,
			PoolSize:     20,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
	})

	return c
}

// Enabled reports whether a redis client is configured.
func (c *FeatureCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func featureKey(k Key) string {
	var maint int64
	if !k.LastMaintenance.IsZero() {
		maint = k.LastMaintenance.UnixNano()
	}
	return fmt.Sprintf("features:%s:%d:%d", k.DeviceID, k.Newest.UnixNano(), maint)
}

// GetFeatures returns the cached vector. Redis errors are logged and
// reported as a miss so callers always fall back to extraction.
func (c *FeatureCache) GetFeatures(ctx context.Context, key Key) (types.FeatureVector, bool) {
	if !c.Enabled() {
		return types.FeatureVector{}, false
	}
	deviceID := key.DeviceID
	data, err := c.client.Get(ctx, featureKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return types.FeatureVector{}, false
	}
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to read cached features", slog.String("deviceID", deviceID), slog.Any("error", err))
		return types.FeatureVector{}, false
	}
	var fv types.FeatureVector
	if err := json.Unmarshal([]byte(data), &fv); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal cached features", slog.String("deviceID", deviceID), slog.Any("error", err))
		return types.FeatureVector{}, false
	}
	return fv, true
}

// SetFeatures caches a vector for the configured TTL.
func (c *FeatureCache) SetFeatures(ctx context.Context, key Key, fv types.FeatureVector) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}
	if err := c.client.Set(ctx, featureKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache features: %w", err)
	}
	return nil
}

// IncrementAnomalyCount bumps the per-device anomaly counter.
func (c *FeatureCache) IncrementAnomalyCount(ctx context.Context, deviceID string) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	n, err := c.client.Incr(ctx, "anomaly:count:"+deviceID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment anomaly count: %w", err)
	}
	return n, nil
}

// HealthCheck checks Redis connectivity.
func (c *FeatureCache) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *FeatureCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
