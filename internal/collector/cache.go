package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// Cache stores raw provider responses by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisOptions configures the redis-backed response cache.
type RedisOptions struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisCache is a Cache on top of go-redis.
type RedisCache struct {
	inner *redis.Client
}

func NewRedisCache(opts RedisOptions) *RedisCache {
	return &RedisCache{
		inner: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.inner.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.inner.Set(ctx, key, value, ttl).Err()
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.inner.Close()
}

// CachingCollector serves repeated fetches from a Cache. Cache failures are
// logged and fall through to the wrapped collector.
type CachingCollector struct {
	next   domain.Collector
	cache  Cache
	ttl    time.Duration
	logger logrus.FieldLogger
}

func NewCachingCollector(next domain.Collector, cache Cache, ttl time.Duration, logger logrus.FieldLogger) *CachingCollector {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachingCollector{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (cc *CachingCollector) Fetch(ctx context.Context, params domain.FetchParams) ([]domain.Post, error) {
	key := CacheKey(params)
	log := cc.logger.WithField("cache_key", key)

	if raw, ok, err := cc.cache.Get(ctx, key); err != nil {
		log.WithError(err).Warn("cache read failed")
	} else if ok {
		var posts []domain.Post
		if err := json.Unmarshal(raw, &posts); err == nil {
			log.Debug("cache hit")
			return posts, nil
		}
		log.Warn("discarding undecodable cache entry")
	}

	posts, err := cc.next.Fetch(ctx, params)
	if err != nil {
		return posts, err
	}
	if raw, err := json.Marshal(posts); err == nil {
		if err := cc.cache.Set(ctx, key, raw, cc.ttl); err != nil {
			log.WithError(err).Warn("cache write failed")
		}
	}
	return posts, nil
}

// CacheKey identifies a fetch by every parameter that changes its result.
func CacheKey(params domain.FetchParams) string {
	kws := make([]string, len(params.Keywords))
	for i, k := range params.Keywords {
		kws[i] = strings.ToLower(strings.TrimSpace(k))
	}
	return fmt.Sprintf("promoscout:fetch:%s:%s:%s:%s:%d",
		strings.ToLower(targetName(params)), strings.Join(kws, ","), params.Sort, params.TimeWindow, params.Limit)
}
