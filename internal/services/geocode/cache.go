package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheKeyPrefix  = "geocode:"
	DefaultCacheTTL = 24 * time.Hour
)

// CachedGeocoder memoizes successful lookups in Redis. Cache failures fall
// through to the wrapped geocoder; negative results are not cached.
type CachedGeocoder struct {
	next   Geocoder
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Geocoder = (*CachedGeocoder)(nil)

// NewCachedGeocoder wraps next with a Redis cache. A nil client disables caching.
func NewCachedGeocoder(next Geocoder, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedGeocoder {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedGeocoder{next: next, client: client, ttl: ttl, logger: log}
}

func forwardKey(city string) string {
	return cacheKeyPrefix + "fwd:" + strings.ToLower(strings.TrimSpace(city))
}

func reverseKey(lat, lng float64) string {
	// ~1km grid; nearby detections share a locality.
	return fmt.Sprintf("%srev:%.2f:%.2f", cacheKeyPrefix, lat, lng)
}

func (g *CachedGeocoder) Forward(ctx context.Context, city string) *Point {
	key := forwardKey(city)
	var cached Point
	if g.lookup(ctx, key, &cached) {
		return &cached
	}
	p := g.next.Forward(ctx, city)
	if p != nil {
		g.store(ctx, key, p)
	}
	return p
}

func (g *CachedGeocoder) Reverse(ctx context.Context, lat, lng float64) *Place {
	key := reverseKey(lat, lng)
	var cached Place
	if g.lookup(ctx, key, &cached) {
		cached.Lat, cached.Lng = lat, lng
		return &cached
	}
	p := g.next.Reverse(ctx, lat, lng)
	if p != nil {
		g.store(ctx, key, p)
	}
	return p
}

func (g *CachedGeocoder) lookup(ctx context.Context, key string, dest any) bool {
	if g.client == nil {
		return false
	}
	val, err := g.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			g.logger.Debug("geocode_cache_get_failed", zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		g.logger.Debug("geocode_cache_decode_failed", zap.Error(err))
		return false
	}
	return true
}

func (g *CachedGeocoder) store(ctx context.Context, key string, value any) {
	if g.client == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := g.client.Set(ctx, key, data, g.ttl).Err(); err != nil {
		g.logger.Debug("geocode_cache_set_failed", zap.Error(err))
	}
}
