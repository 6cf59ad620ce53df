package trust

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cacheKeyPrefix = "trust:score:"

// Provider is anything that can score a seller.
type Provider interface {
	TrustScore(ctx context.Context, sellerID uuid.UUID) (float64, error)
}

// CachedProvider is a read-through redis cache in front of another
// provider. Redis failures fall through to the wrapped provider.
type CachedProvider struct {
	Next Provider
	Rdb  *redis.Client
	TTL  time.Duration
}

func (c *CachedProvider) TrustScore(ctx context.Context, sellerID uuid.UUID) (float64, error) {
	if c.Rdb == nil {
		return c.Next.TrustScore(ctx, sellerID)
	}
	key := cacheKeyPrefix + sellerID.String()

	cached, err := c.Rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if score, perr := strconv.ParseFloat(cached, 64); perr == nil {
			return score, nil
		}
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("seller_id", sellerID.String()).Msg("trust cache read failed")
	}

	score, err := c.Next.TrustScore(ctx, sellerID)
	if err != nil {
		return 0, err
	}
	if err := c.Rdb.Set(ctx, key, strconv.FormatFloat(score, 'f', -1, 64), c.TTL).Err(); err != nil {
		log.Warn().Err(err).Str("seller_id", sellerID.String()).Msg("trust cache write failed")
	}
	return score, nil
}

// Invalidate drops the cached score, e.g. after the scoring service pushes
// a new value.
func (c *CachedProvider) Invalidate(ctx context.Context, sellerID uuid.UUID) error {
	if c.Rdb == nil {
		return nil
	}
	return c.Rdb.Del(ctx, cacheKeyPrefix+sellerID.String()).Err()
}
