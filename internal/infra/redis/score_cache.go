package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"audience-response-service/internal/domain"
	"audience-response-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ScoreCache caches course-score aggregates in Redis (one JSON value per
// session: SET progress:{sessionID}) and falls back to a loader on cache miss.
// Eviction is a plain DEL, so multiple service instances sharing the Redis see
// the same coherent state.
type ScoreCache struct {
	client *redis.Client
	loader memory.AggregateLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewScoreCache(client *redis.Client, loader memory.AggregateLoader, ttl time.Duration) *ScoreCache {
	return &ScoreCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ScoreCache) CourseScore(ctx context.Context, session domain.Session) (*domain.CourseScore, error) {
	key := c.key(session.ID)

	if aggregate, ok := c.lookup(ctx, key); ok {
		return aggregate, nil
	}

	result, err, _ := c.sf.Do(session.ID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if aggregate, ok := c.lookup(ctx, key); ok {
			return aggregate, nil
		}

		aggregate, err := c.loader.LoadCourseScore(ctx, session)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(aggregate); err == nil {
			// best-effort write; a cold cache only costs a reload
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return aggregate, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.CourseScore), nil
}

// Evict drops the session's cached aggregate.
func (c *ScoreCache) Evict(ctx context.Context, sessionID string) {
	_ = c.client.Del(ctx, c.key(sessionID)).Err()
}

func (c *ScoreCache) lookup(ctx context.Context, key string) (*domain.CourseScore, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var aggregate domain.CourseScore
	if err := json.Unmarshal(raw, &aggregate); err != nil {
		return nil, false
	}
	if aggregate.Contents == nil {
		aggregate.Contents = make(map[string]*domain.ContentScore)
	}
	return &aggregate, true
}

func (c *ScoreCache) key(sessionID string) string {
	return "progress:" + sessionID
}

func (c *ScoreCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
