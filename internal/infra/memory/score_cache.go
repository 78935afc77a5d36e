package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"audience-response-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// AggregateLoader builds the raw progress aggregate from the backing store.
type AggregateLoader interface {
	LoadCourseScore(ctx context.Context, session domain.Session) (*domain.CourseScore, error)
}

// ScoreCache caches course-score aggregates per session with TTL to avoid
// recomputing them on every progress lookup. The cache coordinator evicts
// entries when a mutation makes them stale.
type ScoreCache struct {
	loader AggregateLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedScore
}

type cachedScore struct {
	aggregate *domain.CourseScore
	expiresAt time.Time
}

func NewScoreCache(loader AggregateLoader, ttl time.Duration) *ScoreCache {
	return &ScoreCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedScore),
	}
}

func (c *ScoreCache) CourseScore(ctx context.Context, session domain.Session) (*domain.CourseScore, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[session.ID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.aggregate, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(session.ID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[session.ID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.aggregate, nil
		}
		c.mu.RUnlock()

		aggregate, err := c.loader.LoadCourseScore(ctx, session)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[session.ID] = cachedScore{
			aggregate: aggregate,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return aggregate, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.CourseScore), nil
}

// Evict drops the session's cached aggregate.
func (c *ScoreCache) Evict(_ context.Context, sessionID string) {
	c.mu.Lock()
	delete(c.cache, sessionID)
	c.mu.Unlock()
}

func (c *ScoreCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
