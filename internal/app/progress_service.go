package app

import (
	"context"

	"audience-response-service/internal/domain"
	"audience-response-service/internal/score"
)

// AggregateCache is a score.AggregateSource whose entries can be evicted per
// session. The cache coordinator is the only caller of Evict.
type AggregateCache interface {
	score.AggregateSource
	Evict(ctx context.Context, sessionID string)
}

// ProgressService answers learning-progress lookups. Aggregates are read
// through the cache; the cache coordinator keeps them coherent with mutations.
type ProgressService struct {
	store ContentStore
	cache AggregateCache
}

func NewProgressService(store ContentStore, cache AggregateCache) *ProgressService {
	return &ProgressService{store: store, cache: cache}
}

// CourseProgress computes the cohort-wide progress for the session.
func (s *ProgressService) CourseProgress(ctx context.Context, sessionKey string, options domain.ScoreOptions) (domain.ProgressValues, error) {
	session, err := s.store.GetSessionByKey(ctx, sessionKey)
	if err != nil {
		return domain.ProgressValues{}, err
	}
	return score.New(options, s.cache).CourseProgress(ctx, session)
}

// MyProgress computes one user's progress for the session.
func (s *ProgressService) MyProgress(ctx context.Context, sessionKey string, options domain.ScoreOptions, user domain.User) (domain.ProgressValues, error) {
	session, err := s.store.GetSessionByKey(ctx, sessionKey)
	if err != nil {
		return domain.ProgressValues{}, err
	}
	return score.New(options, s.cache).MyProgress(ctx, session, user)
}
