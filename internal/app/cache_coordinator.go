package app

import (
	"context"

	"audience-response-service/internal/domain"
	"audience-response-service/internal/events"
)

// CacheCoordinator keeps cached score aggregates coherent with mutations. It
// runs synchronously on the publisher's goroutine, so by the time a mutating
// operation returns, the stale entry is already gone. After evicting it
// republishes ProgressChanged so transports can notify connected clients.
//
// The switch below is total over domain.EventKind; a new kind must be placed
// in one of the two arms deliberately.
type CacheCoordinator struct {
	cache AggregateCache
	bus   *events.Bus
}

func NewCacheCoordinator(cache AggregateCache, bus *events.Bus) *CacheCoordinator {
	return &CacheCoordinator{cache: cache, bus: bus}
}

func (c *CacheCoordinator) HandleEvent(ctx context.Context, event domain.Event) {
	switch event.Kind {
	case domain.EventQuestionCreated,
		domain.EventQuestionDeleted,
		domain.EventQuestionLocked,
		domain.EventQuestionUnlocked,
		domain.EventAnswerAdded,
		domain.EventAnswerDeleted,
		domain.EventRoundReset:
		c.cache.Evict(ctx, event.SessionID)
		c.bus.Publish(ctx, domain.Event{Kind: domain.EventProgressChanged, SessionID: event.SessionID})

	case domain.EventRoundStarted,
		domain.EventRoundDelayedStart,
		domain.EventRoundEnded,
		domain.EventRoundCancelled,
		domain.EventVotingLocked,
		domain.EventVotingUnlocked,
		domain.EventProgressChanged:
		// Informational; no scoreable data changed.
	}
}
