package app_test

import (
	"context"
	"testing"

	"audience-response-service/internal/app"
	"audience-response-service/internal/domain"
	"audience-response-service/internal/events"
)

type recordingCache struct {
	evicted []string
}

func (c *recordingCache) CourseScore(_ context.Context, session domain.Session) (*domain.CourseScore, error) {
	return domain.NewCourseScore(session.ID), nil
}

func (c *recordingCache) Evict(_ context.Context, sessionID string) {
	c.evicted = append(c.evicted, sessionID)
}

func TestCoordinatorEvictsOnScoreRelevantEvents(t *testing.T) {
	evicting := []domain.EventKind{
		domain.EventQuestionCreated,
		domain.EventQuestionDeleted,
		domain.EventQuestionLocked,
		domain.EventQuestionUnlocked,
		domain.EventAnswerAdded,
		domain.EventAnswerDeleted,
		domain.EventRoundReset,
	}
	informational := []domain.EventKind{
		domain.EventRoundStarted,
		domain.EventRoundDelayedStart,
		domain.EventRoundEnded,
		domain.EventRoundCancelled,
		domain.EventVotingLocked,
		domain.EventVotingUnlocked,
		domain.EventProgressChanged,
	}

	for _, kind := range evicting {
		cache := &recordingCache{}
		coordinator := app.NewCacheCoordinator(cache, events.NewBus())
		coordinator.HandleEvent(context.Background(), domain.Event{Kind: kind, SessionID: "s1"})
		if len(cache.evicted) != 1 || cache.evicted[0] != "s1" {
			t.Fatalf("%s: expected eviction for s1, got %v", kind, cache.evicted)
		}
	}
	for _, kind := range informational {
		cache := &recordingCache{}
		coordinator := app.NewCacheCoordinator(cache, events.NewBus())
		coordinator.HandleEvent(context.Background(), domain.Event{Kind: kind, SessionID: "s1"})
		if len(cache.evicted) != 0 {
			t.Fatalf("%s: expected no eviction, got %v", kind, cache.evicted)
		}
	}
}

func TestCoordinatorRepublishesProgressChanged(t *testing.T) {
	bus := events.NewBus()
	cache := &recordingCache{}
	coordinator := app.NewCacheCoordinator(cache, bus)
	bus.Subscribe(coordinator)

	var notified []domain.Event
	bus.Subscribe(events.SubscriberFunc(func(_ context.Context, event domain.Event) {
		if event.Kind == domain.EventProgressChanged {
			notified = append(notified, event)
		}
	}))

	bus.Publish(context.Background(), domain.Event{Kind: domain.EventAnswerAdded, SessionID: "s1"})

	if len(notified) != 1 || notified[0].SessionID != "s1" {
		t.Fatalf("expected one ProgressChanged for s1, got %v", notified)
	}
}
