package app

import (
	"context"
	"errors"
	"log"
	"time"

	"audience-response-service/internal/domain"
	"audience-response-service/internal/events"
)

// ContentStore abstracts how sessions, content, and answers are persisted
// (in-memory, Postgres, ...). UpdateContent must fail with domain.ErrConflict
// when the revision it was handed is no longer current.
type ContentStore interface {
	GetSession(ctx context.Context, id string) (domain.Session, error)
	GetSessionByKey(ctx context.Context, key string) (domain.Session, error)

	GetContent(ctx context.Context, id string) (domain.Content, error)
	GetContents(ctx context.Context, sessionID string) ([]domain.Content, error)
	SaveContent(ctx context.Context, content domain.Content) (domain.Content, error)
	UpdateContent(ctx context.Context, content domain.Content) (domain.Content, error)
	DeleteContent(ctx context.Context, id string) error

	GetAnswer(ctx context.Context, id string) (domain.Answer, error)
	GetAnswers(ctx context.Context, contentID string, piRound int) ([]domain.Answer, error)
	GetUserAnswers(ctx context.Context, sessionID, userID string) ([]domain.Answer, error)
	SaveAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error)
	DeleteAnswer(ctx context.Context, id string) error
	DeleteAnswers(ctx context.Context, contentID string) (int, error)
}

// ContentService owns the PI-round state machine and every content/answer
// mutation that feeds the event bus. It is the only writer of round-related
// fields; concurrent writers are caught by the store's revision check and
// retried once from a fresh read.
type ContentService struct {
	store     ContentStore
	bus       *events.Bus
	scheduler *TransitionScheduler
	now       func() time.Time
}

func NewContentService(store ContentStore, bus *events.Bus, scheduler *TransitionScheduler) *ContentService {
	return newContentServiceWithClock(store, bus, scheduler, time.Now)
}

// NewContentServiceWithClock is test-only for deterministic timestamps.
func NewContentServiceWithClock(store ContentStore, bus *events.Bus, scheduler *TransitionScheduler, now func() time.Time) *ContentService {
	return newContentServiceWithClock(store, bus, scheduler, now)
}

func newContentServiceWithClock(store ContentStore, bus *events.Bus, scheduler *TransitionScheduler, now func() time.Time) *ContentService {
	return &ContentService{store: store, bus: bus, scheduler: scheduler, now: now}
}

// StartNewRound ends the currently running round for the content: voting is
// locked, the scheduled end time cleared, and the round/finished pair advanced.
// Called manually by the presenter or by the scheduler when a delayed round
// fires.
func (s *ContentService) StartNewRound(ctx context.Context, contentID string, user domain.User) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	s.scheduler.Cancel(contentID)

	endRound := func(c *domain.Content) {
		c.PiRoundEndTime = 0
		c.VotingDisabled = true
		c.CompleteRound()
	}
	updated, err := s.persist(ctx, content, endRound)
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventRoundEnded, updated))
	return nil
}

// StartNewRoundDelayed opens a voting round now and schedules the matching
// round end after delaySeconds. The acting user is captured here and reused
// when the timer fires, not whoever is authenticated at fire time.
func (s *ContentService) StartNewRoundDelayed(ctx context.Context, contentID string, user domain.User, delaySeconds int) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	start := s.now()
	end := start.Add(time.Duration(delaySeconds) * time.Second)
	beginRound := func(c *domain.Content) {
		c.BeginRound(start.UnixMilli(), end.UnixMilli())
	}
	updated, err := s.persist(ctx, content, beginRound)
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventRoundDelayedStart, updated))

	s.scheduler.Schedule(contentID, end, user.ID, func() {
		// No caller to report to; a vanished content is logged and dropped.
		if err := s.StartNewRound(context.Background(), contentID, user); err != nil {
			log.Printf("delayed round end for content %s dropped: %v", contentID, err)
		}
	})
	return nil
}

// CancelRoundChange aborts the running or scheduled round. Round 2 rolls back
// to a finished round 1; rounds 0 and 1 stay put and are marked unfinished.
func (s *ContentService) CancelRoundChange(ctx context.Context, contentID string, user domain.User) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	s.scheduler.Cancel(contentID)

	cancelRound := func(c *domain.Content) {
		c.ResetRoundManagementState()
		if c.PiRound <= 1 {
			c.PiRoundFinished = false
		} else {
			c.PiRound = 1
			c.PiRoundFinished = true
		}
	}
	updated, err := s.persist(ctx, content, cancelRound)
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventRoundCancelled, updated))
	return nil
}

// CancelDelayedRoundChange drops a pending scheduled transition without
// touching the content itself.
func (s *ContentService) CancelDelayedRoundChange(contentID string) {
	s.scheduler.Cancel(contentID)
}

// ResetRoundState rolls the content back to its initial round and deletes all
// answers given to it.
func (s *ContentService) ResetRoundState(ctx context.Context, contentID string, user domain.User) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	s.scheduler.Cancel(contentID)

	if _, err := s.store.DeleteAnswers(ctx, contentID); err != nil {
		return err
	}
	updated, err := s.persist(ctx, content, func(c *domain.Content) {
		c.ResetRoundState()
	})
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventRoundReset, updated))
	return nil
}

// CreateContent persists a new content item for the session owner. The round
// number is normalized: freetext gets round 0, everything else lands in 1..2.
func (s *ContentService) CreateContent(ctx context.Context, content domain.Content, user domain.User) (domain.Content, error) {
	session, err := s.store.GetSession(ctx, content.SessionID)
	if err != nil {
		return domain.Content{}, err
	}
	if !session.IsOwner(user) {
		return domain.Content{}, domain.ErrNotSessionOwner
	}

	content.NormalizeRound()
	saved, err := s.store.SaveContent(ctx, content)
	if err != nil {
		return domain.Content{}, err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventQuestionCreated, saved))
	return saved, nil
}

// GetContent loads a content item. Legacy non-freetext content whose round was
// never set reads as round 1.
func (s *ContentService) GetContent(ctx context.Context, contentID string) (domain.Content, error) {
	content, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return domain.Content{}, err
	}
	if !content.IsFreetext() && content.PiRound == 0 {
		content.PiRound = 1
	}
	return content, nil
}

// DeleteContent removes the content and its answers. Any pending delayed
// transition dies with it.
func (s *ContentService) DeleteContent(ctx context.Context, contentID string, user domain.User) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	s.scheduler.Cancel(contentID)
	if err := s.store.DeleteContent(ctx, contentID); err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventQuestionDeleted, content))
	return nil
}

// SetActive locks or unlocks the content for participants.
func (s *ContentService) SetActive(ctx context.Context, contentID string, user domain.User, active bool) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}
	if content.Active == active {
		return nil
	}

	updated, err := s.persist(ctx, content, func(c *domain.Content) {
		c.Active = active
	})
	if err != nil {
		return err
	}

	kind := domain.EventQuestionLocked
	if active {
		kind = domain.EventQuestionUnlocked
	}
	s.bus.Publish(ctx, domain.ContentEvent(kind, updated))
	return nil
}

// SetVotingAdmission opens or closes voting. Opening voting on locked content
// also unlocks it, so participants can actually see what they vote on.
func (s *ContentService) SetVotingAdmission(ctx context.Context, contentID string, user domain.User, disable bool) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	updated, err := s.persist(ctx, content, func(c *domain.Content) {
		c.VotingDisabled = disable
		if !disable && !c.Active {
			c.Active = true
		}
	})
	if err != nil {
		return err
	}

	kind := domain.EventVotingUnlocked
	if disable {
		kind = domain.EventVotingLocked
	}
	s.bus.Publish(ctx, domain.ContentEvent(kind, updated))
	return nil
}

// SubmitAnswer records an answer for the content's current round.
func (s *ContentService) SubmitAnswer(ctx context.Context, contentID string, user domain.User, answer domain.Answer) (domain.Answer, error) {
	content, err := s.GetContent(ctx, contentID)
	if err != nil {
		return domain.Answer{}, err
	}
	if content.VotingDisabled {
		return domain.Answer{}, domain.ErrVotingDisabled
	}

	answer.ContentID = content.ID
	answer.SessionID = content.SessionID
	answer.UserID = user.ID
	answer.PiRound = content.PiRound
	if content.IsFreetext() {
		answer.PiRound = 0
	}
	if answer.Abstention {
		answer.Value = 0
	}

	saved, err := s.store.SaveAnswer(ctx, answer)
	if err != nil {
		return domain.Answer{}, err
	}

	event := domain.ContentEvent(domain.EventAnswerAdded, content)
	event.UserID = user.ID
	s.bus.Publish(ctx, event)
	return saved, nil
}

// DeleteAnswer removes a single answer; session owners only.
func (s *ContentService) DeleteAnswer(ctx context.Context, answerID string, user domain.User) error {
	answer, err := s.store.GetAnswer(ctx, answerID)
	if err != nil {
		return err
	}
	content, _, err := s.ownedContent(ctx, answer.ContentID, user)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAnswer(ctx, answerID); err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventAnswerDeleted, content))
	return nil
}

// DeleteAnswers wipes every answer for the content and resets its round state.
func (s *ContentService) DeleteAnswers(ctx context.Context, contentID string, user domain.User) error {
	content, _, err := s.ownedContent(ctx, contentID, user)
	if err != nil {
		return err
	}

	updated, err := s.persist(ctx, content, func(c *domain.Content) {
		c.ResetRoundState()
	})
	if err != nil {
		return err
	}
	if _, err := s.store.DeleteAnswers(ctx, contentID); err != nil {
		return err
	}

	s.bus.Publish(ctx, domain.ContentEvent(domain.EventAnswerDeleted, updated))
	return nil
}

// Answers lists the answers given to a content item during one round.
// piRound 0 lists all rounds.
func (s *ContentService) Answers(ctx context.Context, contentID string, piRound int) ([]domain.Answer, error) {
	if _, err := s.store.GetContent(ctx, contentID); err != nil {
		return nil, err
	}
	return s.store.GetAnswers(ctx, contentID, piRound)
}

// AnswerCount reports how many answers the content's current round collected.
func (s *ContentService) AnswerCount(ctx context.Context, contentID string) (int, error) {
	content, err := s.GetContent(ctx, contentID)
	if err != nil {
		return 0, err
	}
	answers, err := s.store.GetAnswers(ctx, contentID, content.PiRound)
	if err != nil {
		return 0, err
	}
	return len(answers), nil
}

// MyAnswers lists the user's answers for a session, keeping only answers that
// belong to each content's current round. Answers recorded before the round
// field existed read as round 1 on non-freetext content.
func (s *ContentService) MyAnswers(ctx context.Context, sessionKey string, user domain.User) ([]domain.Answer, error) {
	session, err := s.store.GetSessionByKey(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	contents, err := s.store.GetContents(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Content, len(contents))
	for _, content := range contents {
		byID[content.ID] = content
	}

	answers, err := s.store.GetUserAnswers(ctx, session.ID, user.ID)
	if err != nil {
		return nil, err
	}
	filtered := make([]domain.Answer, 0, len(answers))
	for _, answer := range answers {
		content, ok := byID[answer.ContentID]
		if !ok {
			// Content locked or deleted since; its answers stay hidden.
			continue
		}
		if answer.PiRound == 0 && !content.IsFreetext() {
			answer.PiRound = 1
		}
		if answer.PiRound == content.PiRound {
			filtered = append(filtered, answer)
		}
	}
	return filtered, nil
}

// ownedContent loads the content and its session and verifies ownership.
func (s *ContentService) ownedContent(ctx context.Context, contentID string, user domain.User) (domain.Content, domain.Session, error) {
	content, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		return domain.Content{}, domain.Session{}, err
	}
	session, err := s.store.GetSession(ctx, content.SessionID)
	if err != nil {
		return domain.Content{}, domain.Session{}, err
	}
	if !session.IsOwner(user) {
		return domain.Content{}, domain.Session{}, domain.ErrNotSessionOwner
	}
	return content, session, nil
}

// persist applies the transition and writes it back. On a revision conflict the
// transition is re-derived from a freshly read content and retried once; the
// old intended state is never blindly reapplied.
func (s *ContentService) persist(ctx context.Context, content domain.Content, apply func(*domain.Content)) (domain.Content, error) {
	candidate := content
	apply(&candidate)
	updated, err := s.store.UpdateContent(ctx, candidate)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return domain.Content{}, err
	}

	fresh, err := s.store.GetContent(ctx, content.ID)
	if err != nil {
		return domain.Content{}, err
	}
	apply(&fresh)
	return s.store.UpdateContent(ctx, fresh)
}
