package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"audience-response-service/internal/domain"
)

// ContentStore is an in-memory implementation of app.ContentStore with the
// same optimistic-concurrency behaviour as the Postgres store: updates carry
// the revision they were read at and fail with domain.ErrConflict when it is
// no longer current.
type ContentStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	byKey    map[string]string
	contents map[string]domain.Content
	answers  map[string]domain.Answer
	nextID   int
}

func NewContentStore() *ContentStore {
	return &ContentStore{
		sessions: make(map[string]domain.Session),
		byKey:    make(map[string]string),
		contents: make(map[string]domain.Content),
		answers:  make(map[string]domain.Answer),
	}
}

// SeedSession registers a session; tests and the demo server use this in place
// of a session-management API.
func (s *ContentStore) SeedSession(session domain.Session) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = s.generateID("s")
	}
	if session.Key == "" {
		session.Key = session.ID
	}
	s.sessions[session.ID] = session
	s.byKey[session.Key] = session.ID
	return session
}

func (s *ContentStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *ContentStore) GetSessionByKey(_ context.Context, key string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[key]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *ContentStore) GetContent(_ context.Context, id string) (domain.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.contents[id]
	if !ok {
		return domain.Content{}, domain.ErrContentNotFound
	}
	return content, nil
}

func (s *ContentStore) GetContents(_ context.Context, sessionID string) ([]domain.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var contents []domain.Content
	for _, content := range s.contents {
		if content.SessionID == sessionID {
			contents = append(contents, content)
		}
	}
	sort.Slice(contents, func(i, j int) bool { return contents[i].ID < contents[j].ID })
	return contents, nil
}

func (s *ContentStore) SaveContent(_ context.Context, content domain.Content) (domain.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[content.SessionID]; !ok {
		return domain.Content{}, domain.ErrSessionNotFound
	}
	if content.ID == "" {
		content.ID = s.generateID("c")
	}
	content.Revision = 1
	s.contents[content.ID] = content
	return content, nil
}

func (s *ContentStore) UpdateContent(_ context.Context, content domain.Content) (domain.Content, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.contents[content.ID]
	if !ok {
		return domain.Content{}, domain.ErrContentNotFound
	}
	if current.Revision != content.Revision {
		return domain.Content{}, domain.ErrConflict
	}
	content.Revision++
	s.contents[content.ID] = content
	return content, nil
}

func (s *ContentStore) DeleteContent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[id]; !ok {
		return domain.ErrContentNotFound
	}
	delete(s.contents, id)
	for answerID, answer := range s.answers {
		if answer.ContentID == id {
			delete(s.answers, answerID)
		}
	}
	return nil
}

func (s *ContentStore) GetAnswer(_ context.Context, id string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[id]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return answer, nil
}

// GetAnswers lists answers for a content item; piRound 0 means all rounds.
func (s *ContentStore) GetAnswers(_ context.Context, contentID string, piRound int) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var answers []domain.Answer
	for _, answer := range s.answers {
		if answer.ContentID != contentID {
			continue
		}
		if piRound != 0 && answer.PiRound != piRound {
			continue
		}
		answers = append(answers, answer)
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	return answers, nil
}

func (s *ContentStore) GetUserAnswers(_ context.Context, sessionID, userID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var answers []domain.Answer
	for _, answer := range s.answers {
		if answer.SessionID == sessionID && answer.UserID == userID {
			answers = append(answers, answer)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	return answers, nil
}

func (s *ContentStore) SaveAnswer(_ context.Context, answer domain.Answer) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[answer.ContentID]; !ok {
		return domain.Answer{}, domain.ErrContentNotFound
	}
	if answer.ID == "" {
		answer.ID = s.generateID("a")
	}
	s.answers[answer.ID] = answer
	return answer, nil
}

func (s *ContentStore) DeleteAnswer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.answers[id]; !ok {
		return domain.ErrAnswerNotFound
	}
	delete(s.answers, id)
	return nil
}

func (s *ContentStore) DeleteAnswers(_ context.Context, contentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for answerID, answer := range s.answers {
		if answer.ContentID == contentID {
			delete(s.answers, answerID)
			deleted++
		}
	}
	return deleted, nil
}

// LoadCourseScore builds the raw progress aggregate for a session. Locked
// content and flashcards are not scoreable and stay out of the aggregate.
func (s *ContentStore) LoadCourseScore(_ context.Context, session domain.Session) (*domain.CourseScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return nil, domain.ErrSessionNotFound
	}

	aggregate := domain.NewCourseScore(session.ID)
	for _, content := range s.contents {
		if content.SessionID != session.ID || !content.Active || content.Variant == domain.VariantFlashcard {
			continue
		}
		aggregate.AddContent(content)
	}
	for _, answer := range s.answers {
		if answer.SessionID == session.ID {
			aggregate.AddAnswer(answer)
		}
	}
	return aggregate, nil
}

func (s *ContentStore) generateID(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}
