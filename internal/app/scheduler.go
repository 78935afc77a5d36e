package app

import (
	"sync"
	"time"
)

// TransitionScheduler owns the pending delayed round transitions, keyed by
// content id. At most one transition is pending per content: scheduling again
// replaces the previous one, it never stacks. Fired actions run on the timer's
// goroutine and the registry entry is gone before the action starts.
type TransitionScheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingTransition
}

type pendingTransition struct {
	timer  *time.Timer
	userID string
}

func NewTransitionScheduler() *TransitionScheduler {
	return &TransitionScheduler{pending: make(map[string]*pendingTransition)}
}

// Schedule registers action to run once at fireAt, cancelling any transition
// already pending for contentID. userID records on whose behalf the action
// fires; it is informational for Pending.
func (s *TransitionScheduler) Schedule(contentID string, fireAt time.Time, userID string, action func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.pending[contentID]; ok {
		entry.timer.Stop()
		delete(s.pending, contentID)
	}

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}
	entry := &pendingTransition{userID: userID}
	entry.timer = time.AfterFunc(delay, func() {
		if !s.remove(contentID, entry) {
			// Lost the race against a cancel or replacement; the newer
			// transition owns this content now.
			return
		}
		action()
	})
	s.pending[contentID] = entry
}

// Cancel drops any pending transition for contentID. Cancelling an unknown id
// is a no-op.
func (s *TransitionScheduler) Cancel(contentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[contentID]; ok {
		entry.timer.Stop()
		delete(s.pending, contentID)
	}
}

// Pending reports whether a transition is scheduled for contentID and, if so,
// the user it is bound to.
func (s *TransitionScheduler) Pending(contentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[contentID]
	if !ok {
		return "", false
	}
	return entry.userID, true
}

// remove deletes the entry only if it is still the registered one for this id.
func (s *TransitionScheduler) remove(contentID string, entry *pendingTransition) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.pending[contentID]; ok && current == entry {
		delete(s.pending, contentID)
		return true
	}
	return false
}
