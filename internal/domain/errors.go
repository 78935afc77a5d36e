package domain

import "errors"

var (
	// ErrContentNotFound is returned when a content id resolves to nothing.
	ErrContentNotFound = errors.New("content not found")
	// ErrSessionNotFound is returned when a session id or key resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAnswerNotFound is returned when an answer id resolves to nothing.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrNotSessionOwner rejects owner-gated transitions from non-owners.
	ErrNotSessionOwner = errors.New("user is not the session owner")
	// ErrConflict signals a concurrent modification detected by the store's
	// revision check. Retryable with a fresh read.
	ErrConflict = errors.New("content modified concurrently")
	// ErrVotingDisabled rejects answer submissions while voting is locked.
	ErrVotingDisabled = errors.New("voting is disabled for this content")
)
