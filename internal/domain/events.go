package domain

// EventKind enumerates every lifecycle and mutation event the service emits.
// Subscribers dispatch with a switch listing all kinds; adding a kind means
// revisiting every dispatcher.
type EventKind string

const (
	EventRoundStarted      EventKind = "RoundStarted"
	EventRoundDelayedStart EventKind = "RoundDelayedStart"
	EventRoundEnded        EventKind = "RoundEnded"
	EventRoundCancelled    EventKind = "RoundCancelled"
	EventRoundReset        EventKind = "RoundReset"
	EventAnswerAdded       EventKind = "AnswerAdded"
	EventAnswerDeleted     EventKind = "AnswerDeleted"
	EventQuestionCreated   EventKind = "QuestionCreated"
	EventQuestionDeleted   EventKind = "QuestionDeleted"
	EventQuestionLocked    EventKind = "QuestionLocked"
	EventQuestionUnlocked  EventKind = "QuestionUnlocked"
	EventVotingLocked      EventKind = "VotingLocked"
	EventVotingUnlocked    EventKind = "VotingUnlocked"
	EventProgressChanged   EventKind = "ProgressChanged"
)

// Event is the immutable record published on the bus. SessionID is always set;
// the other fields are filled as far as the triggering mutation knows them.
// StartTime/EndTime carry the scheduled round window for delayed starts.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"sessionId"`
	ContentID string    `json:"contentId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Variant   Variant   `json:"variant,omitempty"`
	Round     int       `json:"round,omitempty"`
	StartTime int64     `json:"startTime,omitempty"`
	EndTime   int64     `json:"endTime,omitempty"`
}

// ContentEvent builds an event carrying the content's identity and round state.
func ContentEvent(kind EventKind, content Content) Event {
	return Event{
		Kind:      kind,
		SessionID: content.SessionID,
		ContentID: content.ID,
		Variant:   content.Variant,
		Round:     content.PiRound,
		StartTime: content.PiRoundStartTime,
		EndTime:   content.PiRoundEndTime,
	}
}
