package domain

// Variant is the pedagogical context a content item belongs to.
type Variant string

const (
	VariantLecture     Variant = "lecture"
	VariantPreparation Variant = "preparation"
	VariantFlashcard   Variant = "flashcard"
)

// QuestionTypeFreetext marks content without peer-instruction rounds.
// All other question types (mc, abcd, yesno, ...) run rounds 1 and 2.
const QuestionTypeFreetext = "freetext"

// Content is a question published to a session. Round bookkeeping lives in
// PiRound/PiRoundFinished plus the start/end timestamps (unix millis, 0 = unset).
type Content struct {
	ID               string  `json:"id"`
	Revision         int64   `json:"revision"`
	SessionID        string  `json:"sessionId"`
	Subject          string  `json:"subject"`
	Body             string  `json:"body"`
	Variant          Variant `json:"variant"`
	QuestionType     string  `json:"questionType"`
	PiRound          int     `json:"piRound"`
	PiRoundStartTime int64   `json:"piRoundStartTime"`
	PiRoundEndTime   int64   `json:"piRoundEndTime"`
	PiRoundFinished  bool    `json:"piRoundFinished"`
	Active           bool    `json:"active"`
	VotingDisabled   bool    `json:"votingDisabled"`
	MaxValue         int     `json:"maxValue"`
}

// IsFreetext reports whether the content has no PI rounds.
func (c *Content) IsFreetext() bool {
	return c.QuestionType == QuestionTypeFreetext
}

// NormalizeRound forces the round number into its legal range: 0 for freetext,
// 1..2 for everything else.
func (c *Content) NormalizeRound() {
	if c.IsFreetext() {
		c.PiRound = 0
	} else if c.PiRound < 1 || c.PiRound > 2 {
		c.PiRound = 1
	}
}

// BeginRound opens a voting round spanning [start, end]. A finished round 1
// advances to round 2; freetext content keeps round 0.
func (c *Content) BeginRound(start, end int64) {
	if !c.IsFreetext() {
		switch {
		case c.PiRound < 1:
			c.PiRound = 1
		case c.PiRound == 1 && c.PiRoundFinished:
			c.PiRound = 2
			c.PiRoundFinished = false
		}
	}
	c.Active = true
	c.VotingDisabled = false
	c.PiRoundStartTime = start
	c.PiRoundEndTime = end
}

// CompleteRound derives the round now considered over from the current
// round/finished pair. An unfinished round 1 becomes a finished round 1; a
// finished round 1 means round 2 was running and is now over.
func (c *Content) CompleteRound() {
	if !c.IsFreetext() {
		switch {
		case c.PiRound < 1:
			c.PiRound = 1
			c.PiRoundFinished = true
		case c.PiRound == 1 && !c.PiRoundFinished:
			c.PiRoundFinished = true
		case c.PiRound == 1 && c.PiRoundFinished:
			c.PiRound = 2
			c.PiRoundFinished = true
		default:
			c.PiRoundFinished = true
		}
	}
	c.PiRoundStartTime = 0
}

// ResetRoundManagementState clears the scheduling timestamps and closes voting
// without touching the round number.
func (c *Content) ResetRoundManagementState() {
	c.PiRoundStartTime = 0
	c.PiRoundEndTime = 0
	c.VotingDisabled = true
}

// ResetRoundState rolls the content back to its initial round.
func (c *Content) ResetRoundState() {
	if c.IsFreetext() {
		c.PiRound = 0
	} else {
		c.PiRound = 1
	}
	c.PiRoundFinished = false
	c.ResetRoundManagementState()
}

// Answer records a participant's submission for one content item during one round.
type Answer struct {
	ID         string `json:"id"`
	ContentID  string `json:"contentId"`
	SessionID  string `json:"sessionId"`
	UserID     string `json:"userId"`
	PiRound    int    `json:"piRound"`
	Value      int    `json:"value"`
	Correct    bool   `json:"correct"`
	Abstention bool   `json:"abstention"`
}

// Session owns content and answers. Key is the short join code presenters share.
type Session struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Active  bool   `json:"active"`
}

// IsOwner reports whether the user created the session. Owner-gated round
// transitions check this before mutating anything.
func (s *Session) IsOwner(user User) bool {
	return user.ID != "" && user.ID == s.OwnerID
}

// User identifies the acting account. Authentication happens upstream; here a
// user is just an identity carried through transitions and progress lookups.
type User struct {
	ID string `json:"id"`
}

// Progress type selectors for ScoreOptions.
const (
	ProgressTypeQuestions = "questions"
	ProgressTypeScore     = "score"
)

// ScoreOptions selects the progress calculator strategy and an optional
// content-variant filter.
type ScoreOptions struct {
	Type    string  `json:"type"`
	Variant Variant `json:"variant"`
}

// ProgressValues is the result of a progress computation: achieved units out of
// the total reachable in scope (question counts or value sums, depending on the
// calculator).
type ProgressValues struct {
	Achieved int `json:"achieved"`
	Total    int `json:"total"`
}
