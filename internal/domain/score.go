package domain

// ScoreEntry is one user's scoreable answer to one content item.
type ScoreEntry struct {
	UserID string `json:"userId"`
	Value  int    `json:"value"`
	Round  int    `json:"round"`
}

// ContentScore groups a content item's score weight with the answers given to it.
type ContentScore struct {
	ContentID string       `json:"contentId"`
	Variant   Variant      `json:"variant"`
	Round     int          `json:"round"`
	MaxValue  int          `json:"maxValue"`
	Answers   []ScoreEntry `json:"answers"`
}

// CourseScore is the raw aggregate the progress calculators derive their values
// from: every scoreable content item of a session plus the answers given to it.
// It is built once per lookup (or served from cache) and then only narrowed,
// never mutated, so both course and per-user derivations within one request see
// the same data.
type CourseScore struct {
	SessionID string                   `json:"sessionId"`
	Contents  map[string]*ContentScore `json:"contents"`
}

// NewCourseScore returns an empty aggregate for a session.
func NewCourseScore(sessionID string) *CourseScore {
	return &CourseScore{SessionID: sessionID, Contents: make(map[string]*ContentScore)}
}

// AddContent registers a content item in the aggregate.
func (cs *CourseScore) AddContent(content Content) {
	cs.Contents[content.ID] = &ContentScore{
		ContentID: content.ID,
		Variant:   content.Variant,
		Round:     content.PiRound,
		MaxValue:  content.MaxValue,
	}
}

// AddAnswer attaches an answer to its content entry. Answers for unknown
// content (locked or deleted since) are dropped; abstentions carry value 0 and
// still count as answered.
func (cs *CourseScore) AddAnswer(answer Answer) {
	entry, ok := cs.Contents[answer.ContentID]
	if !ok {
		return
	}
	entry.Answers = append(entry.Answers, ScoreEntry{
		UserID: answer.UserID,
		Value:  answer.Value,
		Round:  answer.PiRound,
	})
}

// FilterVariant returns a copy narrowed to content of the given variant. An
// empty variant returns the receiver unchanged.
func (cs *CourseScore) FilterVariant(variant Variant) *CourseScore {
	if variant == "" {
		return cs
	}
	filtered := NewCourseScore(cs.SessionID)
	for id, entry := range cs.Contents {
		if entry.Variant == variant {
			filtered.Contents[id] = entry
		}
	}
	return filtered
}

// ContentCount is the number of content items in scope.
func (cs *CourseScore) ContentCount() int {
	return len(cs.Contents)
}

// AnsweredContentCount counts content answered at least once by anyone.
// Multiple answers and answers from earlier rounds count the content once.
func (cs *CourseScore) AnsweredContentCount() int {
	count := 0
	for _, entry := range cs.Contents {
		if len(entry.Answers) > 0 {
			count++
		}
	}
	return count
}

// UserAnsweredContentCount counts content answered at least once by the user.
func (cs *CourseScore) UserAnsweredContentCount(userID string) int {
	count := 0
	for _, entry := range cs.Contents {
		for _, answer := range entry.Answers {
			if answer.UserID == userID {
				count++
				break
			}
		}
	}
	return count
}

// MaximumScore is the highest value sum reachable for the content in scope.
func (cs *CourseScore) MaximumScore() int {
	max := 0
	for _, entry := range cs.Contents {
		max += entry.MaxValue
	}
	return max
}

// TotalUserScore sums answer values across all users. Only answers from the
// content's current round count; stale-round answers remain in the aggregate
// for counting purposes but contribute no value.
func (cs *CourseScore) TotalUserScore() int {
	total := 0
	for _, entry := range cs.Contents {
		for _, answer := range entry.Answers {
			if answer.Round == entry.Round {
				total += answer.Value
			}
		}
	}
	return total
}

// UserScore sums the user's answer values, current round only.
func (cs *CourseScore) UserScore(userID string) int {
	total := 0
	for _, entry := range cs.Contents {
		for _, answer := range entry.Answers {
			if answer.UserID == userID && answer.Round == entry.Round {
				total += answer.Value
			}
		}
	}
	return total
}
