package score_test

import (
	"context"
	"testing"

	"audience-response-service/internal/domain"
	"audience-response-service/internal/score"
)

type staticSource struct {
	aggregate *domain.CourseScore
}

func (s *staticSource) CourseScore(_ context.Context, _ domain.Session) (*domain.CourseScore, error) {
	return s.aggregate, nil
}

func sampleAggregate() *domain.CourseScore {
	cs := domain.NewCourseScore("s1")
	cs.AddContent(domain.Content{ID: "q1", SessionID: "s1", Variant: domain.VariantLecture, PiRound: 1, MaxValue: 2})
	cs.AddContent(domain.Content{ID: "q2", SessionID: "s1", Variant: domain.VariantLecture, PiRound: 1, MaxValue: 3})
	cs.AddContent(domain.Content{ID: "q3", SessionID: "s1", Variant: domain.VariantPreparation, PiRound: 1, MaxValue: 4})

	// Alice answers everything, Bob only q1.
	cs.AddAnswer(domain.Answer{ContentID: "q1", UserID: "alice", Value: 2, PiRound: 1})
	cs.AddAnswer(domain.Answer{ContentID: "q2", UserID: "alice", Value: 3, PiRound: 1})
	cs.AddAnswer(domain.Answer{ContentID: "q3", UserID: "alice", Value: 4, PiRound: 1})
	cs.AddAnswer(domain.Answer{ContentID: "q1", UserID: "bob", Value: 2, PiRound: 1})
	return cs
}

func TestScoreBasedMyProgress(t *testing.T) {
	calculator := score.New(
		domain.ScoreOptions{Type: domain.ProgressTypeScore, Variant: domain.VariantLecture},
		&staticSource{aggregate: sampleAggregate()},
	)

	session := domain.Session{ID: "s1"}
	alice, err := calculator.MyProgress(context.Background(), session, domain.User{ID: "alice"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if alice.Achieved != 5 || alice.Total != 5 {
		t.Fatalf("expected alice (5, 5), got %+v", alice)
	}

	bob, err := calculator.MyProgress(context.Background(), session, domain.User{ID: "bob"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if bob.Achieved != 2 || bob.Total != 5 {
		t.Fatalf("expected bob (2, 5), got %+v", bob)
	}
}

func TestQuestionBasedProgressCountsContentOnce(t *testing.T) {
	aggregate := sampleAggregate()
	// A second answer by alice to q1 in a later round must not double-count q1.
	aggregate.AddAnswer(domain.Answer{ContentID: "q1", UserID: "alice", Value: 2, PiRound: 2})

	calculator := score.New(domain.ScoreOptions{Type: domain.ProgressTypeQuestions}, &staticSource{aggregate: aggregate})
	session := domain.Session{ID: "s1"}

	course, err := calculator.CourseProgress(context.Background(), session)
	if err != nil {
		t.Fatalf("course progress: %v", err)
	}
	if course.Achieved != 3 || course.Total != 3 {
		t.Fatalf("expected course (3, 3), got %+v", course)
	}

	bob, err := calculator.MyProgress(context.Background(), session, domain.User{ID: "bob"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if bob.Achieved != 1 || bob.Total != 3 {
		t.Fatalf("expected bob (1, 3), got %+v", bob)
	}
}

func TestStaleRoundAnswersAreExcludedFromScores(t *testing.T) {
	cs := domain.NewCourseScore("s1")
	cs.AddContent(domain.Content{ID: "q1", SessionID: "s1", Variant: domain.VariantLecture, PiRound: 2, MaxValue: 2})
	// Answer given during round 1; content has since advanced to round 2.
	cs.AddAnswer(domain.Answer{ContentID: "q1", UserID: "alice", Value: 2, PiRound: 1})

	calculator := score.New(domain.ScoreOptions{Type: domain.ProgressTypeScore}, &staticSource{aggregate: cs})
	session := domain.Session{ID: "s1"}

	alice, err := calculator.MyProgress(context.Background(), session, domain.User{ID: "alice"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if alice.Achieved != 0 || alice.Total != 2 {
		t.Fatalf("expected stale answer excluded (0, 2), got %+v", alice)
	}

	// The answer row still exists, so question-based progress still counts it.
	questions := score.New(domain.ScoreOptions{Type: domain.ProgressTypeQuestions}, &staticSource{aggregate: cs})
	counted, err := questions.MyProgress(context.Background(), session, domain.User{ID: "alice"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if counted.Achieved != 1 {
		t.Fatalf("expected question-based count 1, got %+v", counted)
	}
}

func TestVariantFilterNarrowsBothDerivations(t *testing.T) {
	calculator := score.New(
		domain.ScoreOptions{Type: domain.ProgressTypeScore, Variant: domain.VariantPreparation},
		&staticSource{aggregate: sampleAggregate()},
	)
	session := domain.Session{ID: "s1"}

	course, err := calculator.CourseProgress(context.Background(), session)
	if err != nil {
		t.Fatalf("course progress: %v", err)
	}
	if course.Achieved != 4 || course.Total != 4 {
		t.Fatalf("expected preparation-only course (4, 4), got %+v", course)
	}

	bob, err := calculator.MyProgress(context.Background(), session, domain.User{ID: "bob"})
	if err != nil {
		t.Fatalf("my progress: %v", err)
	}
	if bob.Achieved != 0 || bob.Total != 4 {
		t.Fatalf("expected bob (0, 4) in preparation scope, got %+v", bob)
	}
}
