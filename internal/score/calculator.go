// Package score computes course-wide and per-user learning progress from the
// raw answer aggregate of a session.
package score

import (
	"context"

	"audience-response-service/internal/domain"
)

// AggregateSource provides the raw CourseScore for a session, typically through
// a cache in front of the content store.
type AggregateSource interface {
	CourseScore(ctx context.Context, session domain.Session) (*domain.CourseScore, error)
}

// Calculator derives progress values from a session's aggregate.
type Calculator interface {
	CourseProgress(ctx context.Context, session domain.Session) (domain.ProgressValues, error)
	MyProgress(ctx context.Context, session domain.Session, user domain.User) (domain.ProgressValues, error)
}

// New builds the calculator selected by the options. Unknown progress types
// fall back to the score-based strategy.
func New(options domain.ScoreOptions, source AggregateSource) Calculator {
	base := variantCalculator{source: source, variant: options.Variant}
	if options.Type == domain.ProgressTypeQuestions {
		return &questionCalculator{variantCalculator: base}
	}
	return &pointsCalculator{variantCalculator: base}
}

// variantCalculator loads the aggregate and narrows it to the configured
// variant before either derivation, so course and per-user values within one
// request always describe the same content set.
type variantCalculator struct {
	source  AggregateSource
	variant domain.Variant
}

func (c *variantCalculator) load(ctx context.Context, session domain.Session) (*domain.CourseScore, error) {
	aggregate, err := c.source.CourseScore(ctx, session)
	if err != nil {
		return nil, err
	}
	return aggregate.FilterVariant(c.variant), nil
}

// questionCalculator measures progress as content answered at least once out
// of the content in scope.
type questionCalculator struct {
	variantCalculator
}

func (c *questionCalculator) CourseProgress(ctx context.Context, session domain.Session) (domain.ProgressValues, error) {
	aggregate, err := c.load(ctx, session)
	if err != nil {
		return domain.ProgressValues{}, err
	}
	return domain.ProgressValues{
		Achieved: aggregate.AnsweredContentCount(),
		Total:    aggregate.ContentCount(),
	}, nil
}

func (c *questionCalculator) MyProgress(ctx context.Context, session domain.Session, user domain.User) (domain.ProgressValues, error) {
	aggregate, err := c.load(ctx, session)
	if err != nil {
		return domain.ProgressValues{}, err
	}
	return domain.ProgressValues{
		Achieved: aggregate.UserAnsweredContentCount(user.ID),
		Total:    aggregate.ContentCount(),
	}, nil
}

// pointsCalculator measures progress as summed answer values out of the
// maximum achievable. Only answers from each content's current round count.
type pointsCalculator struct {
	variantCalculator
}

func (c *pointsCalculator) CourseProgress(ctx context.Context, session domain.Session) (domain.ProgressValues, error) {
	aggregate, err := c.load(ctx, session)
	if err != nil {
		return domain.ProgressValues{}, err
	}
	return domain.ProgressValues{
		Achieved: aggregate.TotalUserScore(),
		Total:    aggregate.MaximumScore(),
	}, nil
}

func (c *pointsCalculator) MyProgress(ctx context.Context, session domain.Session, user domain.User) (domain.ProgressValues, error) {
	aggregate, err := c.load(ctx, session)
	if err != nil {
		return domain.ProgressValues{}, err
	}
	return domain.ProgressValues{
		Achieved: aggregate.UserScore(user.ID),
		Total:    aggregate.MaximumScore(),
	}, nil
}
