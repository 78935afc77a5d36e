package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"audience-response-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ContentStore persists sessions, content, and answers in Postgres. Updates
// are guarded by a revision column: `UPDATE ... WHERE id AND revision` matching
// zero rows surfaces as domain.ErrConflict.
type ContentStore struct {
	pool *pgxpool.Pool
}

func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

const contentColumns = `id, revision, session_id, subject, body, variant, question_type,
	pi_round, pi_round_start_time, pi_round_end_time, pi_round_finished,
	active, voting_disabled, max_value`

func (s *ContentStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, key, owner_id, name, active FROM sessions WHERE id=$1`, id))
}

func (s *ContentStore) GetSessionByKey(ctx context.Context, key string) (domain.Session, error) {
	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, key, owner_id, name, active FROM sessions WHERE key=$1`, key))
}

// SaveSession inserts or refreshes a session row.
func (s *ContentStore) SaveSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	if session.ID == "" {
		session.ID = newID()
	}
	if session.Key == "" {
		session.Key = session.ID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, key, owner_id, name, active) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET key=$2, owner_id=$3, name=$4, active=$5`,
		session.ID, session.Key, session.OwnerID, session.Name, session.Active)
	if err != nil {
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (s *ContentStore) GetContent(ctx context.Context, id string) (domain.Content, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE id=$1`, id)
	return scanContent(row)
}

func (s *ContentStore) GetContents(ctx context.Context, sessionID string) ([]domain.Content, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE session_id=$1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()

	var contents []domain.Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

func (s *ContentStore) SaveContent(ctx context.Context, content domain.Content) (domain.Content, error) {
	if content.ID == "" {
		content.ID = newID()
	}
	content.Revision = 1
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contents (`+contentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		content.ID, content.Revision, content.SessionID, content.Subject, content.Body,
		content.Variant, content.QuestionType, content.PiRound, content.PiRoundStartTime,
		content.PiRoundEndTime, content.PiRoundFinished, content.Active,
		content.VotingDisabled, content.MaxValue)
	if err != nil {
		return domain.Content{}, fmt.Errorf("save content: %w", err)
	}
	return content, nil
}

func (s *ContentStore) UpdateContent(ctx context.Context, content domain.Content) (domain.Content, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contents SET revision=revision+1, subject=$3, body=$4, variant=$5,
			question_type=$6, pi_round=$7, pi_round_start_time=$8, pi_round_end_time=$9,
			pi_round_finished=$10, active=$11, voting_disabled=$12, max_value=$13
		 WHERE id=$1 AND revision=$2`,
		content.ID, content.Revision, content.Subject, content.Body, content.Variant,
		content.QuestionType, content.PiRound, content.PiRoundStartTime,
		content.PiRoundEndTime, content.PiRoundFinished, content.Active,
		content.VotingDisabled, content.MaxValue)
	if err != nil {
		return domain.Content{}, fmt.Errorf("update content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or someone else bumped the revision.
		if _, err := s.GetContent(ctx, content.ID); err != nil {
			return domain.Content{}, err
		}
		return domain.Content{}, domain.ErrConflict
	}
	content.Revision++
	return content, nil
}

func (s *ContentStore) DeleteContent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrContentNotFound
	}
	return nil
}

func (s *ContentStore) GetAnswer(ctx context.Context, id string) (domain.Answer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, content_id, session_id, user_id, pi_round, value, correct, abstention
		 FROM answers WHERE id=$1`, id)
	answer, err := scanAnswer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	return answer, err
}

func (s *ContentStore) GetAnswers(ctx context.Context, contentID string, piRound int) ([]domain.Answer, error) {
	query := `SELECT id, content_id, session_id, user_id, pi_round, value, correct, abstention
		 FROM answers WHERE content_id=$1 ORDER BY id`
	args := []interface{}{contentID}
	if piRound != 0 {
		query = `SELECT id, content_id, session_id, user_id, pi_round, value, correct, abstention
		 FROM answers WHERE content_id=$1 AND pi_round=$2 ORDER BY id`
		args = append(args, piRound)
	}
	return s.queryAnswers(ctx, query, args...)
}

func (s *ContentStore) GetUserAnswers(ctx context.Context, sessionID, userID string) ([]domain.Answer, error) {
	return s.queryAnswers(ctx,
		`SELECT id, content_id, session_id, user_id, pi_round, value, correct, abstention
		 FROM answers WHERE session_id=$1 AND user_id=$2 ORDER BY id`, sessionID, userID)
}

func (s *ContentStore) SaveAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error) {
	if answer.ID == "" {
		answer.ID = newID()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO answers (id, content_id, session_id, user_id, pi_round, value, correct, abstention)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		answer.ID, answer.ContentID, answer.SessionID, answer.UserID,
		answer.PiRound, answer.Value, answer.Correct, answer.Abstention)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("save answer: %w", err)
	}
	return answer, nil
}

func (s *ContentStore) DeleteAnswer(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM answers WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnswerNotFound
	}
	return nil
}

func (s *ContentStore) DeleteAnswers(ctx context.Context, contentID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM answers WHERE content_id=$1`, contentID)
	if err != nil {
		return 0, fmt.Errorf("delete answers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// LoadCourseScore builds the raw progress aggregate for a session. Locked
// content and flashcards carry no score and stay out of the aggregate.
func (s *ContentStore) LoadCourseScore(ctx context.Context, session domain.Session) (*domain.CourseScore, error) {
	aggregate := domain.NewCourseScore(session.ID)

	contents, err := s.GetContents(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	for _, content := range contents {
		if !content.Active || content.Variant == domain.VariantFlashcard {
			continue
		}
		aggregate.AddContent(content)
	}

	answers, err := s.queryAnswers(ctx,
		`SELECT id, content_id, session_id, user_id, pi_round, value, correct, abstention
		 FROM answers WHERE session_id=$1 ORDER BY id`, session.ID)
	if err != nil {
		return nil, err
	}
	for _, answer := range answers {
		aggregate.AddAnswer(answer)
	}
	return aggregate, nil
}

func (s *ContentStore) queryAnswers(ctx context.Context, query string, args ...interface{}) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return answers, rows.Err()
}

func (s *ContentStore) scanSession(row pgx.Row) (domain.Session, error) {
	var session domain.Session
	err := row.Scan(&session.ID, &session.Key, &session.OwnerID, &session.Name, &session.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

func scanContent(row pgx.Row) (domain.Content, error) {
	var content domain.Content
	err := row.Scan(&content.ID, &content.Revision, &content.SessionID, &content.Subject,
		&content.Body, &content.Variant, &content.QuestionType, &content.PiRound,
		&content.PiRoundStartTime, &content.PiRoundEndTime, &content.PiRoundFinished,
		&content.Active, &content.VotingDisabled, &content.MaxValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Content{}, domain.ErrContentNotFound
	}
	if err != nil {
		return domain.Content{}, fmt.Errorf("scan content: %w", err)
	}
	return content, nil
}

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var answer domain.Answer
	err := row.Scan(&answer.ID, &answer.ContentID, &answer.SessionID, &answer.UserID,
		&answer.PiRound, &answer.Value, &answer.Correct, &answer.Abstention)
	if err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

func newID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
