package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certeva/certexam-backend/internal/model"
)

// AttemptRepository persists finalized attempt records. Live attempts are
// owned by the in-memory engine; only terminal outcomes land here, plus a
// row created at start so reloads and attempt counting survive a restart.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts an attempt row at session start, in state IN_PROGRESS.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, exam_id, candidate_id, attempt_number, state, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.ExamID, a.CandidateID, a.AttemptNumber, a.State, a.StartedAt)
	return err
}

// Finalize writes the terminal outcome of an attempt: state, score,
// completion time and the frozen answers map.
func (r *AttemptRepository) Finalize(ctx context.Context, rec *model.AttemptRecord) error {
	answers, err := json.Marshal(rec.Answers)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET state = $1, submit_reason = $2, percentage = $3, passed = $4,
		     answers = $5::jsonb, completed_at = $6
		 WHERE id = $7`,
		rec.State, rec.SubmitReason, rec.Percentage, rec.Passed,
		answers, rec.CompletedAt, rec.AttemptID)
	return err
}

// GetByID retrieves one attempt without its violation log.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, attempt_number, state, submit_reason,
		        percentage, passed, answers, started_at, completed_at
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.AttemptNumber, &a.State, &a.SubmitReason,
		&a.Percentage, &a.Passed, &answers, &a.StartedAt, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// ListByCandidateAndExam retrieves a candidate's attempts on one exam,
// oldest first so attempt numbers line up with insertion order.
func (r *AttemptRepository) ListByCandidateAndExam(ctx context.Context, candidateID int, examID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, candidate_id, attempt_number, state, submit_reason,
		        percentage, passed, started_at, completed_at
		 FROM attempts
		 WHERE candidate_id = $1 AND exam_id = $2
		 ORDER BY started_at ASC`, candidateID, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.AttemptNumber, &a.State, &a.SubmitReason,
			&a.Percentage, &a.Passed, &a.StartedAt, &a.CompletedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CountByCandidateAndExam returns how many attempts a candidate has made
// on an exam, used to enforce max_attempts.
func (r *AttemptRepository) CountByCandidateAndExam(ctx context.Context, candidateID int, examID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE candidate_id = $1 AND exam_id = $2`,
		candidateID, examID,
	).Scan(&count)
	return count, err
}

// ListViolations retrieves an attempt's violation log in recorded order.
func (r *AttemptRepository) ListViolations(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, detail, recorded_at
		 FROM attempt_violations
		 WHERE attempt_id = $1
		 ORDER BY recorded_at ASC, id ASC`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		var detail *string
		var recordedAt time.Time
		if err := rows.Scan(&v.Kind, &detail, &recordedAt); err != nil {
			return nil, err
		}
		if detail != nil {
			v.Detail = *detail
		}
		v.RecordedAt = recordedAt
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
