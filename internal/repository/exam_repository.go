package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certeva/certexam-backend/internal/model"
)

// ExamRepository handles exam definition data access. Exam definitions are
// authored externally; the attempt engine only reads them.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, duration_seconds, passing_score, entry_token,
	allow_pause, max_pause_seconds, violation_threshold, anti_cheat,
	max_attempts, partial_credit, scheduled_start, scheduled_end,
	status, created_at, updated_at`

func scanExam(row interface{ Scan(dest ...any) error }) (*model.Exam, error) {
	e := &model.Exam{}
	var antiCheat []byte
	err := row.Scan(&e.ID, &e.Title, &e.DurationSeconds, &e.PassingScore, &e.EntryToken,
		&e.AllowPause, &e.MaxPauseSeconds, &e.ViolationThreshold, &antiCheat,
		&e.MaxAttempts, &e.PartialCredit, &e.ScheduledStart, &e.ScheduledEnd,
		&e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(antiCheat) > 0 {
		if err := json.Unmarshal(antiCheat, &e.AntiCheat); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// GetByID retrieves an exam with its questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	e, err := scanExam(row)
	if err != nil {
		return nil, err
	}

	questions, err := r.listQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Questions = questions
	return e, nil
}

// ListPublished retrieves all published exams without their questions.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE status = $1
		 ORDER BY created_at DESC`, model.ExamStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func (r *ExamRepository) listQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, question_type, options, correct_options, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num ASC`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.QuestionType, &q.Options, &q.CorrectOptions, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
