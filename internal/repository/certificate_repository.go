package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/certeva/certexam-backend/internal/model"
)

// CertificateRepository handles certificate templates and issued
// certificates.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

// GetTemplateByExam retrieves the certificate template configured for an exam.
func (r *CertificateRepository) GetTemplateByExam(ctx context.Context, examID uuid.UUID) (*model.CertificateTemplate, error) {
	t := &model.CertificateTemplate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, name, minimum_score, passing_grade_type, max_score, grade_text, created_at
		 FROM certificate_templates WHERE exam_id = $1`, examID,
	).Scan(&t.ID, &t.ExamID, &t.Name, &t.MinimumScore, &t.PassingGradeType, &t.MaxScore, &t.GradeText, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateCertificate records an issued certificate.
func (r *CertificateRepository) CreateCertificate(ctx context.Context, c *model.Certificate) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO certificates (attempt_id, candidate_id, exam_id, certificate_number, percentage, grade_label)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, issued_at`,
		c.AttemptID, c.CandidateID, c.ExamID, c.CertificateNumber, c.Percentage, c.GradeLabel,
	).Scan(&c.ID, &c.IssuedAt)
}

// GetCertificateByAttempt retrieves the certificate issued for an attempt, if any.
func (r *CertificateRepository) GetCertificateByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, candidate_id, exam_id, certificate_number, percentage, grade_label, issued_at
		 FROM certificates WHERE attempt_id = $1`, attemptID,
	).Scan(&c.ID, &c.AttemptID, &c.CandidateID, &c.ExamID, &c.CertificateNumber, &c.Percentage, &c.GradeLabel, &c.IssuedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}
