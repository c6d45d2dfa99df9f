package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/config"
	"github.com/certeva/certexam-backend/internal/engine"
	"github.com/certeva/certexam-backend/internal/model"
	"github.com/certeva/certexam-backend/internal/repository"
)

var (
	ErrAttemptNotGraded = errors.New("attempt has no score")
	ErrNotEligible      = errors.New("score does not qualify for a certificate")
)

// Renderer produces the downloadable certificate artifact. Rendering runs
// outside this service; the default implementation only logs the hand-off.
type Renderer interface {
	Render(ctx context.Context, req model.RenderRequest) error
}

// LogRenderer is the built-in renderer: it records the hand-off and leaves
// actual PDF generation to an external pipeline.
type LogRenderer struct {
	log zerolog.Logger
}

func NewLogRenderer(log zerolog.Logger) *LogRenderer {
	return &LogRenderer{log: log.With().Str("component", "certificate_renderer").Logger()}
}

func (r *LogRenderer) Render(ctx context.Context, req model.RenderRequest) error {
	r.log.Info().
		Str("certificate_number", req.CertificateNumber).
		Str("candidate", req.CandidateName).
		Str("exam", req.ExamTitle).
		Msg("Certificate queued for rendering")
	return nil
}

// CertificateService gates certificate issuance on the template's own
// threshold, which is independent of the exam's passing score, and hands
// eligible results to the renderer.
type CertificateService struct {
	cfg           *config.Config
	certRepo      *repository.CertificateRepository
	attemptRepo   *repository.AttemptRepository
	candidateRepo *repository.CandidateRepository
	examRepo      *repository.ExamRepository
	renderer      Renderer
	log           zerolog.Logger
}

// NewCertificateService creates a new CertificateService.
func NewCertificateService(
	cfg *config.Config,
	certRepo *repository.CertificateRepository,
	attemptRepo *repository.AttemptRepository,
	candidateRepo *repository.CandidateRepository,
	examRepo *repository.ExamRepository,
	renderer Renderer,
	log zerolog.Logger,
) *CertificateService {
	return &CertificateService{
		cfg:           cfg,
		certRepo:      certRepo,
		attemptRepo:   attemptRepo,
		candidateRepo: candidateRepo,
		examRepo:      examRepo,
		renderer:      renderer,
		log:           log.With().Str("component", "certificate_service").Logger(),
	}
}

// CheckEligibility evaluates a finished attempt against the exam's
// certificate template without issuing anything.
func (s *CertificateService) CheckEligibility(ctx context.Context, attemptID uuid.UUID) (*model.EligibilityResult, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Percentage == nil {
		return nil, ErrAttemptNotGraded
	}

	tpl, err := s.certRepo.GetTemplateByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get certificate template: %w", err)
	}

	result := engine.Evaluate(*attempt.Percentage, *tpl)
	return &result, nil
}

// Issue evaluates eligibility and, when the attempt qualifies, persists a
// certificate and hands it to the renderer. Issuing twice for the same
// attempt returns the existing certificate.
func (s *CertificateService) Issue(ctx context.Context, attemptID uuid.UUID) (*model.Certificate, error) {
	existing, err := s.certRepo.GetCertificateByAttempt(ctx, attemptID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing certificate: %w", err)
	}

	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Percentage == nil {
		return nil, ErrAttemptNotGraded
	}

	tpl, err := s.certRepo.GetTemplateByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get certificate template: %w", err)
	}

	eligibility := engine.Evaluate(*attempt.Percentage, *tpl)
	if !eligibility.Eligible {
		return nil, ErrNotEligible
	}

	now := time.Now()
	cert := &model.Certificate{
		ID:                uuid.New(),
		AttemptID:         attemptID,
		CandidateID:       attempt.CandidateID,
		ExamID:            attempt.ExamID,
		CertificateNumber: s.certificateNumber(now),
		Percentage:        *attempt.Percentage,
		GradeLabel:        eligibility.GradeLabel,
		IssuedAt:          now,
	}
	if err := s.certRepo.CreateCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	if err := s.render(ctx, cert, attempt, tpl); err != nil {
		// The certificate record is durable; rendering can be replayed.
		s.log.Error().Err(err).Str("certificate_number", cert.CertificateNumber).Msg("Render hand-off failed")
	}

	s.log.Info().
		Str("certificate_number", cert.CertificateNumber).
		Int("candidate_id", cert.CandidateID).
		Str("grade", cert.GradeLabel).
		Msg("Certificate issued")
	return cert, nil
}

// GetByAttempt returns the issued certificate for an attempt, if any.
func (s *CertificateService) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Certificate, error) {
	cert, err := s.certRepo.GetCertificateByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return cert, nil
}

func (s *CertificateService) render(ctx context.Context, cert *model.Certificate, attempt *model.Attempt, tpl *model.CertificateTemplate) error {
	candidate, err := s.candidateRepo.GetByID(ctx, attempt.CandidateID)
	if err != nil {
		return fmt.Errorf("get candidate: %w", err)
	}
	exam, err := s.examRepo.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	completedAt := cert.IssuedAt
	if attempt.CompletedAt != nil {
		completedAt = *attempt.CompletedAt
	}
	return s.renderer.Render(ctx, model.RenderRequest{
		CandidateName:     candidate.FullName,
		ExamTitle:         exam.Title,
		Percentage:        cert.Percentage,
		CompletedAt:       completedAt,
		CertificateNumber: cert.CertificateNumber,
		GradeText:         tpl.GradeText,
	})
}

// certificateNumber builds a serial like CERT-2026-1A2B3C4D from the
// configured prefix, the issue year and a random uuid fragment.
func (s *CertificateService) certificateNumber(now time.Time) string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("%s-%d-%s", s.cfg.CertificatePrefix, now.Year(), fragment)
}
