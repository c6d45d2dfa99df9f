package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/config"
	"github.com/certeva/certexam-backend/internal/model"
)

// ExamStore is the persistence surface ExamService needs. Satisfied by
// *repository.ExamRepository.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

// ExamService serves exam definitions to the attempt engine, with the
// full definition and the candidate-safe payload cached in Redis so the
// hot path during an exam window never touches PostgreSQL. A Redis outage
// degrades to direct PostgreSQL reads.
type ExamService struct {
	store ExamStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(store ExamStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam loads the full exam definition, answer key included, from the
// Redis cache with a PostgreSQL fallback that self-heals the cache.
// Engine-side use only; never returned to candidates.
func (s *ExamService) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
		var exam model.Exam
		if err := json.Unmarshal([]byte(raw), &exam); err == nil {
			return &exam, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt exam cache, rebuilding")
	} else if !isCacheMiss(err) {
		s.log.Warn().Err(err).Msg("Exam cache unavailable, reading from database")
	}

	exam, err := s.store.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if data, err := json.Marshal(exam); err == nil {
		_ = s.rdb.Set(ctx, key, data, 0).Err()
	}
	return exam, nil
}

// ListPublished returns the exams a candidate may start.
func (s *ExamService) ListPublished(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.store.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}
	// Entry tokens never leave the server on list endpoints.
	for i := range exams {
		exams[i].EntryToken = ""
	}
	return exams, nil
}

// GetExamPayload returns the candidate-safe exam payload from Redis,
// falling back to PostgreSQL on a miss or outage and self-healing the
// cache.
func (s *ExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())

	if raw, err := s.rdb.Get(ctx, key).Result(); err == nil {
		var payload model.ExamPayload
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			return &payload, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt payload cache, rebuilding")
	} else if !isCacheMiss(err) {
		s.log.Warn().Err(err).Msg("Payload cache unavailable, reading from database")
	}

	exam, err := s.store.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	payload := exam.StripAnswers()

	if data, err := json.Marshal(payload); err == nil {
		_ = s.rdb.Set(ctx, key, data, 0).Err()
	}
	return payload, nil
}

// PrewarmAllCaches loads every published exam's definition and payload
// into Redis before the server accepts traffic, avoiding lazy-load races
// when a cohort starts an exam simultaneously.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.store.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	for i := range exams {
		exam, err := s.store.GetByID(ctx, exams[i].ID)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", exams[i].ID.String()).Msg("Prewarm skipped exam")
			continue
		}

		definition, _ := json.Marshal(exam)
		payload, _ := json.Marshal(exam.StripAnswers())

		pipe := s.rdb.Pipeline()
		pipe.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), definition, 0)
		pipe.Set(ctx, config.CacheKey.ExamPayloadKey(exam.ID.String()), payload, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("prewarm exam %s: %w", exam.ID, err)
		}
	}

	s.log.Info().Int("count", len(exams)).Msg("Exam caches prewarmed")
	return nil
}

// isCacheMiss distinguishes the expected empty-key result from real Redis
// failures, which are logged before degrading to the database.
func isCacheMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
