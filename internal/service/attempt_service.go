package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/certeva/certexam-backend/internal/config"
	"github.com/certeva/certexam-backend/internal/engine"
	"github.com/certeva/certexam-backend/internal/model"
	"github.com/certeva/certexam-backend/internal/repository"
)

// Service-level sentinels surfaced to handlers.
var (
	ErrExamNotAvailable   = errors.New("exam is not available")
	ErrInvalidEntryToken  = errors.New("invalid entry token")
	ErrMaxAttemptsReached = errors.New("maximum attempts reached")
	ErrNoActiveAttempt    = errors.New("no active attempt for this exam")
)

// liveAttempt pairs a session with its integrity monitor for the duration
// of one attempt.
type liveAttempt struct {
	session *engine.Session
	monitor *engine.Monitor
}

type sessionKey struct {
	candidateID int
	examID      uuid.UUID
}

// AttemptService owns every live attempt in this process: an in-memory
// registry of engine sessions keyed by (candidate, exam). Durable state
// flows out asynchronously through the Redis worker queues; Redis also
// holds the autosave buffer and start-time key used for reload recovery.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	examService *ExamService
	rdb         *redis.Client
	clock       engine.Clock
	prober      engine.LivenessProber
	log         zerolog.Logger

	mu   sync.Mutex
	live map[sessionKey]*liveAttempt
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	examService *ExamService,
	rdb *redis.Client,
	clock engine.Clock,
	prober engine.LivenessProber,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		examService: examService,
		rdb:         rdb,
		clock:       clock,
		prober:      prober,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// resultPayload is the queue envelope consumed by the result worker.
type resultPayload struct {
	AttemptID    string  `json:"attempt_id"`
	CandidateID  int     `json:"candidate_id"`
	ExamID       string  `json:"exam_id"`
	State        string  `json:"state"`
	SubmitReason *string `json:"submit_reason,omitempty"`
	Percentage   *int    `json:"percentage,omitempty"`
	Passed       *bool   `json:"passed,omitempty"`
	Answers      string  `json:"answers"`
	CompletedAt  int64   `json:"completed_at"`
}

// answerPayload is the queue envelope consumed by the answer worker.
type answerPayload struct {
	AttemptID   string `json:"attempt_id"`
	CandidateID int    `json:"candidate_id"`
	ExamID      string `json:"exam_id"`
	QuestionID  string `json:"question_id"`
	Answer      string `json:"answer"`
}

// violationPayload is the queue envelope consumed by the violation worker.
type violationPayload struct {
	AttemptID  string `json:"attempt_id"`
	Kind       string `json:"kind"`
	Detail     string `json:"detail"`
	RecordedAt int64  `json:"recorded_at"`
}

// StartAttemptResponse is returned when a candidate enters an exam.
type StartAttemptResponse struct {
	AttemptID        uuid.UUID          `json:"attempt_id"`
	AttemptNumber    int                `json:"attempt_number"`
	State            model.AttemptState `json:"state"`
	RemainingSeconds int                `json:"remaining_seconds"`
	Exam             *model.ExamPayload `json:"exam"`
}

// Start validates eligibility and brings up a live session for the
// candidate. A second Start while an attempt is live is idempotent and
// rejoins the existing session, so a page refresh never burns an attempt.
func (s *AttemptService) Start(ctx context.Context, candidateID int, examID uuid.UUID, entryToken string) (*StartAttemptResponse, error) {
	key := sessionKey{candidateID: candidateID, examID: examID}

	s.mu.Lock()
	if la, ok := s.live[key]; ok {
		s.mu.Unlock()
		return s.rejoin(ctx, la, examID)
	}
	s.mu.Unlock()

	// Cached read; a cohort entering simultaneously never stampedes
	// PostgreSQL for the same definition.
	exam, err := s.examService.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}
	now := s.clock.Now()
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return nil, ErrExamNotAvailable
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return nil, ErrExamNotAvailable
	}
	if exam.EntryToken != "" && exam.EntryToken != entryToken {
		return nil, ErrInvalidEntryToken
	}

	used, err := s.attemptRepo.CountByCandidateAndExam(ctx, candidateID, examID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if exam.MaxAttempts > 0 && used >= exam.MaxAttempts {
		return nil, ErrMaxAttemptsReached
	}

	session := engine.NewSession(exam, candidateID, used+1, s.clock, s.log)
	monitor := engine.NewMonitor(exam.AntiCheat, s.prober, s.clock, s.log)

	s.mu.Lock()
	if existing, ok := s.live[key]; ok {
		// Lost a concurrent-start race; the winner's session stands.
		s.mu.Unlock()
		return s.rejoin(ctx, existing, examID)
	}
	if s.live == nil {
		s.live = make(map[sessionKey]*liveAttempt)
	}
	la := &liveAttempt{session: session, monitor: monitor}
	s.live[key] = la
	s.mu.Unlock()

	if err := session.Start(); err != nil {
		s.drop(key)
		return nil, fmt.Errorf("start session: %w", err)
	}

	// The monitor outlives the request; it is torn down by the session's
	// terminal transition, not by the HTTP context.
	events, unsubscribe := monitor.Subscribe(context.Background())
	session.BindMonitor(events, unsubscribe)

	attempt := &model.Attempt{
		ID:            session.AttemptID(),
		ExamID:        examID,
		CandidateID:   candidateID,
		AttemptNumber: used + 1,
		State:         model.AttemptStateInProgress,
		StartedAt:     now,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		_ = session.Abandon()
		s.drop(key)
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	startKey := config.CacheKey.AttemptStartKey(examID.String(), candidateID)
	if err := s.rdb.Set(ctx, startKey, now.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache attempt start time")
	}
	_ = s.rdb.Set(ctx, config.CacheKey.CandidateActiveAttemptKey(candidateID), session.AttemptID().String(), 0).Err()

	go s.watchOutcome(key, la)

	payload, err := s.examService.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam payload: %w", err)
	}

	s.log.Info().
		Int("candidate_id", candidateID).
		Str("exam_id", examID.String()).
		Int("attempt_number", used+1).
		Msg("Attempt started")

	return &StartAttemptResponse{
		AttemptID:        session.AttemptID(),
		AttemptNumber:    used + 1,
		State:            session.State(),
		RemainingSeconds: session.RemainingSeconds(),
		Exam:             payload,
	}, nil
}

func (s *AttemptService) rejoin(ctx context.Context, la *liveAttempt, examID uuid.UUID) (*StartAttemptResponse, error) {
	payload, err := s.examService.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam payload: %w", err)
	}
	return &StartAttemptResponse{
		AttemptID:        la.session.AttemptID(),
		State:            la.session.State(),
		RemainingSeconds: la.session.RemainingSeconds(),
		Exam:             payload,
	}, nil
}

// watchOutcome waits for the terminal transition, hands the record to the
// result queue and retires the session from the registry.
func (s *AttemptService) watchOutcome(key sessionKey, la *liveAttempt) {
	<-la.session.Done()

	outcome := la.session.Outcome()
	s.drop(key)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = s.rdb.Del(ctx, config.CacheKey.CandidateActiveAttemptKey(key.candidateID)).Err()
	_ = s.rdb.Del(ctx, config.CacheKey.AttemptStartKey(key.examID.String(), key.candidateID)).Err()

	if outcome == nil {
		return
	}
	rec := outcome.Record

	for _, v := range rec.Violations {
		s.enqueue(ctx, config.WorkerKey.PersistViolationsQueue, violationPayload{
			AttemptID:  rec.AttemptID.String(),
			Kind:       string(v.Kind),
			Detail:     v.Detail,
			RecordedAt: v.RecordedAt.Unix(),
		})
	}

	answers, _ := json.Marshal(rec.Answers)
	payload := resultPayload{
		AttemptID:   rec.AttemptID.String(),
		CandidateID: rec.CandidateID,
		ExamID:      rec.ExamID.String(),
		State:       string(rec.State),
		Percentage:  rec.Percentage,
		Passed:      rec.Passed,
		Answers:     string(answers),
		CompletedAt: rec.CompletedAt.Unix(),
	}
	if rec.SubmitReason != nil {
		reason := string(*rec.SubmitReason)
		payload.SubmitReason = &reason
	}
	if err := s.enqueueResult(ctx, payload); err != nil {
		// The terminal state must not be lost when Redis is down, so
		// fall back to a direct database write.
		s.log.Error().Err(err).
			Str("attempt_id", rec.AttemptID.String()).
			Msg("Result enqueue failed, persisting directly")
		if err := s.attemptRepo.Finalize(ctx, &rec); err != nil {
			s.log.Error().Err(err).
				Str("attempt_id", rec.AttemptID.String()).
				Msg("Direct result persistence failed")
		}
		return
	}

	s.log.Info().
		Str("attempt_id", rec.AttemptID.String()).
		Str("state", string(rec.State)).
		Msg("Attempt outcome queued for persistence")
}

func (s *AttemptService) enqueue(ctx context.Context, queue string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("queue", queue).Msg("Marshal queue payload failed")
		return
	}
	if err := s.rdb.RPush(ctx, queue, data).Err(); err != nil {
		s.log.Error().Err(err).Str("queue", queue).Msg("Enqueue failed")
	}
}

func (s *AttemptService) enqueueResult(ctx context.Context, payload resultPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling result payload: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, data).Err()
}

func (s *AttemptService) drop(key sessionKey) {
	s.mu.Lock()
	delete(s.live, key)
	s.mu.Unlock()
}

func (s *AttemptService) get(candidateID int, examID uuid.UUID) (*liveAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	la, ok := s.live[sessionKey{candidateID: candidateID, examID: examID}]
	if !ok {
		return nil, ErrNoActiveAttempt
	}
	return la, nil
}

// RecordAnswer upserts one answer into the live session, mirrors it to the
// Redis autosave buffer for reload recovery and queues it for durable
// persistence.
func (s *AttemptService) RecordAnswer(ctx context.Context, candidateID int, examID uuid.UUID, req *model.RecordAnswerRequest) error {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return err
	}

	value := model.AnswerValue{Selected: req.Selected, Text: req.Text}
	if err := la.session.RecordAnswer(req.QuestionID, value); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}

	autosaveKey := config.CacheKey.CandidateAnswersKey(examID.String(), candidateID)
	if err := s.rdb.HSet(ctx, autosaveKey, req.QuestionID, raw).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Autosave buffer write failed")
	}

	s.enqueue(ctx, config.WorkerKey.PersistAnswersQueue, answerPayload{
		AttemptID:   la.session.AttemptID().String(),
		CandidateID: candidateID,
		ExamID:      examID.String(),
		QuestionID:  req.QuestionID,
		Answer:      string(raw),
	})
	return nil
}

// ReportViolation feeds one client-observed integrity signal into the
// monitor. Unwatched kinds are dropped; accepted events reach the session
// asynchronously and are persisted on finalization. Returns the accepted
// flag and the running violation count.
func (s *AttemptService) ReportViolation(ctx context.Context, candidateID int, examID uuid.UUID, req *model.ReportViolationRequest) (bool, int, error) {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return false, 0, err
	}
	accepted := la.monitor.Report(model.ViolationKind(req.Kind), req.Detail)
	return accepted, la.session.ViolationCount(), nil
}

// Pause pauses the live session's clock.
func (s *AttemptService) Pause(ctx context.Context, candidateID int, examID uuid.UUID) error {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return err
	}
	return la.session.Pause()
}

// Resume resumes a paused session.
func (s *AttemptService) Resume(ctx context.Context, candidateID int, examID uuid.UUID) error {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return err
	}
	return la.session.Resume()
}

// Submit finalizes and grades the live attempt on the candidate's request.
func (s *AttemptService) Submit(ctx context.Context, candidateID int, examID uuid.UUID) (*model.ScoreResult, error) {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return nil, err
	}
	return la.session.Submit(model.SubmitReasonUserRequested)
}

// Abandon finalizes the live attempt without grading.
func (s *AttemptService) Abandon(ctx context.Context, candidateID int, examID uuid.UUID) error {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return err
	}
	return la.session.Abandon()
}

// Session exposes the live engine session for transports that stream its
// lifecycle, such as the exam websocket.
func (s *AttemptService) Session(candidateID int, examID uuid.UUID) (*engine.Session, error) {
	la, err := s.get(candidateID, examID)
	if err != nil {
		return nil, err
	}
	return la.session, nil
}

// GetState returns the reload-recovery view: live session state when this
// process owns the attempt, otherwise reconstructed from the Redis
// autosave buffer and start-time key with a PostgreSQL fallback.
func (s *AttemptService) GetState(ctx context.Context, candidateID int, examID uuid.UUID) (*model.AttemptStateView, error) {
	autosaveKey := config.CacheKey.CandidateAnswersKey(examID.String(), candidateID)
	autosaved, err := s.rdb.HGetAll(ctx, autosaveKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	if la, laErr := s.get(candidateID, examID); laErr == nil {
		return &model.AttemptStateView{
			AttemptID:        la.session.AttemptID(),
			ExamID:           examID,
			CandidateID:      candidateID,
			State:            la.session.State(),
			AutosavedAnswers: autosaved,
			RemainingSeconds: la.session.RemainingSeconds(),
			ViolationCount:   la.session.ViolationCount(),
		}, nil
	}

	// No live session here. Reconstruct from the cached start time so a
	// candidate who lost their in-memory session still sees the clock.
	exam, err := s.examService.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	var startUnix int64
	startKey := config.CacheKey.AttemptStartKey(examID.String(), candidateID)
	val, err := s.rdb.Get(ctx, startKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		attempts, dbErr := s.attemptRepo.ListByCandidateAndExam(ctx, candidateID, examID)
		if dbErr != nil || len(attempts) == 0 {
			return nil, ErrNoActiveAttempt
		}
		latest := attempts[len(attempts)-1]
		if latest.State.Terminal() {
			return nil, ErrNoActiveAttempt
		}
		startUnix = latest.StartedAt.Unix()
		_ = s.rdb.Set(ctx, startKey, startUnix, 0).Err()
	case err != nil:
		return nil, fmt.Errorf("get start time: %w", err)
	default:
		startUnix, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid start time in cache: %w", err)
		}
	}

	state, remaining := recoveredState(time.Unix(startUnix, 0), exam.DurationSeconds, s.clock.Now())

	return &model.AttemptStateView{
		ExamID:           examID,
		CandidateID:      candidateID,
		State:            state,
		AutosavedAnswers: autosaved,
		RemainingSeconds: remaining,
	}, nil
}

// recoveredState derives the reload-recovery view of an attempt with no
// live session in this process. An attempt that ran out while nobody
// owned it is reported expired, not in progress with a zero clock.
func recoveredState(start time.Time, durationSeconds int, now time.Time) (model.AttemptState, int) {
	remaining := start.Add(time.Duration(durationSeconds) * time.Second).Sub(now)
	if remaining <= 0 {
		return model.AttemptStateExpired, 0
	}
	return model.AttemptStateInProgress, int(remaining / time.Second)
}

// Violations lists the integrity events recorded against one of the
// candidate's attempts. Live attempts read the in-memory session so the
// list is current before the worker has flushed; finished attempts read
// the persisted rows.
func (s *AttemptService) Violations(ctx context.Context, candidateID int, attemptID uuid.UUID) ([]model.Violation, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.CandidateID != candidateID {
		// Indistinguishable from a missing attempt on purpose.
		return nil, pgx.ErrNoRows
	}

	s.mu.Lock()
	la, live := s.live[sessionKey{candidateID: candidateID, examID: attempt.ExamID}]
	s.mu.Unlock()
	if live && la.session.AttemptID() == attemptID {
		return la.session.Violations(), nil
	}

	return s.attemptRepo.ListViolations(ctx, attemptID)
}

// History lists the candidate's attempts for an exam, newest last.
func (s *AttemptService) History(ctx context.Context, candidateID int, examID uuid.UUID) ([]model.Attempt, error) {
	attempts, err := s.attemptRepo.ListByCandidateAndExam(ctx, candidateID, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// Shutdown abandons every live session so monitors and tickers are
// released during graceful shutdown. Abandoned attempts stay resumable
// from Redis state if the candidate returns before expiry.
func (s *AttemptService) Shutdown() {
	s.mu.Lock()
	live := make([]*liveAttempt, 0, len(s.live))
	for _, la := range s.live {
		live = append(live, la)
	}
	s.mu.Unlock()

	for _, la := range live {
		_ = la.session.Abandon()
	}
	if len(live) > 0 {
		s.log.Info().Int("count", len(live)).Msg("Live sessions released on shutdown")
	}
}
