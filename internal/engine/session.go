package engine

import (
	"sync"
	"time"

	"github.com/certeva/certexam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome is the result of a terminal transition. Score is nil for
// abandoned attempts, which are never graded.
type Outcome struct {
	Record model.AttemptRecord
	Score  *model.ScoreResult
}

// Session is the state machine owning one exam attempt from start to a
// terminal state: countdown, answer capture, the violation log and its
// threshold policy, and the scoring decision at submission.
//
// All entry points (ticker, transport handlers, monitor events) are
// serialized by one mutex. Exactly one terminal transition fires per
// attempt; duplicate submits are silent no-ops because the expiry timer
// and a manual submit legitimately race.
type Session struct {
	mu    sync.Mutex
	clock Clock
	log   zerolog.Logger

	exam    *model.Exam
	attempt *model.Attempt
	sheet   *AnswerSheet

	violations  []model.Violation
	pausedTotal time.Duration
	pausedSince time.Time

	ticker      Ticker
	tickerStop  chan struct{}
	monitorStop func()

	done    chan struct{}
	outcome *Outcome
}

// NewSession creates a session in NOT_STARTED for the given exam and
// candidate. The exam definition is read-only input.
func NewSession(exam *model.Exam, candidateID, attemptNumber int, clock Clock, log zerolog.Logger) *Session {
	attempt := &model.Attempt{
		ID:            uuid.New(),
		ExamID:        exam.ID,
		CandidateID:   candidateID,
		AttemptNumber: attemptNumber,
		State:         model.AttemptStateNotStarted,
	}
	return &Session{
		clock:      clock,
		log:        log.With().Str("component", "session").Str("attempt_id", attempt.ID.String()).Logger(),
		exam:       exam,
		attempt:    attempt,
		sheet:      NewAnswerSheet(),
		tickerStop: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start transitions NOT_STARTED → IN_PROGRESS, records the wall-clock
// start time and launches the one-second ticker. Calling it twice fails
// with an InvalidTransitionError.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State != model.AttemptStateNotStarted {
		return &InvalidTransitionError{From: s.attempt.State, Op: "start"}
	}

	s.attempt.StartedAt = s.clock.Now()
	s.attempt.State = model.AttemptStateInProgress

	s.ticker = s.clock.NewTicker(time.Second)
	go s.tickLoop()

	s.log.Info().
		Str("exam_id", s.exam.ID.String()).
		Int("duration_seconds", s.exam.DurationSeconds).
		Msg("Attempt started")
	return nil
}

func (s *Session) tickLoop() {
	for {
		select {
		case <-s.tickerStop:
			return
		case <-s.ticker.C():
			s.Tick()
		}
	}
}

// BindMonitor attaches an integrity monitor's event stream. Events are
// appended to the violation log in arrival order; unsubscribe is invoked
// on every terminal transition so listeners and camera resources are
// released no matter how the attempt ends.
func (s *Session) BindMonitor(events <-chan model.Violation, unsubscribe func()) {
	s.mu.Lock()
	s.monitorStop = unsubscribe
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-s.done:
				return
			case v, ok := <-events:
				if !ok {
					return
				}
				_ = s.AddViolation(v)
			}
		}
	}()
}

// RecordAnswer upserts one answer. Valid only while IN_PROGRESS; any other
// state fails with a NotActiveError carrying the observed state.
func (s *Session) RecordAnswer(questionID string, value model.AnswerValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State != model.AttemptStateInProgress {
		return &NotActiveError{State: s.attempt.State}
	}
	s.sheet.Set(questionID, value)
	return nil
}

// Tick recomputes the remaining time from elapsed wall-clock duration and
// fires the expiry submit when it hits zero. It also enforces the
// cumulative pause cap: a pause that exceeds max_pause_seconds is forced
// back to IN_PROGRESS with the overage counted against the exam clock.
//
// The computation is deliberately not a per-tick decrement, so missed
// ticks while a tab is hidden or the process is suspended self-correct.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.attempt.State {
	case model.AttemptStatePaused:
		if s.exam.MaxPauseSeconds <= 0 {
			return
		}
		now := s.clock.Now()
		maxPause := time.Duration(s.exam.MaxPauseSeconds) * time.Second
		if s.pausedTotal+now.Sub(s.pausedSince) >= maxPause {
			s.pausedTotal = maxPause
			s.attempt.State = model.AttemptStateInProgress
			s.log.Warn().Msg("Pause cap exceeded, forcing resume")
		}
	case model.AttemptStateInProgress:
		if s.remainingLocked(s.clock.Now()) <= 0 {
			s.submitLocked(model.SubmitReasonTimeExpired)
		}
	}
}

// Pause transitions IN_PROGRESS → PAUSED when the exam allows it.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State != model.AttemptStateInProgress {
		return &InvalidTransitionError{From: s.attempt.State, Op: "pause"}
	}
	if !s.exam.AllowPause {
		return ErrPauseNotAllowed
	}

	s.pausedSince = s.clock.Now()
	s.attempt.State = model.AttemptStatePaused
	s.log.Info().Msg("Attempt paused")
	return nil
}

// Resume transitions PAUSED → IN_PROGRESS, accumulating the paused
// duration against the configured cap.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State != model.AttemptStatePaused {
		return &InvalidTransitionError{From: s.attempt.State, Op: "resume"}
	}

	s.pausedTotal += s.clock.Now().Sub(s.pausedSince)
	if s.exam.MaxPauseSeconds > 0 {
		if maxPause := time.Duration(s.exam.MaxPauseSeconds) * time.Second; s.pausedTotal > maxPause {
			s.pausedTotal = maxPause
		}
	}
	s.attempt.State = model.AttemptStateInProgress
	s.log.Info().Dur("paused_total", s.pausedTotal).Msg("Attempt resumed")
	return nil
}

// AddViolation appends one integrity event to the attempt-scoped log.
// Valid while IN_PROGRESS or PAUSED. Crossing the exam's violation
// threshold force-submits the attempt.
func (s *Session) AddViolation(v model.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State != model.AttemptStateInProgress && s.attempt.State != model.AttemptStatePaused {
		return &InvalidTransitionError{From: s.attempt.State, Op: "record violation"}
	}

	s.violations = append(s.violations, v)
	s.log.Warn().
		Str("kind", string(v.Kind)).
		Int("count", len(s.violations)).
		Msg("Violation recorded")

	if s.exam.ViolationThreshold > 0 && len(s.violations) >= s.exam.ViolationThreshold {
		s.log.Warn().Int("threshold", s.exam.ViolationThreshold).Msg("Violation threshold crossed, forcing submit")
		s.submitLocked(model.SubmitReasonViolationThreshold)
	}
	return nil
}

// Submit finalizes the attempt and grades it. Valid from IN_PROGRESS or
// PAUSED. A second call while already terminal returns the first outcome's
// score and does nothing: the expiry timer and the submit button race, and
// whichever arrives first wins.
func (s *Session) Submit(reason model.SubmitReason) (*model.ScoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State.Terminal() {
		if s.outcome != nil {
			return s.outcome.Score, nil
		}
		return nil, nil
	}
	if s.attempt.State == model.AttemptStateNotStarted {
		return nil, &InvalidTransitionError{From: s.attempt.State, Op: "submit"}
	}

	return s.submitLocked(reason), nil
}

// Abandon finalizes the attempt without scoring. Called when the candidate
// navigates away. A no-op if the attempt is already terminal.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt.State.Terminal() {
		return nil
	}
	if s.attempt.State == model.AttemptStateNotStarted {
		return &InvalidTransitionError{From: s.attempt.State, Op: "abandon"}
	}

	s.finalizeLocked(model.AttemptStateAbandoned, nil, nil)
	s.log.Info().Msg("Attempt abandoned")
	return nil
}

func (s *Session) submitLocked(reason model.SubmitReason) *model.ScoreResult {
	score := Score(ScoreInput{
		Answers:        s.sheet.Snapshot(),
		AnswerKey:      s.exam.AnswerKey(),
		TotalQuestions: len(s.exam.Questions),
		PassingScore:   s.exam.PassingScore,
		PartialCredit:  s.exam.PartialCredit,
	})

	state := model.AttemptStateSubmitted
	if reason == model.SubmitReasonTimeExpired {
		state = model.AttemptStateExpired
	}
	s.finalizeLocked(state, &reason, &score)

	s.log.Info().
		Str("reason", string(reason)).
		Int("percentage", score.Percentage).
		Bool("passed", score.Passed).
		Msg("Attempt submitted")
	return &score
}

// finalizeLocked performs the single terminal transition: freezes the
// answer sheet and violation log, captures the outcome record, and
// releases the ticker and monitor on this, the only, exit path.
func (s *Session) finalizeLocked(state model.AttemptState, reason *model.SubmitReason, score *model.ScoreResult) {
	now := s.clock.Now()

	s.attempt.State = state
	s.attempt.CompletedAt = &now
	s.attempt.SubmitReason = reason
	s.sheet.Freeze()

	record := model.AttemptRecord{
		AttemptID:     s.attempt.ID,
		ExamID:        s.attempt.ExamID,
		CandidateID:   s.attempt.CandidateID,
		AttemptNumber: s.attempt.AttemptNumber,
		State:         state,
		SubmitReason:  reason,
		Answers:       s.sheet.Snapshot(),
		Violations:    append([]model.Violation(nil), s.violations...),
		StartedAt:     s.attempt.StartedAt,
		CompletedAt:   now,
	}
	if score != nil {
		s.attempt.Percentage = &score.Percentage
		s.attempt.Passed = &score.Passed
		record.Percentage = &score.Percentage
		record.Passed = &score.Passed
	}
	s.outcome = &Outcome{Record: record, Score: score}

	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.tickerStop)
	if s.monitorStop != nil {
		s.monitorStop()
	}
	close(s.done)
}

func (s *Session) remainingLocked(now time.Time) time.Duration {
	paused := s.pausedTotal
	if s.attempt.State == model.AttemptStatePaused {
		paused += now.Sub(s.pausedSince)
	}
	elapsed := now.Sub(s.attempt.StartedAt) - paused
	remaining := time.Duration(s.exam.DurationSeconds)*time.Second - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// AttemptID returns the opaque attempt identifier.
func (s *Session) AttemptID() uuid.UUID { return s.attempt.ID }

// State returns the current lifecycle state.
func (s *Session) State() model.AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.State
}

// RemainingSeconds recomputes the time left from the wall clock. It is
// monotonically non-increasing while IN_PROGRESS.
func (s *Session) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt.State == model.AttemptStateNotStarted {
		return s.exam.DurationSeconds
	}
	return int(s.remainingLocked(s.clock.Now()) / time.Second)
}

// ViolationCount returns the number of logged violations.
func (s *Session) ViolationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.violations)
}

// Violations returns a copy of the ordered violation log.
func (s *Session) Violations() []model.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Violation(nil), s.violations...)
}

// Answers returns a snapshot of the answer sheet.
func (s *Session) Answers() map[string]model.AnswerValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sheet.Snapshot()
}

// Done is closed on the terminal transition; Outcome is non-nil afterward.
func (s *Session) Done() <-chan struct{} { return s.done }

// Outcome returns the terminal outcome, or nil while the attempt is live.
func (s *Session) Outcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}
