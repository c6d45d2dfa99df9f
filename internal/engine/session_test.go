package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/certeva/certexam-backend/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testExam(mutate func(*model.Exam)) *model.Exam {
	exam := &model.Exam{
		ID:              uuid.New(),
		Title:           "Go Fundamentals Certification",
		DurationSeconds: 60,
		PassingScore:    60,
		Questions: []model.Question{
			{ID: uuid.New(), QuestionType: model.QuestionTypeSingleChoice, CorrectOptions: []string{"A"}},
			{ID: uuid.New(), QuestionType: model.QuestionTypeSingleChoice, CorrectOptions: []string{"B"}},
			{ID: uuid.New(), QuestionType: model.QuestionTypeSingleChoice, CorrectOptions: []string{"C"}},
			{ID: uuid.New(), QuestionType: model.QuestionTypeSingleChoice, CorrectOptions: []string{"D"}},
			{ID: uuid.New(), QuestionType: model.QuestionTypeSingleChoice, CorrectOptions: []string{"A"}},
		},
	}
	if mutate != nil {
		mutate(exam)
	}
	return exam
}

func startedSession(t *testing.T, exam *model.Exam, clock Clock) *Session {
	t.Helper()
	sess := NewSession(exam, 42, 1, clock, zerolog.Nop())
	if err := sess.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

func TestSession_StartTwiceFails(t *testing.T) {
	sess := startedSession(t, testExam(nil), newFakeClock())

	err := sess.Start()
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second start: got %v, want ErrInvalidTransition", err)
	}
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) || ite.From != model.AttemptStateInProgress {
		t.Fatalf("error must carry the observed state, got %#v", err)
	}
}

func TestSession_RecordAnswerBeforeStart(t *testing.T) {
	sess := NewSession(testExam(nil), 42, 1, newFakeClock(), zerolog.Nop())

	err := sess.RecordAnswer("q1", model.AnswerValue{Selected: []string{"A"}})
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("got %v, want ErrSessionNotActive", err)
	}
}

func TestSession_CountdownIsMonotonicAndExpires(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(func(e *model.Exam) { e.DurationSeconds = 10 })
	sess := startedSession(t, exam, clock)

	prev := sess.RemainingSeconds()
	for i := 0; i < 9; i++ {
		clock.Advance(time.Second)
		sess.Tick()
		rem := sess.RemainingSeconds()
		if rem > prev {
			t.Fatalf("remaining increased: %d → %d", prev, rem)
		}
		prev = rem
	}
	if sess.State() != model.AttemptStateInProgress {
		t.Fatalf("state = %s before expiry", sess.State())
	}

	clock.Advance(time.Second)
	sess.Tick()

	if sess.State() != model.AttemptStateExpired {
		t.Fatalf("state = %s, want EXPIRED", sess.State())
	}
	if sess.RemainingSeconds() != 0 {
		t.Fatalf("remaining = %d after expiry, want 0", sess.RemainingSeconds())
	}
	out := sess.Outcome()
	if out == nil || out.Record.SubmitReason == nil || *out.Record.SubmitReason != model.SubmitReasonTimeExpired {
		t.Fatalf("outcome = %+v, want time_expired", out)
	}

	select {
	case <-sess.Done():
	default:
		t.Fatal("Done must be closed after expiry")
	}
}

func TestSession_MissedTicksSelfCorrect(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(func(e *model.Exam) { e.DurationSeconds = 30 })
	sess := startedSession(t, exam, clock)

	// Tab suspended: a whole minute passes with no ticks at all.
	clock.Advance(time.Minute)
	sess.Tick()

	if sess.State() != model.AttemptStateExpired {
		t.Fatalf("state = %s, want EXPIRED from a single late tick", sess.State())
	}
}

func TestSession_SubmitIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(nil)
	sess := startedSession(t, exam, clock)

	q := exam.Questions[0].ID.String()
	if err := sess.RecordAnswer(q, model.AnswerValue{Selected: []string{"A"}}); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	first, err := sess.Submit(model.SubmitReasonUserRequested)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Percentage != 20 {
		t.Fatalf("percentage = %d, want 20", first.Percentage)
	}

	// The timer racing the button: second call is a silent no-op.
	second, err := sess.Submit(model.SubmitReasonTimeExpired)
	if err != nil {
		t.Fatalf("duplicate submit must not error, got %v", err)
	}
	if second.Percentage != first.Percentage {
		t.Fatalf("duplicate submit changed the score: %d vs %d", second.Percentage, first.Percentage)
	}
	if sess.State() != model.AttemptStateSubmitted {
		t.Fatalf("state = %s, duplicate submit must not re-transition", sess.State())
	}
}

func TestSession_SubmitBeforeStartFails(t *testing.T) {
	sess := NewSession(testExam(nil), 42, 1, newFakeClock(), zerolog.Nop())
	if _, err := sess.Submit(model.SubmitReasonUserRequested); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
}

func TestSession_FrozenAfterTerminal(t *testing.T) {
	exam := testExam(nil)
	sess := startedSession(t, exam, newFakeClock())

	q := exam.Questions[0].ID.String()
	_ = sess.RecordAnswer(q, model.AnswerValue{Selected: []string{"A"}})
	if _, err := sess.Submit(model.SubmitReasonUserRequested); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err := sess.RecordAnswer(q, model.AnswerValue{Selected: []string{"B"}})
	if !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("got %v, want ErrSessionNotActive", err)
	}
	if got := sess.Answers()[q].Selected[0]; got != "A" {
		t.Fatalf("answer mutated after terminal state: %q", got)
	}

	if err := sess.AddViolation(model.Violation{Kind: model.ViolationTabSwitch}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("violation after terminal: got %v, want ErrInvalidTransition", err)
	}
	if sess.ViolationCount() != 0 {
		t.Fatalf("violation log mutated after terminal state")
	}
}

func TestSession_ViolationThresholdForcesSubmit(t *testing.T) {
	exam := testExam(func(e *model.Exam) { e.ViolationThreshold = 3 })
	sess := startedSession(t, exam, newFakeClock())

	for i := 0; i < 2; i++ {
		if err := sess.AddViolation(model.Violation{Kind: model.ViolationTabSwitch}); err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
	}
	if sess.State() != model.AttemptStateInProgress {
		t.Fatalf("state = %s below threshold", sess.State())
	}

	if err := sess.AddViolation(model.Violation{Kind: model.ViolationTabSwitch}); err != nil {
		t.Fatalf("third violation: %v", err)
	}

	if sess.State() != model.AttemptStateSubmitted {
		t.Fatalf("state = %s, want SUBMITTED", sess.State())
	}
	out := sess.Outcome()
	if out.Record.SubmitReason == nil || *out.Record.SubmitReason != model.SubmitReasonViolationThreshold {
		t.Fatalf("reason = %v, want violation_threshold", out.Record.SubmitReason)
	}
	if len(out.Record.Violations) != 3 {
		t.Fatalf("violations in record = %d, want 3", len(out.Record.Violations))
	}

	if err := sess.RecordAnswer("q1", model.AnswerValue{Selected: []string{"A"}}); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("answers must be rejected after a forced submit, got %v", err)
	}
}

func TestSession_ViolationOrderPreserved(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(nil)
	sess := startedSession(t, exam, clock)

	kinds := []model.ViolationKind{
		model.ViolationFocusLoss,
		model.ViolationTabSwitch,
		model.ViolationCopyPaste,
	}
	for _, k := range kinds {
		clock.Advance(time.Second)
		_ = sess.AddViolation(model.Violation{Kind: k, RecordedAt: clock.Now()})
	}

	got := sess.Violations()
	for i, k := range kinds {
		if got[i].Kind != k {
			t.Fatalf("violation %d = %s, want %s (insertion order must be preserved)", i, got[i].Kind, k)
		}
	}
}

func TestSession_PauseStopsTheClock(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(func(e *model.Exam) {
		e.AllowPause = true
		e.MaxPauseSeconds = 120
	})
	sess := startedSession(t, exam, clock)

	clock.Advance(10 * time.Second)
	sess.Tick()
	if err := sess.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	clock.Advance(20 * time.Second)
	sess.Tick()
	if rem := sess.RemainingSeconds(); rem != 50 {
		t.Fatalf("remaining = %d while paused, want 50", rem)
	}

	if err := sess.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clock.Advance(5 * time.Second)
	if rem := sess.RemainingSeconds(); rem != 45 {
		t.Fatalf("remaining = %d after resume, want 45", rem)
	}
}

func TestSession_PauseNotAllowed(t *testing.T) {
	sess := startedSession(t, testExam(nil), newFakeClock())
	if err := sess.Pause(); !errors.Is(err, ErrPauseNotAllowed) {
		t.Fatalf("got %v, want ErrPauseNotAllowed", err)
	}
}

func TestSession_PauseCapForcesResume(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(func(e *model.Exam) {
		e.AllowPause = true
		e.MaxPauseSeconds = 10
	})
	sess := startedSession(t, exam, clock)

	if err := sess.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clock.Advance(15 * time.Second)
	sess.Tick()

	if sess.State() != model.AttemptStateInProgress {
		t.Fatalf("state = %s, want forced resume to IN_PROGRESS", sess.State())
	}
	// Only the capped 10s of pause is excluded; the 5s overage ran on the
	// exam clock.
	if rem := sess.RemainingSeconds(); rem != 55 {
		t.Fatalf("remaining = %d, want 55", rem)
	}
}

func TestSession_AbandonReleasesResources(t *testing.T) {
	sess := startedSession(t, testExam(nil), newFakeClock())

	released := false
	events := make(chan model.Violation)
	sess.BindMonitor(events, func() { released = true })

	if err := sess.Abandon(); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	if sess.State() != model.AttemptStateAbandoned {
		t.Fatalf("state = %s, want ABANDONED", sess.State())
	}
	if !released {
		t.Fatal("monitor must be unsubscribed on abandon")
	}
	out := sess.Outcome()
	if out.Score != nil || out.Record.Percentage != nil {
		t.Fatalf("abandoned attempts must not be scored, got %+v", out)
	}

	// Environment events after abandonment must not reach the log.
	if err := sess.AddViolation(model.Violation{Kind: model.ViolationFocusLoss}); err == nil {
		t.Fatal("violation after abandon must fail")
	}
	if sess.ViolationCount() != 0 {
		t.Fatal("violation log grew after abandon")
	}

	// A second abandon is a no-op.
	if err := sess.Abandon(); err != nil {
		t.Fatalf("duplicate abandon: %v", err)
	}
}

func TestSession_ExpiryReleasesMonitor(t *testing.T) {
	clock := newFakeClock()
	exam := testExam(func(e *model.Exam) { e.DurationSeconds = 5 })
	sess := startedSession(t, exam, clock)

	released := false
	sess.BindMonitor(make(chan model.Violation), func() { released = true })

	clock.Advance(5 * time.Second)
	sess.Tick()

	if !released {
		t.Fatal("monitor must be unsubscribed on expiry, not only on explicit exits")
	}
}
