package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/certeva/certexam-backend/internal/model"
	"github.com/rs/zerolog"
)

type fakeProber struct {
	mu         sync.Mutex
	acquireErr error
	probeErr   error
	released   bool
}

func (p *fakeProber) Acquire(ctx context.Context) error { return p.acquireErr }
func (p *fakeProber) Probe(ctx context.Context) error   { return p.probeErr }

func (p *fakeProber) Release() {
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
}

func (p *fakeProber) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func allSignals() model.AntiCheatConfig {
	return model.AntiCheatConfig{
		WatchFocusLoss:  true,
		WatchTabSwitch:  true,
		WatchRightClick: true,
		WatchCopyPaste:  true,
		WatchCamera:     true,
	}
}

func recvViolation(t *testing.T, events <-chan model.Violation) model.Violation {
	t.Helper()
	select {
	case v := <-events:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for violation event")
		return model.Violation{}
	}
}

func TestMonitor_ReportDeliversWatchedSignals(t *testing.T) {
	mon := NewMonitor(allSignals(), nil, newFakeClock(), zerolog.Nop())
	events, unsub := mon.Subscribe(context.Background())
	defer unsub()

	if !mon.Report(model.ViolationTabSwitch, "visibility hidden") {
		t.Fatal("watched signal must be accepted")
	}

	got := recvViolation(t, events)
	if got.Kind != model.ViolationTabSwitch || got.Detail != "visibility hidden" {
		t.Fatalf("got %+v", got)
	}
	if got.RecordedAt.IsZero() {
		t.Fatal("violation must be timestamped")
	}
}

func TestMonitor_UnwatchedSignalsDropped(t *testing.T) {
	cfg := allSignals()
	cfg.WatchRightClick = false
	mon := NewMonitor(cfg, nil, newFakeClock(), zerolog.Nop())
	_, unsub := mon.Subscribe(context.Background())
	defer unsub()

	if mon.Report(model.ViolationRightClick, "") {
		t.Fatal("disabled signal kind must be dropped")
	}
}

func TestMonitor_OrderPreserved(t *testing.T) {
	mon := NewMonitor(allSignals(), nil, newFakeClock(), zerolog.Nop())
	events, unsub := mon.Subscribe(context.Background())
	defer unsub()

	kinds := []model.ViolationKind{
		model.ViolationFocusLoss,
		model.ViolationCopyPaste,
		model.ViolationTabSwitch,
		model.ViolationFocusLoss,
	}
	for _, k := range kinds {
		mon.Report(k, "")
	}
	for i, want := range kinds {
		if got := recvViolation(t, events); got.Kind != want {
			t.Fatalf("event %d = %s, want %s", i, got.Kind, want)
		}
	}
}

func TestMonitor_CameraAcquireFailureDegradesToViolation(t *testing.T) {
	prober := &fakeProber{acquireErr: errors.New("permission denied")}
	mon := NewMonitor(allSignals(), prober, newFakeClock(), zerolog.Nop())
	events, unsub := mon.Subscribe(context.Background())
	defer unsub()

	got := recvViolation(t, events)
	if got.Kind != model.ViolationCameraAbsence {
		t.Fatalf("kind = %s, want CAMERA_ABSENCE", got.Kind)
	}
	if got.Detail != "failed to acquire" {
		t.Fatalf("detail = %q, want %q", got.Detail, "failed to acquire")
	}
}

// probeClock hands out tickers pre-loaded with a single tick so one
// camera probe cycle runs without real time passing.
type probeClock struct {
	fakeClock
}

func (c *probeClock) NewTicker(d time.Duration) Ticker {
	t := &fakeTicker{ch: make(chan time.Time, 1)}
	t.ch <- c.Now()
	return t
}

func TestMonitor_CameraProbeFailureEmitsViolation(t *testing.T) {
	prober := &fakeProber{probeErr: errors.New("no frame available")}
	clock := &probeClock{}
	clock.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	mon := NewMonitor(allSignals(), prober, clock, zerolog.Nop())
	events, unsub := mon.Subscribe(context.Background())
	defer unsub()

	got := recvViolation(t, events)
	if got.Kind != model.ViolationCameraAbsence {
		t.Fatalf("kind = %s, want CAMERA_ABSENCE", got.Kind)
	}
	if got.Detail != "no frame available" {
		t.Fatalf("detail = %q, want the probe error", got.Detail)
	}
	if got.RecordedAt.IsZero() {
		t.Fatal("violation must be timestamped")
	}
}

func TestMonitor_UnsubscribeReleasesCamera(t *testing.T) {
	prober := &fakeProber{}
	mon := NewMonitor(allSignals(), prober, newFakeClock(), zerolog.Nop())
	_, unsub := mon.Subscribe(context.Background())

	unsub()

	if !prober.Released() {
		t.Fatal("unsubscribe must release the camera")
	}

	// Signals after unsubscribe go nowhere.
	if mon.Report(model.ViolationFocusLoss, "") {
		t.Fatal("events after unsubscribe must be dropped")
	}

	// Idempotent.
	unsub()
}

func TestMonitor_SessionIntegration(t *testing.T) {
	exam := testExam(func(e *model.Exam) { e.ViolationThreshold = 2 })
	exam.AntiCheat = allSignals()

	clock := newFakeClock()
	sess := startedSession(t, exam, clock)

	prober := &fakeProber{}
	mon := NewMonitor(exam.AntiCheat, prober, clock, zerolog.Nop())
	events, unsub := mon.Subscribe(context.Background())
	sess.BindMonitor(events, unsub)

	mon.Report(model.ViolationTabSwitch, "")
	mon.Report(model.ViolationTabSwitch, "")

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("threshold crossing must terminate the session")
	}

	if sess.State() != model.AttemptStateSubmitted {
		t.Fatalf("state = %s, want SUBMITTED", sess.State())
	}
	if !prober.Released() {
		t.Fatal("terminal transition must release the camera via unsubscribe")
	}
}
