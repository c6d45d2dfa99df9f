package engine

import (
	"context"
	"sync"
	"time"

	"github.com/certeva/certexam-backend/internal/model"
	"github.com/rs/zerolog"
)

// CameraProbeInterval is the cadence of the camera-liveness check.
const CameraProbeInterval = 5 * time.Second

// eventBuffer bounds the violation channel so a slow consumer never blocks
// a reporter. Overflowing events are dropped with a warning.
const eventBuffer = 64

// LivenessProber is the swappable camera-presence check. Acquire may block
// on a device permission prompt, so the monitor always calls it off the
// subscriber's goroutine. Release must be safe to call after a failed
// Acquire.
//
// The repository ships no real face detection; see NoopProber.
type LivenessProber interface {
	Acquire(ctx context.Context) error
	Probe(ctx context.Context) error
	Release()
}

// NoopProber is a stand-in prober that always reports a live camera. Real
// detection is a deployment concern; wiring a different LivenessProber is
// the only change required.
type NoopProber struct{}

func (NoopProber) Acquire(context.Context) error { return nil }
func (NoopProber) Probe(context.Context) error   { return nil }
func (NoopProber) Release()                      {}

// Monitor translates heterogeneous environment signals into a uniform,
// ordered stream of violation events. Client-observed signals (focus loss,
// tab switches, copy/paste, right clicks) arrive via Report; the camera
// presence heartbeat is driven internally by a LivenessProber polled every
// CameraProbeInterval.
type Monitor struct {
	cfg    model.AntiCheatConfig
	clock  Clock
	prober LivenessProber
	log    zerolog.Logger

	mu         sync.Mutex
	events     chan model.Violation
	cancel     context.CancelFunc
	cameraDone chan struct{}
	subscribed bool
	stopped    bool
}

// NewMonitor creates a monitor for one attempt. prober may be nil when the
// camera signal is not watched.
func NewMonitor(cfg model.AntiCheatConfig, prober LivenessProber, clock Clock, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		clock:  clock,
		prober: prober,
		log:    log.With().Str("component", "integrity_monitor").Logger(),
	}
}

// Subscribe starts the monitor and returns the violation stream plus an
// unsubscribe func. Unsubscribe detaches all signal sources and releases
// the camera, is idempotent, and must be called on every exit path.
func (m *Monitor) Subscribe(ctx context.Context) (<-chan model.Violation, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribed {
		return m.events, m.unsubscribe
	}
	m.subscribed = true
	m.events = make(chan model.Violation, eventBuffer)

	cameraCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.cameraDone = make(chan struct{})

	if m.cfg.WatchCamera && m.prober != nil {
		go m.cameraLoop(cameraCtx)
	} else {
		close(m.cameraDone)
	}

	return m.events, m.unsubscribe
}

func (m *Monitor) unsubscribe() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	done := m.cameraDone
	m.mu.Unlock()

	cancel()
	<-done // camera goroutine releases the prober on its way out
}

// Report pushes one client-observed signal into the stream. Signals whose
// kind is not watched by the configuration are dropped. Returns whether
// the event was accepted.
func (m *Monitor) Report(kind model.ViolationKind, detail string) bool {
	if !m.cfg.Enabled(kind) {
		return false
	}
	return m.emit(model.Violation{
		Kind:       kind,
		Detail:     detail,
		RecordedAt: m.clock.Now(),
	})
}

// emit delivers without blocking the reporter. Arrival order is preserved
// by the channel; there is no batching or dedup beyond one event per
// discrete signal.
func (m *Monitor) emit(v model.Violation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || m.events == nil {
		return false
	}
	select {
	case m.events <- v:
		return true
	default:
		m.log.Warn().Str("kind", string(v.Kind)).Msg("Violation buffer full, event dropped")
		return false
	}
}

// cameraLoop acquires the camera and probes it on a fixed interval. A
// failed acquisition or probe is itself a CAMERA_ABSENCE violation, never
// a fatal error: integrity monitoring degrades, the exam continues.
func (m *Monitor) cameraLoop(ctx context.Context) {
	defer close(m.cameraDone)
	defer m.prober.Release()

	if err := m.prober.Acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Err(err).Msg("Camera acquisition failed")
		m.emit(model.Violation{
			Kind:       model.ViolationCameraAbsence,
			Detail:     "failed to acquire",
			RecordedAt: m.clock.Now(),
		})
	}

	ticker := m.clock.NewTicker(CameraProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := m.prober.Probe(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.emit(model.Violation{
					Kind:       model.ViolationCameraAbsence,
					Detail:     err.Error(),
					RecordedAt: m.clock.Now(),
				})
			}
		}
	}
}
