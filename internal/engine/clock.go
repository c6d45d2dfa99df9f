package engine

import "time"

// Ticker abstracts time.Ticker so sessions can be driven by a fake clock
// in tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock is the wall-clock source for sessions and monitors. Remaining time
// is always recomputed from Now(), never derived from tick counts, so a
// suspended tab or missed tick self-corrects on the next observation.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type systemTicker struct {
	t *time.Ticker
}

func (st *systemTicker) C() <-chan time.Time { return st.t.C }
func (st *systemTicker) Stop()               { st.t.Stop() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

// SystemClock returns the real wall-clock implementation.
func SystemClock() Clock { return systemClock{} }
