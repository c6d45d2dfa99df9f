package service

import (
	"testing"
	"time"

	"github.com/certeva/certexam-backend/internal/model"
)

func TestRecoveredState(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		elapsed       time.Duration
		wantState     model.AttemptState
		wantRemaining int
	}{
		{"mid-attempt", 10 * time.Minute, model.AttemptStateInProgress, 50 * 60},
		{"one second left", 3599 * time.Second, model.AttemptStateInProgress, 1},
		{"exactly at the deadline", time.Hour, model.AttemptStateExpired, 0},
		{"long past the deadline", 2 * time.Hour, model.AttemptStateExpired, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, remaining := recoveredState(start, 3600, start.Add(tt.elapsed))
			if state != tt.wantState {
				t.Errorf("state = %s, want %s", state, tt.wantState)
			}
			if remaining != tt.wantRemaining {
				t.Errorf("remaining = %d, want %d", remaining, tt.wantRemaining)
			}
		})
	}
}
