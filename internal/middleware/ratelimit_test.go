package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToCapacity(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("request over capacity should be rejected")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.allow("10.0.0.1") {
		t.Fatal("first client should be allowed")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatal("second client should have its own bucket")
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("first client should be exhausted")
	}
}

func TestRateLimiterRefillsAfterInterval(t *testing.T) {
	rl := NewRateLimiter(2, 10*time.Millisecond)

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.1")
	if rl.allow("10.0.0.1") {
		t.Fatal("bucket should be empty before refill")
	}

	time.Sleep(15 * time.Millisecond)

	if !rl.allow("10.0.0.1") {
		t.Fatal("bucket should refill after the interval elapses")
	}
}
