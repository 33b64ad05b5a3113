package ratecontrol

import (
	"context"
	"testing"
	"time"
)

func TestWaitPacesRequests(t *testing.T) {
	l := New(Config{DefaultRPS: 50, Burst: 1}, nil)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx, "api.example.com"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	// Two paced waits at 50 rps is at least ~40ms.
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("requests not paced: %v", elapsed)
	}
}

func TestHostOverride(t *testing.T) {
	l := New(Config{DefaultRPS: 1, HostRPS: map[string]float64{"fast.example.com": 0}}, nil)
	if got := l.RPSFor("FAST.example.com"); got != 0 {
		t.Fatalf("override not applied: %v", got)
	}
	if got := l.RPSFor("other.example.com"); got != 1 {
		t.Fatalf("default not applied: %v", got)
	}

	// Zero RPS means unlimited; ten waits must not take a second each.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 10; i++ {
		if err := l.Wait(ctx, "fast.example.com"); err != nil {
			t.Fatalf("unlimited host blocked: %v", err)
		}
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(Config{DefaultRPS: 0.001, Burst: 1}, nil)
	ctx := context.Background()
	if err := l.Wait(ctx, "slow.example.com"); err != nil {
		t.Fatalf("first token should be immediate: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "slow.example.com"); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
