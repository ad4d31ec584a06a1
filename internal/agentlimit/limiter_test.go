package agentlimit

import (
	"testing"
	"time"
)

func TestAllowWithinCapReturnsTrue(t *testing.T) {
	l := New(WithMax(3))
	for i := 0; i < 3; i++ {
		if !l.Allow("agent-1") {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
	}
}

func TestAllowDeniesAtCap(t *testing.T) {
	l := New(WithMax(2))
	if !l.Allow("agent-1") || !l.Allow("agent-1") {
		t.Fatalf("expected first two attempts to be allowed")
	}
	if l.Allow("agent-1") {
		t.Fatalf("expected third attempt to be denied")
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(WithMax(1), WithClock(func() time.Time { return clock }))

	if !l.Allow("agent-1") {
		t.Fatalf("expected first attempt to be allowed")
	}
	if l.Allow("agent-1") {
		t.Fatalf("expected second attempt within window to be denied")
	}

	clock = clock.Add(time.Hour + time.Minute)
	if !l.Allow("agent-1") {
		t.Fatalf("expected attempt after window to be allowed")
	}
}

func TestAllowIsPerAgent(t *testing.T) {
	l := New(WithMax(1))
	if !l.Allow("agent-1") {
		t.Fatalf("expected agent-1 first attempt allowed")
	}
	if !l.Allow("agent-2") {
		t.Fatalf("expected agent-2 to have its own independent window")
	}
}

func TestStatusReflectsUsage(t *testing.T) {
	l := New(WithMax(5))
	l.Allow("agent-1")
	l.Allow("agent-1")
	st := l.Status("agent-1")
	if st.Used != 2 || st.Max != 5 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestResetClearsWindow(t *testing.T) {
	l := New(WithMax(1))
	l.Allow("agent-1")
	l.Reset("agent-1")
	if !l.Allow("agent-1") {
		t.Fatalf("expected allow after reset")
	}
}
