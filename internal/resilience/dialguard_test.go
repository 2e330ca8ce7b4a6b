package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDial = errors.New("dial failed")

func TestNewDialGuard_Defaults(t *testing.T) {
	g := NewDialGuard(DialGuardConfig{Name: "test"})
	if g.threshold != 3 {
		t.Errorf("threshold = %d, want 3", g.threshold)
	}
	if g.cooldown != 15*time.Second {
		t.Errorf("cooldown = %v, want 15s", g.cooldown)
	}
	if g.Tripped() {
		t.Error("new guard should not be tripped")
	}
}

func TestDialGuard_PassesThroughWhileHealthy(t *testing.T) {
	g := NewDialGuard(DialGuardConfig{Name: "test"})

	calls := 0
	for range 10 {
		if err := g.Attempt(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Attempt() = %v, want nil", err)
		}
	}
	if calls != 10 {
		t.Errorf("dial called %d times, want 10", calls)
	}
}

func TestDialGuard_TripsAfterThreshold(t *testing.T) {
	g := NewDialGuard(DialGuardConfig{Name: "test", Threshold: 2})

	for range 2 {
		if err := g.Attempt(func() error { return errDial }); !errors.Is(err, errDial) {
			t.Fatalf("Attempt() = %v, want %v", err, errDial)
		}
	}
	if !g.Tripped() {
		t.Fatal("guard should be tripped after threshold failures")
	}

	called := false
	err := g.Attempt(func() error { called = true; return nil })
	if !errors.Is(err, ErrBackendCooling) {
		t.Errorf("Attempt() = %v, want ErrBackendCooling", err)
	}
	if called {
		t.Error("dial must not be called while cooling")
	}
}

func TestDialGuard_ProbeAfterCooldownResets(t *testing.T) {
	g := NewDialGuard(DialGuardConfig{Name: "test", Threshold: 1, Cooldown: time.Minute})

	current := time.Now()
	g.now = func() time.Time { return current }

	if err := g.Attempt(func() error { return errDial }); !errors.Is(err, errDial) {
		t.Fatalf("Attempt() = %v, want %v", err, errDial)
	}
	if !g.Tripped() {
		t.Fatal("guard should be tripped")
	}

	current = current.Add(2 * time.Minute)

	if err := g.Attempt(func() error { return nil }); err != nil {
		t.Fatalf("probe Attempt() = %v, want nil", err)
	}
	if g.Tripped() {
		t.Error("guard should reset after successful probe")
	}
	if g.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", g.Failures())
	}
}

func TestDialGuard_FailedProbeReTrips(t *testing.T) {
	g := NewDialGuard(DialGuardConfig{Name: "test", Threshold: 1, Cooldown: time.Minute})

	current := time.Now()
	g.now = func() time.Time { return current }

	if err := g.Attempt(func() error { return errDial }); !errors.Is(err, errDial) {
		t.Fatalf("Attempt() = %v, want %v", err, errDial)
	}

	current = current.Add(2 * time.Minute)

	if err := g.Attempt(func() error { return errDial }); !errors.Is(err, errDial) {
		t.Fatalf("probe Attempt() = %v, want %v", err, errDial)
	}
	if !g.Tripped() {
		t.Error("guard should re-trip after failed probe")
	}
	if err := g.Attempt(func() error { return nil }); !errors.Is(err, ErrBackendCooling) {
		t.Errorf("Attempt() = %v, want ErrBackendCooling", err)
	}
}

func TestDialGuard_SuccessResetsFailureCount(t *testing.T) {
	g := NewDialGuard(DialGuardConfig{Name: "test", Threshold: 3})

	for range 2 {
		_ = g.Attempt(func() error { return errDial })
	}
	if g.Failures() != 2 {
		t.Fatalf("Failures() = %d, want 2", g.Failures())
	}
	if err := g.Attempt(func() error { return nil }); err != nil {
		t.Fatalf("Attempt() = %v, want nil", err)
	}
	if g.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", g.Failures())
	}
}
