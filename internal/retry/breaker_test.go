package retry

import (
	"fmt"
	"testing"
	"time"

	gerrors "oscgate/internal/errors"
)

var errRefused = fmt.Errorf("connection refused")

func fail() error { return errRefused }
func ok() error   { return nil }

func TestBreaker_NormalOperation(t *testing.T) {
	b := NewBreaker(nil)

	if err := b.Do(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", b.CurrentState())
	}
}

func TestBreaker_PassesThroughError(t *testing.T) {
	b := NewBreaker(nil)
	if err := b.Do(fail); err != errRefused {
		t.Errorf("Do() = %v, want the fn's own error", err)
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 3, Cooldown: time.Second})

	for i := 0; i < 3; i++ {
		b.Do(fail) //nolint:errcheck
	}

	if b.CurrentState() != StateOpen {
		t.Errorf("expected open after 3 failures, got %s", b.CurrentState())
	}
	if b.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", b.Failures())
	}
}

func TestBreaker_RejectsWhenOpen(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	b.Do(fail) //nolint:errcheck

	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})

	if !gerrors.Is(err, gerrors.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if !gerrors.IsPeerUnreachable(err) {
		t.Error("open breaker should classify as peer unreachable")
	}
	if called {
		t.Error("fn should not have been called when the breaker is open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 1, Cooldown: 10 * time.Millisecond})
	b.Do(fail) //nolint:errcheck

	time.Sleep(20 * time.Millisecond)

	if err := b.Do(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.CurrentState() != StateClosed {
		t.Errorf("expected closed after a successful probe, got %s", b.CurrentState())
	}
}

func TestBreaker_HalfOpenFailure(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 5, Cooldown: 10 * time.Millisecond})
	for i := 0; i < 5; i++ {
		b.Do(fail) //nolint:errcheck
	}
	time.Sleep(20 * time.Millisecond)

	// A single failed probe reopens regardless of the threshold.
	b.Do(fail) //nolint:errcheck
	if b.CurrentState() != StateOpen {
		t.Errorf("expected open after half-open failure, got %s", b.CurrentState())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	b.Do(fail) //nolint:errcheck

	b.Reset()
	if b.CurrentState() != StateClosed {
		t.Errorf("expected closed after reset, got %s", b.CurrentState())
	}
	if b.Failures() != 0 {
		t.Errorf("expected 0 failures after reset, got %d", b.Failures())
	}
}

func TestBreaker_StateChange(t *testing.T) {
	var transitions []string
	b := NewBreaker(&BreakerConfig{
		Threshold: 1,
		Cooldown:  10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s→%s", from, to))
		},
	})

	b.Do(fail) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)
	b.Do(ok) //nolint:errcheck

	want := []string{"closed→open", "open→half-open", "half-open→closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(&BreakerConfig{Threshold: 3, Cooldown: time.Second})

	b.Do(fail) //nolint:errcheck
	b.Do(fail) //nolint:errcheck
	b.Do(ok)   //nolint:errcheck
	b.Do(fail) //nolint:errcheck

	if b.CurrentState() != StateClosed {
		t.Errorf("expected closed, got %s", b.CurrentState())
	}
	if b.Failures() != 1 {
		t.Errorf("failures = %d, want 1", b.Failures())
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(&BreakerConfig{})
	if b.threshold != defaultThreshold || b.cooldown != defaultCooldown {
		t.Errorf("defaults = (%d, %v)", b.threshold, b.cooldown)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
