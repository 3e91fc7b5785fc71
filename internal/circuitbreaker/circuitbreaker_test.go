package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

var errBackend = errors.New("backend down")

func ok(context.Context) error   { return nil }
func fail(context.Context) error { return errBackend }

type transition struct{ from, to State }

func newTestBreaker(mock *clock.Mock, seen *[]transition) *CircuitBreaker {
	return New(Config{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         100 * time.Millisecond,
		Clock:            mock,
		OnStateChange: func(_ string, from, to State) {
			if seen != nil {
				*seen = append(*seen, transition{from, to})
			}
		},
	})
}

func trip(cb *CircuitBreaker) {
	for i := 0; i < 3; i++ {
		cb.Do(context.Background(), fail)
	}
}

func TestDo_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(clock.NewMock(), nil)
	ctx := context.Background()

	cb.Do(ctx, fail)
	cb.Do(ctx, fail)
	cb.Do(ctx, ok) // resets the streak
	cb.Do(ctx, fail)
	cb.Do(ctx, fail)
	if cb.State() != StateClosed {
		t.Fatalf("non-consecutive failures should not open, state %v", cb.State())
	}

	if err := cb.Do(ctx, fail); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	called := false
	err := cb.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("function must not run while the circuit is open")
	}
}

func TestDo_Recovery(t *testing.T) {
	tests := []struct {
		name      string
		probes    []func(context.Context) error
		wantState State
		wantTrail []transition
	}{
		{
			name:      "closes after enough successes",
			probes:    []func(context.Context) error{ok, ok},
			wantState: StateClosed,
			wantTrail: []transition{{StateClosed, StateOpen}, {StateOpen, StateHalfOpen}, {StateHalfOpen, StateClosed}},
		},
		{
			name:      "stays half-open on one success",
			probes:    []func(context.Context) error{ok},
			wantState: StateHalfOpen,
			wantTrail: []transition{{StateClosed, StateOpen}, {StateOpen, StateHalfOpen}},
		},
		{
			name:      "reopens on half-open failure",
			probes:    []func(context.Context) error{fail},
			wantState: StateOpen,
			wantTrail: []transition{{StateClosed, StateOpen}, {StateOpen, StateHalfOpen}, {StateHalfOpen, StateOpen}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := clock.NewMock()
			var trail []transition
			cb := newTestBreaker(mock, &trail)

			trip(cb)
			mock.Add(150 * time.Millisecond)
			for _, probe := range tt.probes {
				cb.Do(context.Background(), probe)
			}

			if cb.State() != tt.wantState {
				t.Fatalf("expected %v, got %v", tt.wantState, cb.State())
			}
			if len(trail) != len(tt.wantTrail) {
				t.Fatalf("expected transitions %v, got %v", tt.wantTrail, trail)
			}
			for i := range trail {
				if trail[i] != tt.wantTrail[i] {
					t.Fatalf("expected transitions %v, got %v", tt.wantTrail, trail)
				}
			}
		})
	}
}

func TestDo_StaysOpenDuringCooldown(t *testing.T) {
	mock := clock.NewMock()
	cb := newTestBreaker(mock, nil)
	trip(cb)

	mock.Add(50 * time.Millisecond)
	if err := cb.Do(context.Background(), ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen inside cooldown, got %v", err)
	}
}

func TestDo_IgnoredErrors(t *testing.T) {
	errQuota := errors.New("quota")
	cb := New(Config{
		Name:             "test-ignore",
		FailureThreshold: 1,
		Clock:            clock.NewMock(),
		Ignore:           func(err error) bool { return errors.Is(err, errQuota) },
	})

	for i := 0; i < 5; i++ {
		err := cb.Do(context.Background(), func(context.Context) error { return errQuota })
		if !errors.Is(err, errQuota) {
			t.Fatalf("ignored error should still be returned, got %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("ignored errors must not trip the breaker, state %v", cb.State())
	}
}

func TestDo_CallerCancellationNotCounted(t *testing.T) {
	cb := New(Config{Name: "test-cancel", FailureThreshold: 1, Clock: clock.NewMock()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := cb.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("caller cancellation must not trip the breaker, state %v", cb.State())
	}

	dctx, dcancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer dcancel()
	<-dctx.Done()
	cb.Do(dctx, func(ctx context.Context) error { return ctx.Err() })
	if cb.State() != StateOpen {
		t.Errorf("deadline exceeded should count as a failure, state %v", cb.State())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(9):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
