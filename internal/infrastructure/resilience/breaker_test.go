package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("unavailable")

func fail() (string, error)    { return "", errUnavailable }
func succeed() (string, error) { return "ok", nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		calls         []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{Window: time.Minute, Cooldown: time.Minute},
			calls:         []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				Window:   time.Minute,
				Cooldown: time.Minute,
				Trip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			},
			calls:         []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success resets the failure streak",
			settings: Settings{
				Window:   time.Minute,
				Cooldown: time.Minute,
				Trip: func(counts Counts) bool {
					return counts.ConsecutiveFailures >= 2
				},
			},
			calls:         []bool{false, true, false},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", tt.settings)

			for _, success := range tt.calls {
				op := fail
				if success {
					op = succeed
				}
				_, _ = Do(breaker, op)
			}

			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{Window: time.Minute, Cooldown: time.Minute})

	v, err := Do(breaker, succeed)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	counts := breaker.Counts()
	assert.Equal(t, uint32(1), counts.Calls)
	assert.Equal(t, uint32(1), counts.Successes)
	assert.Equal(t, uint32(1), counts.ConsecutiveSuccesses)

	_, err = Do(breaker, fail)
	assert.ErrorIs(t, err, errUnavailable)

	counts = breaker.Counts()
	assert.Equal(t, uint32(2), counts.Calls)
	assert.Equal(t, uint32(1), counts.Failures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	rejected := errors.New("rejected")
	breaker := New("test", Settings{
		Trip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		IsFailure: func(err error) bool {
			return errors.Is(err, errUnavailable)
		},
	})

	_, err := Do(breaker, func() (int, error) { return 0, rejected })
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, Counts{}, breaker.Counts())

	_, _ = Do(breaker, fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerOpenState(t *testing.T) {
	breaker := New("test", Settings{
		Window:   time.Minute,
		Cooldown: time.Minute,
		Trip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, fail)
	}
	assert.Equal(t, StateOpen, breaker.State())

	called := false
	_, err := Do(breaker, func() (string, error) {
		called = true
		return "ok", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenState(t *testing.T) {
	breaker := New("test", Settings{
		MaxProbes: 2,
		Window:    time.Minute,
		Cooldown:  50 * time.Millisecond,
		Trip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, fail)
	}
	assert.Equal(t, StateOpen, breaker.State())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	for i := 0; i < 2; i++ {
		_, err := Do(breaker, succeed)
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := New("test", Settings{
		Cooldown: 10 * time.Millisecond,
		Trip:     func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	_, _ = Do(breaker, fail)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, breaker.State())

	_, _ = Do(breaker, fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string

	breaker := New("connect", Settings{
		Window:   time.Minute,
		Cooldown: 10 * time.Millisecond,
		Trip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	for i := 0; i < 2; i++ {
		_, _ = Do(breaker, fail)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, breaker.State())

	assert.Equal(t, []string{"connect:closed->open", "connect:open->half-open"}, transitions)
}

func TestBreakerRepanics(t *testing.T) {
	breaker := New("test", Settings{Trip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 }})

	assert.Panics(t, func() {
		_, _ = Do(breaker, func() (int, error) { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}
