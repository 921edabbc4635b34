package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(settings Settings) (*Breaker, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	b := New("test", settings)
	b.now = c.now
	b.expiry = c.now().Add(b.settings.Interval)
	return b, c
}

func call(b *Breaker, success bool) error {
	_, err := Execute(b, func() (string, error) {
		if success {
			return "ok", nil
		}
		return "", errUpstream
	})
	return err
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		requests      []bool // true = success, false = failure
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			settings:      Settings{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute},
			requests:      []bool{true, true, true},
			expectedState: StateClosed,
		},
		{
			name: "opens after consecutive failures",
			settings: Settings{
				ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
			},
			requests:      []bool{false, false, false},
			expectedState: StateOpen,
		},
		{
			name: "success resets consecutive failures",
			settings: Settings{
				ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
			},
			requests:      []bool{false, false, true, false, false},
			expectedState: StateClosed,
		},
		{
			name: "opens on failure ratio",
			settings: Settings{
				ReadyToTrip: func(counts Counts) bool {
					return counts.Requests >= 4 && counts.FailureRatio() > 0.5
				},
			},
			requests:      []bool{true, false, false, false},
			expectedState: StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(tt.settings)
			for _, success := range tt.requests {
				_ = call(b, success)
			}
			assert.Equal(t, tt.expectedState, b.State())
		})
	}
}

func TestBreakerOpenRejects(t *testing.T) {
	b, _ := newTestBreaker(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	require.ErrorIs(t, call(b, false), errUpstream)

	ran := false
	_, err := Execute(b, func() (int, error) {
		ran = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, c := newTestBreaker(Settings{
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = call(b, false)
	require.Equal(t, StateOpen, b.State())

	c.advance(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, call(b, true))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, call(b, true))
	assert.Equal(t, StateClosed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, c := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	_ = call(b, false)
	c.advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = call(b, false)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerIntervalClearsCounts(t *testing.T) {
	b, c := newTestBreaker(Settings{
		Interval:    10 * time.Second,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 3 },
	})
	_ = call(b, false)
	_ = call(b, false)
	assert.Equal(t, uint32(2), b.Counts().ConsecutiveFailures)

	c.advance(11 * time.Second)
	_ = call(b, false)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(1), b.Counts().ConsecutiveFailures)
}

func TestBreakerIsSuccessful(t *testing.T) {
	errNotFound := errors.New("not found")
	b, _ := newTestBreaker(Settings{
		ReadyToTrip:  func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errNotFound) },
	})

	_, err := Execute(b, func() (struct{}, error) { return struct{}{}, errNotFound })
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})

	assert.Panics(t, func() {
		_, _ = Execute(b, func() (int, error) { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}
