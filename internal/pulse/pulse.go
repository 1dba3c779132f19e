// Package pulse measures distance with an ultrasonic time-of-flight sensor
// (HC-SR04 style): a short trigger pulse, then the width of the echo pulse.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/gpio"
)

// SpeedOfSoundCmPerS is the speed of sound in air at roughly 20°C.
const SpeedOfSoundCmPerS = 34300.0

// TriggerWidth is how long the trigger line is held high.
const TriggerWidth = 10 * time.Microsecond

// DefaultTimeout bounds each echo edge wait. The sensor's maximum range
// (~4m) corresponds to an echo of about 23ms.
const DefaultTimeout = 40 * time.Millisecond

// ErrMeasurementTimeout is returned when an echo edge never arrives.
var ErrMeasurementTimeout = errors.New("pulse: echo timeout")

// Timer owns a trigger/echo line pair. Concurrent Measure calls are
// serialized so two callers never interleave trigger pulses.
type Timer struct {
	mu      sync.Mutex
	trigger gpio.Output
	echo    gpio.Input
	timeout time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// Option customizes a Timer.
type Option func(*Timer)

// WithTimeout sets the per-edge wait bound.
func WithTimeout(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithClock replaces the wall clock and sleep function. Used by tests to
// simulate echo timing deterministically.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(t *Timer) {
		t.now = now
		t.sleep = sleep
	}
}

// New creates a Timer on the given lines.
func New(trigger gpio.Output, echo gpio.Input, opts ...Option) *Timer {
	t := &Timer{
		trigger: trigger,
		echo:    echo,
		timeout: DefaultTimeout,
		now:     time.Now,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Measure fires one trigger pulse and returns the distance in centimetres,
// rounded to 0.01.
func (t *Timer) Measure(ctx context.Context) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	elapsed, err := t.echoWidth()
	if err != nil {
		return 0, err
	}
	return Distance(elapsed), nil
}

func (t *Timer) echoWidth() (time.Duration, error) {
	if err := t.trigger.SetValue(gpio.High); err != nil {
		return 0, fmt.Errorf("trigger high: %w", err)
	}
	t.sleep(TriggerWidth)
	if err := t.trigger.SetValue(gpio.Low); err != nil {
		return 0, fmt.Errorf("trigger low: %w", err)
	}

	// Wait for the rising edge; start tracks the last instant the line was low.
	begin := t.now()
	start := begin
	for {
		v, err := t.echo.Value()
		if err != nil {
			return 0, fmt.Errorf("read echo: %w", err)
		}
		if v == gpio.High {
			break
		}
		start = t.now()
		if start.Sub(begin) > t.timeout {
			return 0, fmt.Errorf("waiting for echo start: %w", ErrMeasurementTimeout)
		}
	}

	// Wait for the falling edge; stop tracks the last instant the line was high.
	stop := start
	for {
		v, err := t.echo.Value()
		if err != nil {
			return 0, fmt.Errorf("read echo: %w", err)
		}
		if v == gpio.Low {
			break
		}
		stop = t.now()
		if stop.Sub(start) > t.timeout {
			return 0, fmt.Errorf("waiting for echo end: %w", ErrMeasurementTimeout)
		}
	}

	return stop.Sub(start), nil
}

// Distance converts a round-trip echo time to centimetres, rounded to 0.01.
func Distance(roundTrip time.Duration) float64 {
	cm := roundTrip.Seconds() * SpeedOfSoundCmPerS / 2
	return math.Round(cm*100) / 100
}
