// Package actuator owns the buzzer and LED outputs. Every write to an output
// goes through a per-output lock, so a timed pulse and a manual level change
// never interleave their writes.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/gpio"
)

// Output names a driven device.
type Output string

const (
	Buzzer Output = "buzzer"
	LED    Output = "led"
)

// Level is the logical state of an output.
type Level string

const (
	On  Level = "on"
	Off Level = "off"
)

// ParseLevel accepts "on" or "off".
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case On, Off:
		return Level(s), nil
	}
	return "", fmt.Errorf("invalid level %q", s)
}

// State is a snapshot of both outputs.
type State struct {
	Buzzer Level
	LED    Level
}

// ErrUnknownOutput is returned for an output the controller does not own.
var ErrUnknownOutput = errors.New("actuator: unknown output")

// line serializes access to one output. The channel is a one-slot semaphore
// so waiting callers can give up when their context ends.
type line struct {
	sem chan struct{}
	pin gpio.Output

	mu    sync.Mutex
	level Level
}

func (l *line) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *line) release() {
	<-l.sem
}

func (l *line) write(level Level) error {
	v := gpio.Low
	if level == On {
		v = gpio.High
	}
	if err := l.pin.SetValue(v); err != nil {
		return err
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
	return nil
}

func (l *line) current() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Observer is notified after every level change. It must not block.
type Observer func(out Output, level Level)

// Controller drives the outputs.
type Controller struct {
	lines    map[Output]*line
	observer Observer
}

// New creates a Controller for the buzzer and LED lines and drives both low.
func New(buzzer, led gpio.Output) (*Controller, error) {
	c := &Controller{
		lines: map[Output]*line{
			Buzzer: {sem: make(chan struct{}, 1), pin: buzzer, level: Off},
			LED:    {sem: make(chan struct{}, 1), pin: led, level: Off},
		},
	}
	for out, l := range c.lines {
		if err := l.write(Off); err != nil {
			return nil, fmt.Errorf("init %s: %w", out, err)
		}
	}
	return c, nil
}

// SetObserver registers a callback for level changes. Call before use.
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

func (c *Controller) line(out Output) (*line, error) {
	l, ok := c.lines[out]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, out)
	}
	return l, nil
}

func (c *Controller) set(out Output, l *line, level Level) error {
	if err := l.write(level); err != nil {
		return fmt.Errorf("set %s %s: %w", out, level, err)
	}
	if c.observer != nil {
		c.observer(out, level)
	}
	return nil
}

// Pulse drives out high for d, then low. Pulses on the same output queue
// behind each other. The output is driven low when d elapses and also when
// ctx ends mid-pulse; in that case ctx.Err() is returned.
func (c *Controller) Pulse(ctx context.Context, out Output, d time.Duration) (err error) {
	l, err := c.line(out)
	if err != nil {
		return err
	}
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()

	if err := c.set(out, l, On); err != nil {
		return err
	}
	defer func() {
		if lowErr := c.set(out, l, Off); lowErr != nil && err == nil {
			err = lowErr
		}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetLevel sets out immediately once any in-flight pulse on it has finished.
// Setting the current level again is a no-op write.
func (c *Controller) SetLevel(ctx context.Context, out Output, level Level) error {
	l, err := c.line(out)
	if err != nil {
		return err
	}
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return c.set(out, l, level)
}

// State returns the last written level of every output. It does not wait
// for in-flight pulses.
func (c *Controller) State() State {
	return State{
		Buzzer: c.lines[Buzzer].current(),
		LED:    c.lines[LED].current(),
	}
}

// Close waits for in-flight operations (bounded by ctx) and drives every
// output low.
func (c *Controller) Close(ctx context.Context) error {
	var errs []error
	for _, out := range []Output{Buzzer, LED} {
		l := c.lines[out]
		if err := l.acquire(ctx); err != nil {
			// Give up waiting but still force the line low.
			if werr := l.write(Off); werr != nil {
				errs = append(errs, fmt.Errorf("force %s low: %w", out, werr))
			}
			continue
		}
		if err := c.set(out, l, Off); err != nil {
			errs = append(errs, err)
		}
		l.release()
	}
	return errors.Join(errs...)
}
