package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
)

// recordingChannel records every notification and clear.
type recordingChannel struct {
	name string
	err  error

	mu      sync.Mutex
	alerts  []Alert
	cleared []string
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recordingChannel) notified() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// clearingChannel also implements Clearer.
type clearingChannel struct {
	recordingChannel
}

func (c *clearingChannel) Clear(_ context.Context, hazard string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, hazard)
	return nil
}

// brokenStore fails every operation.
type brokenStore struct{}

var errStoreDown = errors.New("connection refused")

func (brokenStore) Mark(context.Context, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (brokenStore) Clear(context.Context, string) (bool, error) { return false, errStoreDown }
func (brokenStore) Active(context.Context, string) (bool, error) { return false, errStoreDown }

// fakeEdge stands in for EdgeClient.
type fakeEdge struct {
	mu       sync.Mutex
	readings []dispatch.Readings
	err      error
	polls    int
	buzzes   int
	leds     []bool
	calls    []string
	ctrlErr  error
}

func (f *fakeEdge) Readings(context.Context) (dispatch.Readings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if f.err != nil {
		return dispatch.Readings{}, f.err
	}
	if i >= len(f.readings) {
		i = len(f.readings) - 1
	}
	return f.readings[i], nil
}

func (f *fakeEdge) PulseBuzzer(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buzzes++
	f.calls = append(f.calls, "buzzer")
	return f.ctrlErr
}

func (f *fakeEdge) SetLED(_ context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leds = append(f.leds, on)
	f.calls = append(f.calls, "led")
	return f.ctrlErr
}

// waitingChannel blocks until released or its context ends, and reports
// which happened on done.
type waitingChannel struct {
	release chan struct{}
	done    chan error
}

func newWaitingChannel() *waitingChannel {
	return &waitingChannel{release: make(chan struct{}), done: make(chan error, 1)}
}

func (w *waitingChannel) Name() string { return "waiting" }

func (w *waitingChannel) Notify(ctx context.Context, _ Alert) error {
	select {
	case <-w.release:
		w.done <- nil
		return nil
	case <-ctx.Done():
		w.done <- ctx.Err()
		return ctx.Err()
	}
}
