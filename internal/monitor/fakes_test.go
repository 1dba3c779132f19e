package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/journal"
	"github.com/sweeney/hazard-sentinel/internal/logic"
	"github.com/sweeney/hazard-sentinel/internal/pulse"
)

// scriptSource replays a fixed sequence of verdicts; the last one repeats.
// An entry in errs makes that sample (0-based) fail.
type scriptSource struct {
	mu     sync.Mutex
	values []bool
	errs   map[int]error
	n      int
}

func newScript(values ...bool) *scriptSource {
	return &scriptSource{values: values, errs: map[int]error{}}
}

func (s *scriptSource) Sample(ctx context.Context) (logic.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.n
	s.n++
	if err := s.errs[i]; err != nil {
		return logic.Reading{}, err
	}
	v := false
	if len(s.values) > 0 {
		v = s.values[len(s.values)-1]
		if i < len(s.values) {
			v = s.values[i]
		}
	}
	val := 0.0
	if v {
		val = 1
	}
	return logic.Reading{Timestamp: time.Now(), Kind: logic.KindBinary, Value: val, Hazard: v}, nil
}

// repeat returns n copies of v.
func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// fakeSender records events and answers with results in order; the last
// result repeats.
type fakeSender struct {
	mu      sync.Mutex
	events  []dispatch.AlertEvent
	results []dispatch.Result
}

func (f *fakeSender) Send(ctx context.Context, ev dispatch.AlertEvent) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.results) == 0 {
		return dispatch.Delivered(1)
	}
	i := len(f.events) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]
}

func (f *fakeSender) sent() []dispatch.AlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.AlertEvent(nil), f.events...)
}

// fakeRanger returns a fixed distance or error.
type fakeRanger struct {
	distance float64
	err      error
	calls    int
}

func (f *fakeRanger) Measure(ctx context.Context) (float64, error) {
	f.calls++
	return f.distance, f.err
}

var errNoEcho = errors.Join(pulse.ErrMeasurementTimeout, errors.New("echo rise"))

// fakeJournal stores entries in memory.
type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (f *fakeJournal) Record(ctx context.Context, ev dispatch.AlertEvent, res dispatch.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.entries = append(f.entries, journal.Entry{Event: ev, Attempts: res.Attempts, Reason: res.Reason})
	return nil
}

func (f *fakeJournal) List(ctx context.Context, limit int) ([]journal.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]journal.Entry(nil), f.entries[:n]...), nil
}

func (f *fakeJournal) Remove(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.Event.ID == eventID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeJournal) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// fakeTelemetrySender records reports.
type fakeTelemetrySender struct {
	mu      sync.Mutex
	reports []dispatch.Telemetry
	err     error
}

func (f *fakeTelemetrySender) SendTelemetry(ctx context.Context, t dispatch.Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, t)
	return nil
}
