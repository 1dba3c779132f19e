package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeInput is a test double that returns scripted raw levels.
// It is safe for concurrent use.
type FakeInput struct {
	mu sync.Mutex

	// Values contains scripted raw levels to return.
	// Each call to Value() consumes the next one.
	Values []int

	// Func, if set, computes the level on every read and overrides Values.
	Func func() int

	// ReadError, if set, will be returned by Value()
	ReadError error

	index int
	reads int
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(values ...int) *FakeInput {
	return &FakeInput{Values: values}
}

// Value returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if f.Func != nil {
		return f.Func(), nil
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}

	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the scripted levels with a single constant level.
func (f *FakeInput) Set(v int) {
	f.mu.Lock()
	f.Values = []int{v}
	f.index = 0
	f.mu.Unlock()
}

// Reads returns how many times Value was called.
func (f *FakeInput) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Reset rewinds the scripted levels.
func (f *FakeInput) Reset() {
	f.mu.Lock()
	f.index = 0
	f.reads = 0
	f.mu.Unlock()
}

// Write is a single recorded write to a FakeOutput.
type Write struct {
	Value int
	At    time.Time
}

// FakeOutput records every write with a timestamp.
// It is safe for concurrent use.
type FakeOutput struct {
	mu     sync.Mutex
	value  int
	writes []Write

	// WriteError, if set, will be returned by SetValue()
	WriteError error

	// Now stamps writes; defaults to time.Now.
	Now func() time.Time
}

// NewFakeOutput creates a FakeOutput that starts low.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{Now: time.Now}
}

// SetValue records the write.
func (f *FakeOutput) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WriteError != nil {
		return f.WriteError
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	f.value = v
	f.writes = append(f.writes, Write{Value: v, At: now()})
	return nil
}

// Value returns the last written level.
func (f *FakeOutput) Value() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Writes returns a copy of all recorded writes.
func (f *FakeOutput) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

// HighDurations returns the length of every completed high period,
// measured from the first high write to the next low write.
func (f *FakeOutput) HighDurations() []time.Duration {
	var (
		out  []time.Duration
		high bool
		rise time.Time
	)
	for _, w := range f.Writes() {
		switch {
		case w.Value == High && !high:
			high, rise = true, w.At
		case w.Value == Low && high:
			high = false
			out = append(out, w.At.Sub(rise))
		}
	}
	return out
}
