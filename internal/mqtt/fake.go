package mqtt

import (
	"sync"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
)

// FakePublisher records published events for test assertions.
// Safe for use by concurrent monitor loops.
type FakePublisher struct {
	mu sync.Mutex

	// Episodes contains all episode events that were published.
	Episodes []EpisodeEvent

	// Payloads contains the JSON payloads for episode events.
	Payloads [][]byte

	// Telemetry contains all distance reports that were published.
	Telemetry []dispatch.Telemetry

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishEpisode and PublishTelemetry.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishEpisode records the episode event.
func (f *FakePublisher) PublishEpisode(event EpisodeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	f.Episodes = append(f.Episodes, event)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishTelemetry records the distance report.
func (f *FakePublisher) PublishTelemetry(t dispatch.Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.Telemetry = append(f.Telemetry, t)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// EpisodeEvents returns a copy of the recorded episode events.
func (f *FakePublisher) EpisodeEvents() []EpisodeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EpisodeEvent(nil), f.Episodes...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Episodes = nil
	f.Payloads = nil
	f.Telemetry = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
