// Package logic contains pure hazard-detection logic.
// This package has NO external dependencies (no GPIO, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Kind identifies the sensing modality of a reading.
type Kind string

const (
	KindDistance Kind = "DISTANCE"
	KindBinary   Kind = "BINARY"
	KindAnalog   Kind = "ANALOG"
)

// Reading is a single sensor sample. It is a value type and never mutated
// after it is produced.
type Reading struct {
	Timestamp time.Time
	Kind      Kind
	Value     float64
	// Hazard is the source's verdict for this sample.
	Hazard bool
}

// Transition is what a single poll did to the hazard episode.
type Transition string

const (
	TransitionNone      Transition = ""
	TransitionStarted   Transition = "STARTED"
	TransitionConfirmed Transition = "CONFIRMED"
	TransitionCleared   Transition = "CLEARED"
)

// Episode is one continuous interval during which a hazard is sensed.
type Episode struct {
	SensorID   string
	StartedAt  time.Time
	LastSeenAt time.Time
	Confirmed  bool
}

// Duration returns how long the episode has been observed.
func (e Episode) Duration() time.Duration {
	return e.LastSeenAt.Sub(e.StartedAt)
}

// EpisodeCounts tracks episode transitions since startup.
type EpisodeCounts struct {
	Started   int
	Confirmed int
	Cleared   int
}

// MonitorState is the per-sensor monitor state.
type MonitorState string

const (
	StateIdle     MonitorState = "IDLE"
	StateWatching MonitorState = "WATCHING"
	StateAlerting MonitorState = "ALERTING"
)

// NextState applies a debouncer transition to the monitor state machine:
// IDLE -> WATCHING on STARTED, -> ALERTING on CONFIRMED, -> IDLE on CLEARED.
func NextState(cur MonitorState, tr Transition) MonitorState {
	switch tr {
	case TransitionStarted:
		return StateWatching
	case TransitionConfirmed:
		return StateAlerting
	case TransitionCleared:
		return StateIdle
	}
	if cur == "" {
		return StateIdle
	}
	return cur
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
