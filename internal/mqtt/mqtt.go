// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/logic"
)

// TopicRoot prefixes every topic; the node name follows it.
const TopicRoot = "hazard"

// Topics holds the per-node topic names.
type Topics struct {
	Episodes  string
	Telemetry string
	System    string
}

// TopicsFor returns the topics for node, e.g. hazard/porch/alerts.
func TopicsFor(node string) Topics {
	base := TopicRoot + "/" + node
	return Topics{
		Episodes:  base + "/alerts",
		Telemetry: base + "/telemetry",
		System:    base + "/system",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishEpisode sends a hazard episode transition.
	// Returns error if publishing fails (should not crash the process).
	PublishEpisode(event EpisodeEvent) error

	// PublishTelemetry sends a distance report.
	PublishTelemetry(t dispatch.Telemetry) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// EpisodeEvent is a hazard episode transition seen by a monitor loop.
type EpisodeEvent struct {
	Timestamp  time.Time
	SensorID   string
	Hazard     string
	Transition logic.Transition
	// EventID and DistanceCM are set on confirmation.
	EventID    string
	DistanceCM *float64
	// Delivered reports whether the observer acknowledged the alert.
	Delivered *bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for episode events.
type Payload struct {
	Hazard HazardPayload `json:"hazard"`
}

// HazardPayload contains the episode details.
type HazardPayload struct {
	Timestamp  string   `json:"timestamp"`
	Event      string   `json:"event"`
	SensorID   string   `json:"sensor_id"`
	Type       string   `json:"type"`
	EventID    string   `json:"event_id,omitempty"`
	DistanceCM *float64 `json:"distance_cm,omitempty"`
	Delivered  *bool    `json:"delivered,omitempty"`
}

// FormatPayload creates the JSON payload for an episode event.
func FormatPayload(event EpisodeEvent) ([]byte, error) {
	payload := Payload{
		Hazard: HazardPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(event.Transition),
			SensorID:   event.SensorID,
			Type:       event.Hazard,
			EventID:    event.EventID,
			DistanceCM: event.DistanceCM,
			Delivered:  event.Delivered,
		},
	}
	return json.Marshal(payload)
}

// TelemetryPayload wraps a distance report.
type TelemetryPayload struct {
	Telemetry TelemetryInner `json:"telemetry"`
}

// TelemetryInner contains the distance report.
type TelemetryInner struct {
	Timestamp  string  `json:"timestamp"`
	SensorID   string  `json:"sensor_id,omitempty"`
	DistanceCM float64 `json:"distance_cm"`
}

// FormatTelemetryPayload creates the JSON payload for a distance report.
func FormatTelemetryPayload(t dispatch.Telemetry) ([]byte, error) {
	return json.Marshal(TelemetryPayload{
		Telemetry: TelemetryInner{
			Timestamp:  t.MeasuredAt.UTC().Format(time.RFC3339),
			SensorID:   t.SensorID,
			DistanceCM: t.DistanceCM,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
