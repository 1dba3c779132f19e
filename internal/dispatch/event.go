// Package dispatch delivers hazard alerts and distance telemetry to the
// observer over HTTP.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Hazard types.
const (
	HazardGas = "gas"
	HazardIR  = "ir"
)

// AlertEvent is sent once per confirmed hazard episode.
type AlertEvent struct {
	ID         string    `json:"event_id"`
	SensorID   string    `json:"sensor_id"`
	Hazard     string    `json:"hazard"`
	DistanceCM *float64  `json:"distance_cm,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewAlertEvent builds an event with a fresh ID. distance may be nil when no
// measurement was available.
func NewAlertEvent(sensorID, hazard string, distance *float64, detectedAt time.Time) AlertEvent {
	return AlertEvent{
		ID:         uuid.NewString(),
		SensorID:   sensorID,
		Hazard:     hazard,
		DistanceCM: distance,
		DetectedAt: detectedAt.UTC(),
	}
}

// Path returns the observer endpoint for the event's hazard.
func (e AlertEvent) Path() string {
	return AlertPath(e.Hazard)
}

// AlertPath maps a hazard type to its observer endpoint.
func AlertPath(hazard string) string {
	return "/" + hazard + "_alert"
}

// UnmarshalJSON also accepts the older {"distance": n} body sent by
// sensors that predate distance_cm.
func (e *AlertEvent) UnmarshalJSON(b []byte) error {
	type plain AlertEvent
	var aux struct {
		plain
		Distance *float64 `json:"distance"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = AlertEvent(aux.plain)
	if e.DistanceCM == nil {
		e.DistanceCM = aux.Distance
	}
	return nil
}

// Telemetry is a periodic distance report.
type Telemetry struct {
	SensorID   string    `json:"sensor_id,omitempty"`
	DistanceCM float64   `json:"distance_cm"`
	MeasuredAt time.Time `json:"measured_at"`
}

// UnmarshalJSON accepts the legacy {"distance": n} body as well.
func (t *Telemetry) UnmarshalJSON(b []byte) error {
	type plain Telemetry
	var aux struct {
		plain
		DistanceCM *float64 `json:"distance_cm"`
		Distance   *float64 `json:"distance"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*t = Telemetry(aux.plain)
	switch {
	case aux.DistanceCM != nil:
		t.DistanceCM = *aux.DistanceCM
	case aux.Distance != nil:
		t.DistanceCM = *aux.Distance
	default:
		return fmt.Errorf("telemetry: missing distance_cm")
	}
	return nil
}

// Result is the outcome of one Send.
type Result struct {
	Delivered bool
	Attempts  int
	// Reason explains a failed delivery.
	Reason string
}

// Delivered reports a successful delivery.
func Delivered(attempts int) Result {
	return Result{Delivered: true, Attempts: attempts}
}

// Failed reports a delivery that exhausted its attempts.
func Failed(attempts int, reason string) Result {
	return Result{Attempts: attempts, Reason: reason}
}

func (r Result) String() string {
	if r.Delivered {
		return fmt.Sprintf("delivered after %d attempt(s)", r.Attempts)
	}
	return fmt.Sprintf("failed after %d attempt(s): %s", r.Attempts, r.Reason)
}
