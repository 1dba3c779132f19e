// Package monitor runs the per-sensor polling loops that turn raw samples
// into hazard episodes, drive the buzzer, and dispatch alerts.
package monitor

import (
	"context"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/actuator"
	"github.com/sweeney/hazard-sentinel/internal/dispatch"
)

// Pulser drives a timed actuator pulse.
type Pulser interface {
	Pulse(ctx context.Context, out actuator.Output, d time.Duration) error
}

// Sender delivers one alert.
type Sender interface {
	Send(ctx context.Context, ev dispatch.AlertEvent) dispatch.Result
}

// TelemetrySender delivers one distance report.
type TelemetrySender interface {
	SendTelemetry(ctx context.Context, t dispatch.Telemetry) error
}

// Ranger measures distance in centimetres.
type Ranger interface {
	Measure(ctx context.Context) (float64, error)
}

// Recorder keeps undelivered alerts.
type Recorder interface {
	Record(ctx context.Context, ev dispatch.AlertEvent, res dispatch.Result) error
}

// journalTimeout bounds the fallback write, which may run after the loop's
// context has been cancelled.
const journalTimeout = 5 * time.Second
