package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/metrics"
	"github.com/sweeney/hazard-sentinel/internal/mqtt"
	"github.com/sweeney/hazard-sentinel/internal/status"
)

// Telemetry reports the measured distance to the observer at a fixed
// interval, independently of any hazard episode.
type Telemetry struct {
	SensorID  string
	Interval  time.Duration
	Ranger    Ranger
	Sender    TelemetrySender
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Log       *zap.Logger
	Metrics   *metrics.Metrics

	now func() time.Time
}

// Run reports immediately and then every Interval until ctx ends.
func (t *Telemetry) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	t.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Step(ctx)
		}
	}
}

// Step measures once and reports the result. A failed measurement is
// skipped; the next interval tries again.
func (t *Telemetry) Step(ctx context.Context) {
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	log := t.Log
	if log == nil {
		log = zap.NewNop()
	}

	d, err := t.Ranger.Measure(ctx)
	if err != nil {
		t.Metrics.Distance(0, false)
		log.Debug("telemetry measurement skipped", zap.Error(err))
		return
	}
	t.Metrics.Distance(d, true)

	report := dispatch.Telemetry{SensorID: t.SensorID, DistanceCM: d, MeasuredAt: now().UTC()}
	if t.Tracker != nil {
		t.Tracker.SetDistance(d, report.MeasuredAt)
	}
	if t.Publisher != nil {
		if err := t.Publisher.PublishTelemetry(report); err != nil {
			log.Debug("publish telemetry failed", zap.Error(err))
		}
	}
	if t.Sender != nil {
		if err := t.Sender.SendTelemetry(ctx, report); err != nil {
			log.Warn("telemetry not delivered", zap.Float64("distance_cm", d), zap.Error(err))
			return
		}
		log.Debug("telemetry sent", zap.Float64("distance_cm", d))
	}
}
