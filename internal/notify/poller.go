package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/status"
)

// ReadingsSource returns an edge's current readings.
type ReadingsSource interface {
	Readings(ctx context.Context) (dispatch.Readings, error)
}

// Poller periodically reads an edge and feeds its hazard verdicts to the
// notifier. Unlike pushed alerts, polling also sees episodes end.
type Poller struct {
	Edge     ReadingsSource
	Notifier *Notifier
	Interval time.Duration
	Tracker  *status.Tracker
	Log      *zap.Logger

	now     func() time.Time
	failing bool
}

// Run polls immediately and then every Interval until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Step(ctx)
		}
	}
}

// Step polls once. An unreachable edge leaves every episode flag as it is.
func (p *Poller) Step(ctx context.Context) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}

	r, err := p.Edge.Readings(ctx)
	if err != nil {
		if !p.failing {
			log.Warn("edge poll failed", zap.Error(err))
		}
		p.failing = true
		return
	}
	if p.failing {
		log.Info("edge poll recovered")
		p.failing = false
	}

	at := now()
	if r.DistanceCM != nil && p.Tracker != nil {
		p.Tracker.SetDistance(*r.DistanceCM, at)
	}

	for hazard, detected := range r.Detected() {
		if detected {
			_, err = p.Notifier.Detected(ctx, Alert{
				Hazard:     hazard,
				DistanceCM: r.DistanceCM,
				Value:      r.HazardValue,
				DetectedAt: at,
				Source:     SourcePoll,
			})
		} else {
			_, err = p.Notifier.Cleared(ctx, hazard)
		}
		if err != nil {
			log.Error("update episode", zap.String("hazard", hazard), zap.Error(err))
		}
	}
}
