package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/hazard-sentinel/internal/journal"
)

// JournalStore is the journal as seen by the replayer.
type JournalStore interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
	Remove(ctx context.Context, eventID string) error
}

// replayBatch bounds the alerts resent per pass.
const replayBatch = 20

// Replayer periodically resends journaled alerts and removes the ones the
// observer accepts. It stops a pass at the first failure, since the observer
// is most likely still unreachable.
type Replayer struct {
	Journal  JournalStore
	Sender   Sender
	Interval time.Duration
	// MaxAge drops alerts detected longer ago than this without sending
	// them. The observer would treat a late alert as a new episode. Zero
	// replays every alert.
	MaxAge time.Duration
	Log    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run replays every Interval until ctx ends.
func (r *Replayer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step performs one replay pass and returns how many alerts were delivered.
func (r *Replayer) Step(ctx context.Context) int {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	entries, err := r.Journal.List(ctx, replayBatch)
	if err != nil {
		log.Error("read journal", zap.Error(err))
		return 0
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	delivered, expired := 0, 0
	for _, e := range entries {
		if age := now().Sub(e.Event.DetectedAt); r.MaxAge > 0 && age > r.MaxAge {
			if err := r.Journal.Remove(ctx, e.Event.ID); err != nil {
				log.Error("remove stale alert", zap.String("event_id", e.Event.ID), zap.Error(err))
				break
			}
			log.Warn("dropped stale journaled alert",
				zap.String("event_id", e.Event.ID),
				zap.String("sensor", e.Event.SensorID),
				zap.Duration("age", age),
			)
			expired++
			continue
		}
		res := r.Sender.Send(ctx, e.Event)
		if !res.Delivered {
			log.Debug("replay deferred", zap.String("event_id", e.Event.ID), zap.String("reason", res.Reason))
			break
		}
		if err := r.Journal.Remove(ctx, e.Event.ID); err != nil {
			log.Error("remove replayed alert", zap.String("event_id", e.Event.ID), zap.Error(err))
			break
		}
		delivered++
	}
	if delivered > 0 {
		log.Info("replayed journaled alerts", zap.Int("delivered", delivered), zap.Int("pending", len(entries)-delivered-expired))
	}
	return delivered
}
