// Package notify reacts to hazard alerts on the observer: it notifies once
// per hazard episode and undoes its remote actions when the episode ends.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/metrics"
)

// Alert sources.
const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// Alert is one observation that a hazard is present.
type Alert struct {
	Hazard     string
	SensorID   string
	EventID    string
	DistanceCM *float64
	Value      *float64
	DetectedAt time.Time
	Source     string
}

// FromEvent converts an alert pushed by an edge node.
func FromEvent(ev dispatch.AlertEvent) Alert {
	return Alert{
		Hazard:     ev.Hazard,
		SensorID:   ev.SensorID,
		EventID:    ev.ID,
		DistanceCM: ev.DistanceCM,
		DetectedAt: ev.DetectedAt,
		Source:     SourcePush,
	}
}

// Channel delivers the notification for a new episode.
type Channel interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// Clearer is implemented by channels that act when an episode ends.
type Clearer interface {
	Clear(ctx context.Context, hazard string) error
}

// Status is a point-in-time view of the notifier.
type Status struct {
	Active        map[string]bool
	Notifications int
	LastAlert     *Alert
}

// DefaultChannelTimeout bounds one round of channel deliveries.
const DefaultChannelTimeout = 30 * time.Second

// Notifier fires its channels once per hazard episode. The per-hazard flag
// lives in a Store so several observers, or a restarted one, agree on it.
type Notifier struct {
	store    Store
	ttl      time.Duration
	channels []Channel
	timeout  time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu   sync.Mutex
	seen map[string]struct{}
	sent int
	last *Alert
}

// New creates a notifier. ttl bounds how long a flag outlives the last
// detection. m may be nil.
func New(store Store, ttl time.Duration, channels []Channel, log *zap.Logger, m *metrics.Metrics) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		store:    store,
		ttl:      ttl,
		channels: channels,
		timeout:  DefaultChannelTimeout,
		log:      log,
		metrics:  m,
		seen:     make(map[string]struct{}),
	}
}

// SetChannelTimeout changes how long channels may take once an episode
// starts or ends. Non-positive values are ignored.
func (n *Notifier) SetChannelTimeout(d time.Duration) {
	if d > 0 {
		n.timeout = d
	}
}

// Detected records that a.Hazard is present. The first detection of an
// episode fires every channel and returns true; later ones only extend the
// episode.
func (n *Notifier) Detected(ctx context.Context, a Alert) (bool, error) {
	n.remember(a.Hazard)

	first, err := n.store.Mark(ctx, a.Hazard, n.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s episode: %w", a.Hazard, err)
	}
	if !first {
		n.log.Debug("alert within active episode suppressed",
			zap.String("hazard", a.Hazard),
			zap.String("source", a.Source),
		)
		return false, nil
	}

	n.log.Warn("hazard episode notified",
		zap.String("hazard", a.Hazard),
		zap.String("sensor", a.SensorID),
		zap.String("event_id", a.EventID),
		zap.String("source", a.Source),
	)
	n.fanOut(ctx, func(ctx context.Context, ch Channel) error { return ch.Notify(ctx, a) })

	n.mu.Lock()
	n.sent++
	n.last = &a
	n.mu.Unlock()
	return true, nil
}

// Cleared records that hazard is absent. If an episode was active it ends,
// clearing channels run and true is returned.
func (n *Notifier) Cleared(ctx context.Context, hazard string) (bool, error) {
	n.remember(hazard)

	was, err := n.store.Clear(ctx, hazard)
	if err != nil {
		return false, fmt.Errorf("clear %s episode: %w", hazard, err)
	}
	if !was {
		return false, nil
	}

	n.log.Info("hazard episode ended", zap.String("hazard", hazard))
	n.fanOut(ctx, func(ctx context.Context, ch Channel) error {
		c, ok := ch.(Clearer)
		if !ok {
			return nil
		}
		return c.Clear(ctx, hazard)
	})
	return true, nil
}

// fanOut runs fn for every channel concurrently. A failing channel does not
// stop the others. The episode change is already stored when fanOut runs, so
// the channels keep going after the caller gives up, up to the channel timeout.
func (n *Notifier) fanOut(ctx context.Context, fn func(context.Context, Channel) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	var g errgroup.Group
	for _, ch := range n.channels {
		g.Go(func() error {
			err := fn(ctx, ch)
			n.metrics.Notification(ch.Name(), err)
			if err != nil {
				n.log.Error("notification channel failed", zap.String("channel", ch.Name()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (n *Notifier) remember(hazard string) {
	n.mu.Lock()
	n.seen[hazard] = struct{}{}
	n.mu.Unlock()
}

// Status reports the episode flags of every hazard seen so far.
func (n *Notifier) Status(ctx context.Context) (Status, error) {
	n.mu.Lock()
	hazards := make([]string, 0, len(n.seen))
	for h := range n.seen {
		hazards = append(hazards, h)
	}
	st := Status{Notifications: n.sent}
	if n.last != nil {
		last := *n.last
		st.LastAlert = &last
	}
	n.mu.Unlock()

	st.Active = make(map[string]bool, len(hazards))
	for _, h := range hazards {
		active, err := n.store.Active(ctx, h)
		if err != nil {
			return Status{}, fmt.Errorf("read %s episode: %w", h, err)
		}
		st.Active[h] = active
	}
	return st, nil
}
