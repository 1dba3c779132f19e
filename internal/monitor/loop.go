package monitor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/hazard-sentinel/internal/actuator"
	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/logic"
	"github.com/sweeney/hazard-sentinel/internal/metrics"
	"github.com/sweeney/hazard-sentinel/internal/mqtt"
	"github.com/sweeney/hazard-sentinel/internal/pulse"
	"github.com/sweeney/hazard-sentinel/internal/sensor"
	"github.com/sweeney/hazard-sentinel/internal/status"
)

// Config is one sensor's loop configuration.
type Config struct {
	SensorID        string
	Hazard          string
	PollInterval    time.Duration
	SustainDuration time.Duration
	BuzzerPulse     time.Duration
}

// Deps are the collaborators of a Loop. Source, Actuators and Sender are
// required; the rest may be nil.
type Deps struct {
	Source    sensor.Source
	Actuators Pulser
	Sender    Sender
	Ranger    Ranger
	Journal   Recorder
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// Loop monitors one sensor. Polls are strictly sequential: a confirmed
// hazard's buzzer pulse and dispatch both finish before the next poll.
type Loop struct {
	cfg       Config
	deps      Deps
	log       *zap.Logger
	debouncer *logic.Debouncer
	state     logic.MonitorState
	last      logic.Reading
	lastErr   error
	now       func() time.Time
}

// New creates a loop in the IDLE state.
func New(cfg Config, deps Deps) *Loop {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loop{
		cfg:   cfg,
		deps:  deps,
		log:   log.With(zap.String("sensor", cfg.SensorID), zap.String("hazard", cfg.Hazard)),
		state: logic.StateIdle,
		now:   time.Now,
	}
	l.debouncer = logic.NewDebouncer(cfg.SensorID, cfg.SustainDuration, sensor.Sampler(deps.Source, func(r logic.Reading) {
		l.last = r
	}))
	return l
}

// State returns the loop's monitor state. Not safe to call concurrently with
// Run; use the status tracker for that.
func (l *Loop) State() logic.MonitorState {
	return l.state
}

// Run polls once immediately and then every PollInterval until ctx ends.
// It returns nil on cancellation; sensing failures never stop the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("monitor started",
		zap.Duration("poll_interval", l.cfg.PollInterval),
		zap.Duration("sustain", l.cfg.SustainDuration),
		zap.Duration("buzzer_pulse", l.cfg.BuzzerPulse),
	)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.Step(ctx, l.now())
	for {
		select {
		case <-ctx.Done():
			l.log.Info("monitor stopped", zap.String("state", string(l.state)))
			return nil
		case <-ticker.C:
			l.Step(ctx, l.now())
		}
	}
}

// Step performs one poll at now and returns the episode transition.
func (l *Loop) Step(ctx context.Context, now time.Time) logic.Transition {
	tr, err := l.debouncer.Poll(ctx, now)
	l.deps.Metrics.Poll(l.cfg.SensorID, err != nil)
	if err != nil {
		// A failed sample neither extends nor ends the episode.
		if l.lastErr == nil || l.lastErr.Error() != err.Error() {
			l.log.Warn("sample failed", zap.Error(err))
		}
		l.lastErr = err
		l.updateTracker()
		return logic.TransitionNone
	}
	if l.lastErr != nil {
		l.log.Info("sampling recovered")
		l.lastErr = nil
	}

	l.state = logic.NextState(l.state, tr)

	switch tr {
	case logic.TransitionStarted:
		l.deps.Metrics.Transition(l.cfg.SensorID, string(tr))
		l.log.Info("hazard episode started")
		l.publish(mqtt.EpisodeEvent{Timestamp: now, Transition: tr})
	case logic.TransitionCleared:
		l.deps.Metrics.Transition(l.cfg.SensorID, string(tr))
		l.log.Info("hazard episode cleared")
		l.publish(mqtt.EpisodeEvent{Timestamp: now, Transition: tr})
	case logic.TransitionConfirmed:
		l.deps.Metrics.Transition(l.cfg.SensorID, string(tr))
		ep, _ := l.debouncer.Episode()
		l.log.Warn("hazard confirmed", zap.Duration("sustained", ep.Duration()))
		// Show ALERTING while the buzzer sounds.
		l.updateTracker()
		l.alert(ctx, now)
	}

	l.updateTracker()
	return tr
}

// alert measures distance, then pulses the buzzer and dispatches the event
// concurrently, waiting for both.
func (l *Loop) alert(ctx context.Context, now time.Time) {
	ev := dispatch.NewAlertEvent(l.cfg.SensorID, l.cfg.Hazard, l.measure(ctx), now)

	var (
		g   errgroup.Group
		res dispatch.Result
	)
	g.Go(func() error {
		return l.deps.Actuators.Pulse(ctx, actuator.Buzzer, l.cfg.BuzzerPulse)
	})
	g.Go(func() error {
		res = l.deps.Sender.Send(ctx, ev)
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.log.Error("buzzer pulse failed", zap.Error(err))
	}

	if l.deps.Tracker != nil {
		l.deps.Tracker.RecordDispatch(res.Delivered)
	}
	if !res.Delivered {
		l.journal(ctx, ev, res)
	}

	delivered := res.Delivered
	l.publish(mqtt.EpisodeEvent{
		Timestamp:  now,
		Transition: logic.TransitionConfirmed,
		EventID:    ev.ID,
		DistanceCM: ev.DistanceCM,
		Delivered:  &delivered,
	})
}

// measure returns nil when no ranger is configured or the echo timed out.
func (l *Loop) measure(ctx context.Context) *float64 {
	if l.deps.Ranger == nil {
		return nil
	}
	d, err := l.deps.Ranger.Measure(ctx)
	if err != nil {
		l.deps.Metrics.Distance(0, false)
		if errors.Is(err, pulse.ErrMeasurementTimeout) {
			l.log.Warn("distance unavailable for alert", zap.Error(err))
		} else {
			l.log.Error("distance measurement failed", zap.Error(err))
		}
		return nil
	}
	l.deps.Metrics.Distance(d, true)
	if l.deps.Tracker != nil {
		l.deps.Tracker.SetDistance(d, l.now())
	}
	return &d
}

func (l *Loop) journal(ctx context.Context, ev dispatch.AlertEvent, res dispatch.Result) {
	if l.deps.Journal == nil {
		l.log.Warn("alert not delivered and no journal configured",
			zap.String("event_id", ev.ID),
			zap.String("reason", res.Reason),
		)
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := l.deps.Journal.Record(jctx, ev, res); err != nil {
		l.log.Error("journal write failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	l.deps.Metrics.Journaled()
	l.log.Info("undelivered alert journaled", zap.String("event_id", ev.ID))
}

func (l *Loop) publish(ev mqtt.EpisodeEvent) {
	if l.deps.Publisher == nil {
		return
	}
	ev.SensorID = l.cfg.SensorID
	ev.Hazard = l.cfg.Hazard
	if err := l.deps.Publisher.PublishEpisode(ev); err != nil {
		l.log.Warn("publish episode failed", zap.Error(err))
	}
}

func (l *Loop) updateTracker() {
	if l.deps.Tracker == nil {
		return
	}
	ss := status.SensorStatus{
		ID:          l.cfg.SensorID,
		Hazard:      l.cfg.Hazard,
		State:       l.state,
		LastReading: l.last,
		Counts:      l.debouncer.Counts(),
	}
	if l.lastErr != nil {
		ss.LastError = l.lastErr.Error()
	}
	if ep, ok := l.debouncer.Episode(); ok {
		ss.InEpisode = true
		ss.Episode = ep
	}
	l.deps.Tracker.UpdateSensor(ss)
}
