package logic

import (
	"context"
	"time"
)

// Sampler reports whether the hazard condition currently holds.
type Sampler func(ctx context.Context) (bool, error)

// Debouncer turns a noisy boolean sample stream into edge-triggered episode
// transitions. A hazard is confirmed once it has held continuously for the
// sustain duration, measured from the first positive sample; any negative
// sample ends the episode and restarts the countdown from scratch.
//
// Not safe for concurrent use; each monitor loop owns its own Debouncer.
type Debouncer struct {
	sensorID string
	sustain  time.Duration
	sample   Sampler
	episode  *Episode
	counts   EpisodeCounts
}

// NewDebouncer creates a debouncer for sensorID. sample may be nil when the
// caller only uses Observe.
func NewDebouncer(sensorID string, sustain time.Duration, sample Sampler) *Debouncer {
	return &Debouncer{
		sensorID: sensorID,
		sustain:  sustain,
		sample:   sample,
	}
}

// Poll samples the condition and feeds the result to Observe.
// A failed sample leaves the episode untouched and returns the error.
func (d *Debouncer) Poll(ctx context.Context, now time.Time) (Transition, error) {
	positive, err := d.sample(ctx)
	if err != nil {
		return TransitionNone, err
	}
	return d.Observe(positive, now), nil
}

// Observe applies one sample taken at now.
func (d *Debouncer) Observe(positive bool, now time.Time) Transition {
	if !positive {
		if d.episode == nil {
			return TransitionNone
		}
		d.episode = nil
		d.counts.Cleared++
		return TransitionCleared
	}

	if d.episode == nil {
		d.episode = &Episode{
			SensorID:   d.sensorID,
			StartedAt:  now,
			LastSeenAt: now,
		}
		d.counts.Started++
		if d.sustain > 0 {
			return TransitionStarted
		}
		// Zero sustain: the first sample already satisfies the threshold.
	}

	d.episode.LastSeenAt = now
	if !d.episode.Confirmed && now.Sub(d.episode.StartedAt) >= d.sustain {
		d.episode.Confirmed = true
		d.counts.Confirmed++
		return TransitionConfirmed
	}
	return TransitionNone
}

// Episode returns the live episode, if any.
func (d *Debouncer) Episode() (Episode, bool) {
	if d.episode == nil {
		return Episode{}, false
	}
	return *d.episode, true
}

// Counts returns a copy of the transition counters.
func (d *Debouncer) Counts() EpisodeCounts {
	return d.counts
}

// Heartbeat decides when a periodic heartbeat is due.
type Heartbeat struct {
	startTime time.Time
	last      time.Time
}

// NewHeartbeat creates a heartbeat clock starting at startTime.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{startTime: startTime, last: startTime}
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed, or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(h.last) < interval {
		return nil
	}
	h.last = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
	}
}
