package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/status"
)

func gas(detected bool, distance float64) dispatch.Readings {
	return dispatch.Readings{DistanceCM: &distance, HazardDetected: detected}
}

func TestPollerDrivesEpisodes(t *testing.T) {
	edge := &fakeEdge{readings: []dispatch.Readings{
		gas(true, 10), gas(true, 11), gas(true, 12), gas(false, 13), gas(true, 14),
	}}
	sms := &recordingChannel{name: "sms"}
	control := &EdgeControl{Edge: edge}
	n := New(NewMemoryStore(), time.Minute, []Channel{sms, control}, nil, nil)
	tracker := status.NewTracker(time.Now(), status.Config{})
	p := &Poller{Edge: edge, Notifier: n, Interval: time.Second, Tracker: tracker}

	for i := 0; i < 5; i++ {
		p.Step(context.Background())
	}

	assert.Equal(t, 2, sms.notified())
	assert.Equal(t, 2, edge.buzzes)
	assert.Equal(t, []bool{true, false, true}, edge.leds)

	snap := tracker.Snapshot()
	if assert.NotNil(t, snap.DistanceCM) {
		assert.Equal(t, 14.0, *snap.DistanceCM)
	}
	assert.Equal(t, SourcePoll, sms.alerts[0].Source)
	assert.Equal(t, 10.0, *sms.alerts[0].DistanceCM)
}

func TestPollerErrorKeepsEpisode(t *testing.T) {
	edge := &fakeEdge{readings: []dispatch.Readings{gas(true, 1)}}
	sms := &recordingChannel{name: "sms"}
	n := New(NewMemoryStore(), time.Minute, []Channel{sms}, nil, nil)
	p := &Poller{Edge: edge, Notifier: n, Interval: time.Second}

	p.Step(context.Background())
	edge.err = errors.New("connection refused")
	p.Step(context.Background())
	p.Step(context.Background())
	edge.err = nil
	p.Step(context.Background())

	assert.Equal(t, 1, sms.notified(), "unreachable edge must not end the episode")
	st, err := n.Status(context.Background())
	assert.NoError(t, err)
	assert.True(t, st.Active[dispatch.HazardGas])
}

func TestPollerPerHazard(t *testing.T) {
	edge := &fakeEdge{readings: []dispatch.Readings{
		{Hazards: map[string]bool{"gas": false, "ir": true}},
		{Hazards: map[string]bool{"gas": true, "ir": true}},
	}}
	sms := &recordingChannel{name: "sms"}
	n := New(NewMemoryStore(), time.Minute, []Channel{sms}, nil, nil)
	p := &Poller{Edge: edge, Notifier: n, Interval: time.Second}

	p.Step(context.Background())
	p.Step(context.Background())

	assert.Equal(t, 2, sms.notified())
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	edge := &fakeEdge{readings: []dispatch.Readings{gas(false, 1)}}
	n := New(NewMemoryStore(), time.Minute, nil, nil, nil)
	p := &Poller{Edge: edge, Notifier: n, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.Run(ctx))

	edge.mu.Lock()
	defer edge.mu.Unlock()
	assert.GreaterOrEqual(t, edge.polls, 1)
}
