package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/hazard-sentinel/internal/dispatch"
)

func newTestNotifier(channels ...Channel) (*Notifier, *MemoryStore) {
	store := NewMemoryStore()
	return New(store, time.Minute, channels, zap.NewNop(), nil), store
}

func TestNotifiesOncePerEpisode(t *testing.T) {
	ch := &recordingChannel{name: "sms"}
	n, _ := newTestNotifier(ch)
	ctx := context.Background()

	// detected, detected, detected, clear, detected
	seq := []bool{true, true, true, false, true}
	var fired []bool
	for _, detected := range seq {
		var (
			ok  bool
			err error
		)
		if detected {
			ok, err = n.Detected(ctx, Alert{Hazard: dispatch.HazardGas, Source: SourcePoll})
		} else {
			_, err = n.Cleared(ctx, dispatch.HazardGas)
		}
		require.NoError(t, err)
		fired = append(fired, ok)
	}

	assert.Equal(t, 2, ch.notified())
	assert.Equal(t, []bool{true, false, false, false, true}, fired)
}

func TestHazardsAreIndependent(t *testing.T) {
	ch := &recordingChannel{name: "sms"}
	n, _ := newTestNotifier(ch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas})
		require.NoError(t, err)
		_, err = n.Detected(ctx, Alert{Hazard: dispatch.HazardIR})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ch.notified())
}

func TestClearRunsClearers(t *testing.T) {
	plain := &recordingChannel{name: "sms"}
	edge := &clearingChannel{recordingChannel{name: "edge"}}
	n, _ := newTestNotifier(plain, edge)
	ctx := context.Background()

	ended, err := n.Cleared(ctx, dispatch.HazardGas)
	require.NoError(t, err)
	assert.False(t, ended, "no episode to end")
	assert.Empty(t, edge.cleared)

	_, err = n.Detected(ctx, Alert{Hazard: dispatch.HazardGas})
	require.NoError(t, err)
	ended, err = n.Cleared(ctx, dispatch.HazardGas)
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Equal(t, []string{dispatch.HazardGas}, edge.cleared)
}

func TestFailingChannelDoesNotBlockOthers(t *testing.T) {
	bad := &recordingChannel{name: "sms", err: fmt.Errorf("twilio down")}
	good := &recordingChannel{name: "speech"}
	n, store := newTestNotifier(bad, good)
	ctx := context.Background()

	ok, err := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, good.notified())

	// The episode is still flagged, so a failed SMS is not retried per poll.
	active, err := store.Active(ctx, dispatch.HazardGas)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestFlagExpiresWithoutClear(t *testing.T) {
	ch := &recordingChannel{name: "sms"}
	n, store := newTestNotifier(ch)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas, Source: SourcePush})
	require.NoError(t, err)

	// A repeat inside the TTL extends the episode.
	now = now.Add(50 * time.Second)
	_, err = n.Detected(ctx, Alert{Hazard: dispatch.HazardGas, Source: SourcePush})
	require.NoError(t, err)
	now = now.Add(50 * time.Second)
	_, err = n.Detected(ctx, Alert{Hazard: dispatch.HazardGas, Source: SourcePush})
	require.NoError(t, err)
	assert.Equal(t, 1, ch.notified())

	now = now.Add(2 * time.Minute)
	ok, err := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas, Source: SourcePush})
	require.NoError(t, err)
	assert.True(t, ok, "expired flag starts a new episode")
	assert.Equal(t, 2, ch.notified())
}

func TestChannelsOutliveCallerContext(t *testing.T) {
	ch := newWaitingChannel()
	n, _ := newTestNotifier(ch)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan bool, 1)
	go func() {
		ok, _ := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas})
		result <- ok
	}()

	// The caller gives up while the channel is still delivering.
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(ch.release)

	select {
	case err := <-ch.done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("channel never finished")
	}
	assert.True(t, <-result)
}

func TestChannelTimeoutBoundsDelivery(t *testing.T) {
	ch := newWaitingChannel()
	n, _ := newTestNotifier(ch)
	n.SetChannelTimeout(30 * time.Millisecond)
	n.SetChannelTimeout(0)

	ok, err := n.Detected(context.Background(), Alert{Hazard: dispatch.HazardGas})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.ErrorIs(t, <-ch.done, context.DeadlineExceeded)
}

func TestConcurrentDetectionsNotifyOnce(t *testing.T) {
	ch := &recordingChannel{name: "sms"}
	n, _ := newTestNotifier(ch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = n.Detected(context.Background(), Alert{Hazard: dispatch.HazardGas})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ch.notified())
}

func TestStoreErrorsAreReturned(t *testing.T) {
	ch := &recordingChannel{name: "sms"}
	n := New(brokenStore{}, time.Minute, []Channel{ch}, nil, nil)
	ctx := context.Background()

	_, err := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas})
	assert.ErrorIs(t, err, errStoreDown)
	_, err = n.Cleared(ctx, dispatch.HazardGas)
	assert.ErrorIs(t, err, errStoreDown)
	_, err = n.Status(ctx)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 0, ch.notified())
}

func TestStatus(t *testing.T) {
	n, _ := newTestNotifier(&recordingChannel{name: "sms"})
	ctx := context.Background()

	_, err := n.Detected(ctx, Alert{Hazard: dispatch.HazardGas, EventID: "abc"})
	require.NoError(t, err)
	_, err = n.Cleared(ctx, dispatch.HazardIR)
	require.NoError(t, err)

	st, err := n.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{dispatch.HazardGas: true, dispatch.HazardIR: false}, st.Active)
	assert.Equal(t, 1, st.Notifications)
	require.NotNil(t, st.LastAlert)
	assert.Equal(t, "abc", st.LastAlert.EventID)
}

func TestFromEvent(t *testing.T) {
	d := 12.5
	ev := dispatch.NewAlertEvent("gas-kitchen", dispatch.HazardGas, &d, time.Now())
	a := FromEvent(ev)

	assert.Equal(t, ev.ID, a.EventID)
	assert.Equal(t, "gas-kitchen", a.SensorID)
	assert.Equal(t, dispatch.HazardGas, a.Hazard)
	assert.Equal(t, &d, a.DistanceCM)
	assert.Equal(t, SourcePush, a.Source)
}
