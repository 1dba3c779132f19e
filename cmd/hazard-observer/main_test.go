package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/hazard-sentinel/internal/config"
	"github.com/sweeney/hazard-sentinel/internal/notify"
)

func loadDefaults(t *testing.T) *config.Observer {
	t.Helper()
	cfg, err := config.LoadObserver(nil)
	require.NoError(t, err)
	return cfg
}

func channelNames(channels []notify.Channel) []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name()
	}
	return names
}

func TestBuildChannelsDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	// Speech defaults to espeak; SMS stays off without an account.
	assert.Equal(t, []string{"speech"}, channelNames(buildChannels(cfg, nil)))
}

func TestBuildChannelsAll(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Twilio.AccountSID = "AC123"
	cfg.Twilio.AuthToken = "token"
	cfg.Twilio.From = "+15550001"
	cfg.Twilio.To = "+15550002"
	cfg.Edge.URL = "http://edge.local:5000"

	edge := notify.NewEdgeClient(cfg.Edge.URL, time.Second)
	assert.Equal(t, []string{"sms", "speech", "edge"}, channelNames(buildChannels(cfg, edge)))
}

func TestBuildChannelsEdgeControlDisabled(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Speech.Command = ""
	cfg.Edge.Control = false

	edge := notify.NewEdgeClient("http://edge.local:5000", time.Second)
	assert.Empty(t, buildChannels(cfg, edge))
}

func TestOpenStoreMemory(t *testing.T) {
	store, closeStore, err := openStore(context.Background(), config.Redis{})
	require.NoError(t, err)
	defer closeStore()

	assert.IsType(t, &notify.MemoryStore{}, store)
}

func TestOpenStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	store, closeStore, err := openStore(context.Background(), config.Redis{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	defer closeStore()

	first, err := store.Mark(context.Background(), "gas", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	assert.True(t, mr.Exists("test:gas"))
}

func TestOpenStoreRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := openStore(ctx, config.Redis{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
