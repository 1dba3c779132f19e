// Command hazard-observer receives hazard alerts from edge nodes and notifies
// people once per episode by SMS, speech and the edge's own buzzer and LED.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/hazard-sentinel/internal/config"
	"github.com/sweeney/hazard-sentinel/internal/logger"
	"github.com/sweeney/hazard-sentinel/internal/metrics"
	"github.com/sweeney/hazard-sentinel/internal/notify"
	"github.com/sweeney/hazard-sentinel/internal/status"
	"github.com/sweeney/hazard-sentinel/internal/web"
)

const (
	shutdownTimeout = 5 * time.Second
	redisTimeout    = 5 * time.Second
)

func main() {
	fs := config.ObserverFlags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadObserver(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, "hazard-observer", cfg.Node)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Observer, log *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var edge *notify.EdgeClient
	if cfg.Edge.URL != "" {
		edge = notify.NewEdgeClient(cfg.Edge.URL, cfg.Edge.RequestTimeout)
	}

	channels := buildChannels(cfg, edge)
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name()
	}

	notifier := notify.New(store, cfg.Notify.FlagTTL, channels, log, m)
	notifier.SetChannelTimeout(cfg.Notify.ChannelTimeout)
	tracker := status.NewTracker(time.Now(), status.Config{
		Node:     cfg.Node,
		HTTPAddr: cfg.HTTP.Addr,
	})

	srv := web.NewObserver(cfg.HTTP.Addr, web.ObserverConfig{
		Node:     cfg.Node,
		Notifier: notifier,
		Tracker:  tracker,
		Gatherer: reg,
		Log:      log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if edge != nil {
		poller := &notify.Poller{
			Edge:     edge,
			Notifier: notifier,
			Interval: cfg.Edge.PollInterval,
			Tracker:  tracker,
			Log:      log,
		}
		g.Go(func() error { return poller.Run(gctx) })
	}

	log.Info("started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("edge", cfg.Edge.URL),
		zap.Bool("redis", cfg.Redis.Addr != ""),
		zap.Strings("channels", names),
		zap.Duration("flag_ttl", cfg.Notify.FlagTTL),
		zap.Duration("channel_timeout", cfg.Notify.ChannelTimeout),
	)

	err = g.Wait()
	log.Info("stopped")
	return err
}

// openStore connects the episode flag store. Without a Redis address flags
// live in memory and do not survive a restart.
func openStore(ctx context.Context, cfg config.Redis) (notify.Store, func() error, error) {
	if cfg.Addr == "" {
		return notify.NewMemoryStore(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return notify.NewRedisStore(client, cfg.KeyPrefix), client.Close, nil
}

// buildChannels returns the configured notification channels. edge may be nil.
func buildChannels(cfg *config.Observer, edge *notify.EdgeClient) []notify.Channel {
	var channels []notify.Channel
	if cfg.Twilio.Enabled() {
		channels = append(channels, notify.NewSMS(notify.SMSConfig{
			BaseURL:    cfg.Twilio.BaseURL,
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.From,
			To:         cfg.Twilio.To,
			Timeout:    cfg.Twilio.Timeout,
			Messages:   cfg.Notify.SMS,
		}))
	}
	if cfg.Speech.Command != "" {
		channels = append(channels, notify.NewSpeech(cfg.Speech.Command, cfg.Speech.Args, cfg.Speech.Timeout, cfg.Notify.Speech))
	}
	if edge != nil && cfg.Edge.Control {
		channels = append(channels, &notify.EdgeControl{Edge: edge})
	}
	return channels
}
