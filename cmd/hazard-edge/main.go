// Command hazard-edge polls hazard sensors, sounds the local buzzer on a
// confirmed hazard and reports alerts and distance to the observer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sweeney/hazard-sentinel/internal/actuator"
	"github.com/sweeney/hazard-sentinel/internal/adc"
	"github.com/sweeney/hazard-sentinel/internal/config"
	"github.com/sweeney/hazard-sentinel/internal/dispatch"
	"github.com/sweeney/hazard-sentinel/internal/gpio"
	"github.com/sweeney/hazard-sentinel/internal/journal"
	"github.com/sweeney/hazard-sentinel/internal/logger"
	"github.com/sweeney/hazard-sentinel/internal/logic"
	"github.com/sweeney/hazard-sentinel/internal/metrics"
	"github.com/sweeney/hazard-sentinel/internal/monitor"
	"github.com/sweeney/hazard-sentinel/internal/mqtt"
	"github.com/sweeney/hazard-sentinel/internal/pulse"
	"github.com/sweeney/hazard-sentinel/internal/sensor"
	"github.com/sweeney/hazard-sentinel/internal/status"
	"github.com/sweeney/hazard-sentinel/internal/web"
)

// shutdownTimeout bounds driving the outputs low and draining HTTP.
const shutdownTimeout = 5 * time.Second

func main() {
	fs := config.EdgeFlags()
	printState := fs.Bool("print-state", false, "Print current sensor readings and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadEdge(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, "hazard-edge", cfg.Node)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, *printState, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

func run(cfg *config.Edge, printState bool, log *zap.Logger) error {
	chip, err := gpio.OpenChip(cfg.GPIO.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	var level adc.Reader
	if cfg.ADC.Enabled {
		m, err := adc.OpenMCP3008(cfg.ADC.Port)
		if err != nil {
			return fmt.Errorf("init adc: %w", err)
		}
		defer m.Close()
		level = m
	}

	sources, err := openSources(chip, level, cfg.Sensors)
	if err != nil {
		return err
	}

	// Print state mode
	if printState {
		return printReadings(context.Background(), os.Stdout, cfg.Sensors, sources)
	}

	buzzer, err := chip.RequestOutput(cfg.GPIO.Buzzer)
	if err != nil {
		return fmt.Errorf("request buzzer line: %w", err)
	}
	led, err := chip.RequestOutput(cfg.GPIO.LED)
	if err != nil {
		return fmt.Errorf("request led line: %w", err)
	}
	act, err := actuator.New(buzzer, led)
	if err != nil {
		return fmt.Errorf("init actuators: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), trackerConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	act.SetObserver(func(out actuator.Output, lvl actuator.Level) {
		tracker.SetActuator(string(out), string(lvl))
		m.Actuator(string(out), lvl == actuator.On)
	})

	var ranger monitor.Ranger
	if cfg.Ranger.Enabled {
		trigger, err := chip.RequestOutput(cfg.GPIO.Trigger)
		if err != nil {
			return fmt.Errorf("request trigger line: %w", err)
		}
		echo, err := chip.RequestInput(cfg.GPIO.Echo)
		if err != nil {
			return fmt.Errorf("request echo line: %w", err)
		}
		ranger = pulse.New(trigger, echo, pulse.WithTimeout(cfg.Ranger.EchoTimeout))
	}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.Node, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())
	}

	dispatcher := dispatch.New(dispatch.Config{
		BaseURL:        cfg.Observer.URL,
		Attempts:       cfg.Dispatch.Attempts,
		RetryWait:      cfg.Dispatch.RetryWait,
		RetryMaxWait:   cfg.Dispatch.RetryMaxWait,
		AttemptTimeout: cfg.Dispatch.AttemptTimeout,
	}, log, m)

	var recorder monitor.Recorder
	var replayer *monitor.Replayer
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		recorder = j
		replayer = &monitor.Replayer{
			Journal:  j,
			Sender:   dispatcher,
			Interval: cfg.Journal.ReplayInterval,
			MaxAge:   cfg.Journal.MaxAge,
			Log:      log,
		}
		if n, err := j.Count(context.Background()); err == nil && n > 0 {
			log.Info("journal holds undelivered alerts", zap.Int("count", n))
		}
	}

	loops := make([]*monitor.Loop, len(cfg.Sensors))
	for i, s := range cfg.Sensors {
		loops[i] = monitor.New(monitor.Config{
			SensorID:        s.ID,
			Hazard:          s.Hazard,
			PollInterval:    s.PollInterval,
			SustainDuration: s.Sustain(),
			BuzzerPulse:     s.BuzzerPulseDuration,
		}, monitor.Deps{
			Source:    sources[i],
			Actuators: act,
			Sender:    dispatcher,
			Ranger:    ranger,
			Journal:   recorder,
			Publisher: publisher,
			Tracker:   tracker,
			Log:       log,
			Metrics:   m,
		})
	}

	// Publish startup event with full status snapshot
	if publisher != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startup); err != nil {
			log.Warn("failed to publish startup event", zap.Error(err))
		} else {
			log.Info("published startup event")
		}
	}

	// Start HTTP control server
	var srv *web.Server
	if cfg.HTTP.Addr != "" {
		srv = web.NewEdge(cfg.HTTP.Addr, web.EdgeConfig{
			Tracker:      tracker,
			Actuators:    act,
			Ranger:       ranger,
			BuzzerPulse:  cfg.HTTP.BuzzerPulse,
			Level:        level,
			LevelChannel: cfg.ADC.Channel,
			Limiter:      rate.NewLimiter(rate.Limit(cfg.HTTP.ControlRate), cfg.HTTP.ControlBurst),
			Gatherer:     reg,
			Metrics:      m,
			Log:          log,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		log.Info("http control server listening", zap.String("addr", cfg.HTTP.Addr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range loops {
		g.Go(func() error { return l.Run(gctx) })
	}
	if cfg.Telemetry.Interval > 0 && ranger != nil {
		tel := &monitor.Telemetry{
			SensorID:  cfg.Node,
			Interval:  cfg.Telemetry.Interval,
			Ranger:    ranger,
			Sender:    dispatcher,
			Publisher: publisher,
			Tracker:   tracker,
			Log:       log,
			Metrics:   m,
		}
		g.Go(func() error { return tel.Run(gctx) })
	}
	if replayer != nil {
		g.Go(func() error { return replayer.Run(gctx) })
	}

	var workerErr error
	workersDone := make(chan struct{})
	go func() {
		workerErr = g.Wait()
		close(workersDone)
	}()

	stop := func() error {
		cancel()
		<-workersDone

		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		var h shutdowner
		if srv != nil {
			h = srv
		}
		releaseOutputs(sctx, h, act, log)
		return workerErr
	}

	log.Info("started",
		zap.Int("sensors", len(loops)),
		zap.String("observer", cfg.Observer.URL),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Duration("heartbeat", cfg.MQTT.Heartbeat),
	)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(publisher, mqttStatus, tracker, cfg.MQTT.Heartbeat, time.Now, ticker.C, sigCh, workersDone, stop, log)
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

type closer interface {
	Close(ctx context.Context) error
}

// releaseOutputs stops the control surface before driving the outputs low,
// so a late /control_led cannot switch the LED back on. srv may be nil.
func releaseOutputs(ctx context.Context, srv shutdowner, outputs closer, log *zap.Logger) {
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}
	if err := outputs.Close(ctx); err != nil {
		log.Error("failed to drive outputs low", zap.Error(err))
	}
}

// runLoop supervises the running workers. It publishes heartbeats on tick and
// SHUTDOWN after stop has returned, either on a signal or when the workers
// exit on their own. publisher, mqttStatus and tracker may be nil.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, workersDone <-chan struct{}, stop func() error, log *zap.Logger) error {
	hb := logic.NewHeartbeat(now())

	shutdown := func(reason string) error {
		err := stop()

		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    reason,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason)
		}
		if publisher != nil {
			if perr := publisher.PublishSystem(event); perr != nil {
				log.Warn("failed to publish shutdown event", zap.Error(perr))
			} else {
				log.Info("published shutdown event")
			}
		}
		return err
	}

	for {
		select {
		case s := <-sig:
			log.Info("shutting down", zap.String("signal", s.String()))
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			return shutdown(signalName)

		case <-workersDone:
			err := shutdown("ERROR")
			if err == nil {
				err = errors.New("workers exited")
			}
			return fmt.Errorf("monitor stopped: %w", err)

		case <-tick:
			t := now()
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			hbData := hb.Check(t, heartbeat)
			if hbData == nil {
				continue
			}
			log.Info("heartbeat", zap.Duration("uptime", hbData.Uptime))

			hbEvent := mqtt.SystemEvent{
				Timestamp: hbData.Timestamp,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
			}
			if publisher != nil {
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Warn("heartbeat publish error", zap.Error(err))
				}
			}
		}
	}
}

// openSources builds one hazard source per configured sensor, in order.
func openSources(chip *gpio.Chip, level adc.Reader, sensors []config.Sensor) ([]sensor.Source, error) {
	out := make([]sensor.Source, 0, len(sensors))
	for _, s := range sensors {
		switch s.Source {
		case config.SourceAnalog:
			out = append(out, sensor.NewAnalog(level, s.Channel, s.Threshold))
		case config.SourceSimulated:
			out = append(out, sensor.NewSimulated(true))
		default:
			pin, err := chip.RequestInput(s.Pin)
			if err != nil {
				return nil, fmt.Errorf("sensor %s: request pin %d: %w", s.ID, s.Pin, err)
			}
			out = append(out, sensor.NewBinary(pin, s.ActiveLow))
		}
	}
	return out, nil
}

func printReadings(ctx context.Context, w io.Writer, sensors []config.Sensor, sources []sensor.Source) error {
	for i, s := range sensors {
		r, err := sources[i].Sample(ctx)
		if err != nil {
			return fmt.Errorf("read sensor %s: %w", s.ID, err)
		}
		fmt.Fprintf(w, "%s (%s): %s value=%g\n", s.ID, s.Hazard, hazardString(r.Hazard), r.Value)
	}
	return nil
}

func hazardString(hazard bool) string {
	if hazard {
		return "HAZARD"
	}
	return "CLEAR"
}

func trackerConfig(cfg *config.Edge) status.Config {
	sc := make([]status.SensorConfig, len(cfg.Sensors))
	for i, s := range cfg.Sensors {
		sc[i] = status.SensorConfig{
			ID:            s.ID,
			Hazard:        s.Hazard,
			PollMs:        s.PollInterval.Milliseconds(),
			SustainMs:     s.Sustain().Milliseconds(),
			BuzzerPulseMs: s.BuzzerPulseDuration.Milliseconds(),
		}
	}
	return status.Config{
		Node:        cfg.Node,
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		ObserverURL: cfg.Observer.URL,
		Sensors:     sc,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
