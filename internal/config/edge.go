package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/hazard-sentinel/internal/gpio"
)

// Hazard types understood by the observer.
const (
	HazardGas = "gas"
	HazardIR  = "ir"
)

// Hazard source kinds.
const (
	SourceBinary    = "binary"
	SourceAnalog    = "analog"
	SourceSimulated = "simulated"
)

// Edge is the configuration of the sensing node.
type Edge struct {
	Node      string    `mapstructure:"node"`
	Log       Log       `mapstructure:"log"`
	GPIO      GPIO      `mapstructure:"gpio"`
	Ranger    Ranger    `mapstructure:"ranger"`
	ADC       ADC       `mapstructure:"adc"`
	Sensors   []Sensor  `mapstructure:"sensors"`
	Observer  Remote    `mapstructure:"observer"`
	Dispatch  Dispatch  `mapstructure:"dispatch"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	MQTT      MQTT      `mapstructure:"mqtt"`
	HTTP      Control   `mapstructure:"http"`
	Journal   Journal   `mapstructure:"journal"`
}

// GPIO names the chip and the BCM offsets of the owned output lines.
type GPIO struct {
	Chip    string `mapstructure:"chip"`
	Trigger int    `mapstructure:"trigger"`
	Echo    int    `mapstructure:"echo"`
	Buzzer  int    `mapstructure:"buzzer"`
	LED     int    `mapstructure:"led"`
}

// Ranger configures the ultrasonic distance sensor.
type Ranger struct {
	Enabled     bool          `mapstructure:"enabled"`
	EchoTimeout time.Duration `mapstructure:"echo_timeout"`
}

// ADC configures the MCP3008 analog gas level reading.
type ADC struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
	Channel int    `mapstructure:"channel"`
}

// Sensor is one monitored hazard input with its own loop cadence.
type Sensor struct {
	ID        string `mapstructure:"id"`
	Hazard    string `mapstructure:"hazard"`
	Source    string `mapstructure:"source"`
	Pin       int    `mapstructure:"pin"`
	ActiveLow bool   `mapstructure:"active_low"`
	// Channel and Threshold apply to analog sources.
	Channel   int `mapstructure:"channel"`
	Threshold int `mapstructure:"threshold"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SustainDuration is nil when left out. An explicit zero confirms on
	// the first positive sample.
	SustainDuration     *time.Duration `mapstructure:"sustain_duration"`
	BuzzerPulseDuration time.Duration  `mapstructure:"buzzer_pulse_duration"`
}

// Sustain returns how long the hazard must persist before it is confirmed.
func (s Sensor) Sustain() time.Duration {
	if s.SustainDuration == nil {
		return 0
	}
	return *s.SustainDuration
}

// Remote is the base URL of a peer daemon.
type Remote struct {
	URL string `mapstructure:"url"`
}

// Dispatch bounds alert delivery.
type Dispatch struct {
	Attempts       int           `mapstructure:"attempts"`
	RetryWait      time.Duration `mapstructure:"retry_wait"`
	RetryMaxWait   time.Duration `mapstructure:"retry_max_wait"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// Telemetry configures the continuous distance report. Zero disables it.
type Telemetry struct {
	Interval time.Duration `mapstructure:"interval"`
}

// MQTT configures the event publisher. An empty broker disables it.
type MQTT struct {
	Broker    string        `mapstructure:"broker"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// Control configures the edge HTTP surface.
type Control struct {
	Addr        string        `mapstructure:"addr"`
	BuzzerPulse time.Duration `mapstructure:"buzzer_pulse"`
	// ControlRate is the sustained /control_buzzer rate per second.
	ControlRate  float64 `mapstructure:"control_rate"`
	ControlBurst int     `mapstructure:"control_burst"`
}

// Journal configures the local record of undelivered alerts. An empty path
// disables it.
type Journal struct {
	Path           string        `mapstructure:"path"`
	ReplayInterval time.Duration `mapstructure:"replay_interval"`
	// MaxAge drops journaled alerts detected longer ago than this instead
	// of replaying them. Zero replays every alert.
	MaxAge time.Duration `mapstructure:"max_age"`
}

func edgeDefaults() map[string]any {
	return map[string]any{
		"node":                     "edge",
		"log.level":                "info",
		"log.format":               "console",
		"gpio.chip":                "gpiochip0",
		"gpio.trigger":             gpio.DefaultPinTrigger,
		"gpio.echo":                gpio.DefaultPinEcho,
		"gpio.buzzer":              gpio.DefaultPinBuzzer,
		"gpio.led":                 gpio.DefaultPinLED,
		"ranger.enabled":           true,
		"ranger.echo_timeout":      "40ms",
		"adc.enabled":              false,
		"adc.port":                 "/dev/spidev0.0",
		"adc.channel":              0,
		"observer.url":             "http://127.0.0.1:5001",
		"dispatch.attempts":        3,
		"dispatch.retry_wait":      "500ms",
		"dispatch.retry_max_wait":  "5s",
		"dispatch.attempt_timeout": "10s",
		"telemetry.interval":       "5s",
		"mqtt.broker":              "",
		"mqtt.heartbeat":           "15m",
		"http.addr":                ":5000",
		"http.buzzer_pulse":        "5s",
		"http.control_rate":        0.2,
		"http.control_burst":       1,
		"journal.path":             "",
		"journal.replay_interval":  "1m",
		"journal.max_age":          "10m",
		"sensors": []map[string]any{
			{
				"id":         HazardGas,
				"hazard":     HazardGas,
				"source":     SourceBinary,
				"pin":        gpio.DefaultPinGas,
				"active_low": true,
			},
		},
	}
}

// EdgeFlags returns the flag set understood by LoadEdge.
func EdgeFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hazard-edge", pflag.ContinueOnError)
	fs.String("config", "", "path to hazard-edge.yaml")
	fs.String("node", "", "node name used in MQTT topics and logs")
	fs.String("observer", "", "observer base URL")
	fs.String("broker", "", "MQTT broker address (empty disables MQTT)")
	fs.String("http", "", "HTTP control address (empty disables)")
	fs.String("journal", "", "sqlite journal of undelivered alerts")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.Duration("heartbeat", 0, "heartbeat interval")
	return fs
}

var edgeFlagKeys = map[string]string{
	"node":      "node",
	"observer":  "observer.url",
	"broker":    "mqtt.broker",
	"http":      "http.addr",
	"journal":   "journal.path",
	"log-level": "log.level",
	"heartbeat": "mqtt.heartbeat",
}

// LoadEdge builds the edge configuration. fs may be nil.
func LoadEdge(fs *pflag.FlagSet) (*Edge, error) {
	v, err := newViper(configPath(fs), edgeDefaults())
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs, edgeFlagKeys); err != nil {
		return nil, err
	}

	var cfg Edge
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode edge config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("edge config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills per-sensor settings the file left out.
func (c *Edge) applyDefaults() {
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.ID == "" {
			s.ID = s.Hazard
		}
		if s.Source == "" {
			s.Source = SourceBinary
		}
		if s.PollInterval == 0 {
			s.PollInterval = time.Second
		}
		if s.SustainDuration == nil {
			d := 15 * time.Second
			s.SustainDuration = &d
		}
		if s.BuzzerPulseDuration == 0 {
			s.BuzzerPulseDuration = 5 * time.Second
		}
		if s.Source == SourceAnalog && s.Threshold == 0 {
			s.Threshold = 400
		}
	}
}

func (c *Edge) validate() error {
	if c.Node == "" {
		return errNoNode
	}
	if err := validateLog(c.Log); err != nil {
		return err
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("at least one sensor is required")
	}

	seen := make(map[string]bool, len(c.Sensors))
	for _, s := range c.Sensors {
		if seen[s.ID] {
			return fmt.Errorf("duplicate sensor id %q", s.ID)
		}
		seen[s.ID] = true

		switch s.Hazard {
		case HazardGas, HazardIR:
		default:
			return fmt.Errorf("sensor %q: hazard %q must be gas or ir", s.ID, s.Hazard)
		}
		switch s.Source {
		case SourceBinary, SourceSimulated:
		case SourceAnalog:
			if !c.ADC.Enabled {
				return fmt.Errorf("sensor %q: analog source requires adc.enabled", s.ID)
			}
		default:
			return fmt.Errorf("sensor %q: source %q must be binary, analog or simulated", s.ID, s.Source)
		}
		if s.PollInterval < 0 || s.Sustain() < 0 || s.BuzzerPulseDuration < 0 {
			return fmt.Errorf("sensor %q: durations must not be negative", s.ID)
		}
	}

	if _, err := url.ParseRequestURI(c.Observer.URL); err != nil {
		return fmt.Errorf("observer.url: %w", err)
	}
	if c.HTTP.Addr != "" && sameListener(c.Observer.URL, c.HTTP.Addr) {
		return fmt.Errorf("observer.url %s points at this node's own http.addr %s", c.Observer.URL, c.HTTP.Addr)
	}
	if c.Dispatch.Attempts < 1 {
		return fmt.Errorf("dispatch.attempts must be at least 1")
	}
	if c.Dispatch.AttemptTimeout <= 0 {
		return fmt.Errorf("dispatch.attempt_timeout must be positive")
	}
	if c.Ranger.EchoTimeout <= 0 {
		return fmt.Errorf("ranger.echo_timeout must be positive")
	}
	if c.Telemetry.Interval > 0 && !c.Ranger.Enabled {
		return fmt.Errorf("telemetry.interval requires ranger.enabled")
	}
	if c.Journal.Path != "" && c.Journal.ReplayInterval <= 0 {
		return fmt.Errorf("journal.replay_interval must be positive")
	}
	if c.Journal.MaxAge < 0 {
		return fmt.Errorf("journal.max_age must not be negative")
	}
	if c.HTTP.ControlRate <= 0 || c.HTTP.ControlBurst < 1 {
		return fmt.Errorf("http.control_rate and http.control_burst must be positive")
	}
	return nil
}

// sameListener reports whether rawURL would reach the local listener bound
// to addr.
func sameListener(rawURL, addr string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	urlPort := u.Port()
	if urlPort == "" {
		urlPort = "80"
		if u.Scheme == "https" {
			urlPort = "443"
		}
	}
	if urlPort != port {
		return false
	}
	if u.Hostname() == host || u.Hostname() == "localhost" {
		return true
	}
	ip := net.ParseIP(u.Hostname())
	return ip != nil && ip.IsLoopback()
}
