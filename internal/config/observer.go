package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"
)

// Observer is the configuration of the notifying node.
type Observer struct {
	Node   string   `mapstructure:"node"`
	Log    Log      `mapstructure:"log"`
	HTTP   HTTP     `mapstructure:"http"`
	Edge   EdgeLink `mapstructure:"edge"`
	Redis  Redis    `mapstructure:"redis"`
	Twilio Twilio   `mapstructure:"twilio"`
	Speech Speech   `mapstructure:"speech"`
	Notify Notify   `mapstructure:"notify"`
}

// EdgeLink locates the edge node the observer polls and controls.
type EdgeLink struct {
	URL            string        `mapstructure:"url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// BuzzerPulse mirrors the edge's http.buzzer_pulse. /control_buzzer
	// answers once the pulse ends, so RequestTimeout must exceed it.
	BuzzerPulse time.Duration `mapstructure:"buzzer_pulse"`
	// Control enables remote buzzer/LED commands on episode changes.
	Control bool `mapstructure:"control"`
}

// Redis persists per-hazard episode flags. An empty address keeps them in
// memory.
type Redis struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Twilio configures SMS notifications. Disabled unless account_sid is set.
type Twilio struct {
	BaseURL    string        `mapstructure:"base_url"`
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	To         string        `mapstructure:"to"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether SMS is configured.
func (t Twilio) Enabled() bool {
	return t.AccountSID != ""
}

// Speech configures the local text-to-speech command. An empty command
// disables speech.
type Speech struct {
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Notify configures the episode-aware notifier.
type Notify struct {
	// FlagTTL bounds how long an episode flag outlives its last detection,
	// so an episode still ends when only pushed alerts are seen.
	FlagTTL time.Duration `mapstructure:"flag_ttl"`
	// ChannelTimeout bounds the channels fired for one episode change. It
	// runs independently of the edge request that reported the hazard.
	ChannelTimeout time.Duration `mapstructure:"channel_timeout"`
	// SMS and Speech hold the message text per hazard type.
	SMS    map[string]string `mapstructure:"sms"`
	Speech map[string]string `mapstructure:"speech"`
}

func observerDefaults() map[string]any {
	return map[string]any{
		"node":                   "observer",
		"log.level":              "info",
		"log.format":             "console",
		"http.addr":              ":5001",
		"edge.url":               "",
		"edge.poll_interval":     "5s",
		"edge.request_timeout":   "10s",
		"edge.buzzer_pulse":      "5s",
		"edge.control":           true,
		"redis.addr":             "",
		"redis.password":         "",
		"redis.db":               0,
		"redis.key_prefix":       "hazard:episode:",
		"twilio.base_url":        "https://api.twilio.com",
		"twilio.account_sid":     "",
		"twilio.auth_token":      "",
		"twilio.from":            "",
		"twilio.to":              "",
		"twilio.timeout":         "10s",
		"speech.command":         "espeak",
		"speech.args":            []string{},
		"speech.timeout":         "15s",
		"notify.flag_ttl":        "2m",
		"notify.channel_timeout": "30s",
		"notify.sms": map[string]string{
			"gas": "🚨 Gas leak detected! Please check immediately.",
			"ir":  "🚨 Intrusion detected! Please check immediately.",
		},
		"notify.speech": map[string]string{
			"gas": "Gas detected! Alert sent.",
			"ir":  "Intrusion detected! Alert sent.",
		},
	}
}

// ObserverFlags returns the flag set understood by LoadObserver.
func ObserverFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("hazard-observer", pflag.ContinueOnError)
	fs.String("config", "", "path to hazard-observer.yaml")
	fs.String("edge", "", "edge base URL to poll (empty disables polling)")
	fs.String("http", "", "HTTP alert intake address")
	fs.String("redis", "", "Redis address for episode flags (empty keeps them in memory)")
	fs.String("log-level", "", "debug, info, warn or error")
	return fs
}

var observerFlagKeys = map[string]string{
	"edge":      "edge.url",
	"http":      "http.addr",
	"redis":     "redis.addr",
	"log-level": "log.level",
}

// LoadObserver builds the observer configuration. fs may be nil.
func LoadObserver(fs *pflag.FlagSet) (*Observer, error) {
	v, err := newViper(configPath(fs), observerDefaults())
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs, observerFlagKeys); err != nil {
		return nil, err
	}

	var cfg Observer
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode observer config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("observer config: %w", err)
	}
	return &cfg, nil
}

func (c *Observer) validate() error {
	if c.Node == "" {
		return errNoNode
	}
	if err := validateLog(c.Log); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Edge.URL != "" {
		if _, err := url.ParseRequestURI(c.Edge.URL); err != nil {
			return fmt.Errorf("edge.url: %w", err)
		}
		if c.Edge.PollInterval <= 0 {
			return fmt.Errorf("edge.poll_interval must be positive")
		}
		if c.Edge.Control && c.Edge.RequestTimeout <= c.Edge.BuzzerPulse {
			return fmt.Errorf("edge.request_timeout %s must exceed edge.buzzer_pulse %s",
				c.Edge.RequestTimeout, c.Edge.BuzzerPulse)
		}
	}
	if c.Notify.FlagTTL <= 0 {
		return fmt.Errorf("notify.flag_ttl must be positive")
	}
	if c.Notify.ChannelTimeout <= 0 {
		return fmt.Errorf("notify.channel_timeout must be positive")
	}
	if c.Edge.URL != "" && c.Edge.Control && c.Notify.ChannelTimeout < c.Edge.RequestTimeout {
		return fmt.Errorf("notify.channel_timeout must not be shorter than edge.request_timeout")
	}
	if c.Twilio.Enabled() {
		if c.Twilio.AuthToken == "" || c.Twilio.From == "" || c.Twilio.To == "" {
			return fmt.Errorf("twilio: auth_token, from and to are required with account_sid")
		}
	}
	return nil
}
