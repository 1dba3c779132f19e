package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadEdgeDefaults(t *testing.T) {
	cfg, err := LoadEdge(nil)
	require.NoError(t, err)

	assert.Equal(t, "edge", cfg.Node)
	assert.Equal(t, 17, cfg.GPIO.Trigger)
	assert.Equal(t, 27, cfg.GPIO.Echo)
	assert.Equal(t, 23, cfg.GPIO.Buzzer)
	assert.Equal(t, 18, cfg.GPIO.LED)
	assert.Equal(t, 40*time.Millisecond, cfg.Ranger.EchoTimeout)
	assert.Equal(t, 3, cfg.Dispatch.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, 5*time.Second, cfg.HTTP.BuzzerPulse)
	assert.Equal(t, 10*time.Minute, cfg.Journal.MaxAge)
	assert.NotEqual(t, "http://127.0.0.1:5000", cfg.Observer.URL, "default observer must not be this node")

	require.Len(t, cfg.Sensors, 1)
	s := cfg.Sensors[0]
	assert.Equal(t, "gas", s.ID)
	assert.Equal(t, SourceBinary, s.Source)
	assert.Equal(t, 22, s.Pin)
	assert.True(t, s.ActiveLow)
	assert.Equal(t, time.Second, s.PollInterval)
	assert.Equal(t, 15*time.Second, s.Sustain())
	assert.Equal(t, 5*time.Second, s.BuzzerPulseDuration)
}

func TestLoadEdgeFile(t *testing.T) {
	path := writeConfig(t, "hazard-edge.yaml", `
node: porch
observer:
  url: http://10.0.0.5:5000
adc:
  enabled: true
sensors:
  - id: ir-door
    hazard: ir
    pin: 21
    active_low: true
    sustain_duration: 10s
    buzzer_pulse_duration: 3s
  - id: gas-level
    hazard: gas
    source: analog
    channel: 0
    poll_interval: 2s
`)
	fs := EdgeFlags()
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := LoadEdge(fs)
	require.NoError(t, err)

	assert.Equal(t, "porch", cfg.Node)
	assert.Equal(t, "http://10.0.0.5:5000", cfg.Observer.URL)
	require.Len(t, cfg.Sensors, 2)

	ir := cfg.Sensors[0]
	assert.Equal(t, HazardIR, ir.Hazard)
	assert.Equal(t, SourceBinary, ir.Source)
	assert.Equal(t, 10*time.Second, ir.Sustain())
	assert.Equal(t, 3*time.Second, ir.BuzzerPulseDuration)
	assert.Equal(t, time.Second, ir.PollInterval)

	gas := cfg.Sensors[1]
	assert.Equal(t, SourceAnalog, gas.Source)
	assert.Equal(t, 2*time.Second, gas.PollInterval)
	assert.Equal(t, 400, gas.Threshold)
}

func TestLoadEdgePrecedence(t *testing.T) {
	path := writeConfig(t, "hazard-edge.yaml", `
node: from-file
mqtt:
  broker: tcp://file:1883
`)
	t.Setenv("HAZARD_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("HAZARD_DISPATCH_ATTEMPTS", "5")

	fs := EdgeFlags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--node", "from-flag"}))

	cfg, err := LoadEdge(fs)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.Node)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.Equal(t, 5, cfg.Dispatch.Attempts)
}

func TestLoadEdgeValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad hazard", "sensors:\n  - id: x\n    hazard: smoke\n"},
		{"bad source", "sensors:\n  - id: x\n    hazard: gas\n    source: sonar\n"},
		{"analog without adc", "sensors:\n  - id: x\n    hazard: gas\n    source: analog\n"},
		{"duplicate ids", "sensors:\n  - id: x\n    hazard: gas\n  - id: x\n    hazard: ir\n"},
		{"no sensors", "sensors: []\n"},
		{"zero attempts", "dispatch:\n  attempts: 0\n"},
		{"bad observer url", "observer:\n  url: not a url\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"telemetry without ranger", "ranger:\n  enabled: false\n"},
		{"observer is this node", "observer:\n  url: http://localhost:5000\nhttp:\n  addr: \":5000\"\n"},
		{"observer on own loopback addr", "observer:\n  url: http://127.0.0.1:8080/\nhttp:\n  addr: 127.0.0.1:8080\n"},
		{"negative sustain", "sensors:\n  - id: x\n    hazard: gas\n    sustain_duration: -1s\n"},
		{"negative journal age", "journal:\n  max_age: -1m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "hazard-edge.yaml", tt.yaml)
			fs := EdgeFlags()
			require.NoError(t, fs.Parse([]string{"--config", path}))

			_, err := LoadEdge(fs)
			assert.Error(t, err)
		})
	}
}

func TestLoadEdgeExplicitZeroSustain(t *testing.T) {
	path := writeConfig(t, "hazard-edge.yaml", `
sensors:
  - id: bench
    hazard: gas
    source: simulated
    sustain_duration: 0
  - id: door
    hazard: ir
`)
	fs := EdgeFlags()
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := LoadEdge(fs)
	require.NoError(t, err)

	require.Len(t, cfg.Sensors, 2)
	require.NotNil(t, cfg.Sensors[0].SustainDuration)
	assert.Equal(t, time.Duration(0), cfg.Sensors[0].Sustain())
	assert.Equal(t, 15*time.Second, cfg.Sensors[1].Sustain())
}

func TestLoadEdgeObserverOnAnotherPort(t *testing.T) {
	path := writeConfig(t, "hazard-edge.yaml", "observer:\n  url: http://127.0.0.1:5001\nhttp:\n  addr: \":5000\"\n")
	fs := EdgeFlags()
	require.NoError(t, fs.Parse([]string{"--config", path}))

	_, err := LoadEdge(fs)
	assert.NoError(t, err)
}

func TestLoadEdgeMissingFile(t *testing.T) {
	fs := EdgeFlags()
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))

	_, err := LoadEdge(fs)
	assert.Error(t, err)
}

func TestLoadObserverDefaults(t *testing.T) {
	cfg, err := LoadObserver(nil)
	require.NoError(t, err)

	assert.Equal(t, ":5001", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Edge.RequestTimeout)
	assert.Greater(t, cfg.Edge.RequestTimeout, cfg.Edge.BuzzerPulse)
	assert.Equal(t, 30*time.Second, cfg.Notify.ChannelTimeout)
	assert.Equal(t, 5*time.Second, cfg.Edge.PollInterval)
	assert.Empty(t, cfg.Edge.URL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Twilio.Enabled())
	assert.Equal(t, "espeak", cfg.Speech.Command)
	assert.Equal(t, 2*time.Minute, cfg.Notify.FlagTTL)
	assert.Equal(t, "Gas detected! Alert sent.", cfg.Notify.Speech["gas"])
	assert.Contains(t, cfg.Notify.SMS["gas"], "Gas leak detected")
}

func TestLoadObserverFile(t *testing.T) {
	path := writeConfig(t, "hazard-observer.yaml", `
edge:
  url: http://192.168.1.100:5000
  poll_interval: 2s
redis:
  addr: localhost:6379
twilio:
  account_sid: AC123
  auth_token: secret
  from: "+15550000000"
  to: "+15551111111"
speech:
  command: say
  args: ["-v", "Alex"]
`)
	fs := ObserverFlags()
	require.NoError(t, fs.Parse([]string{"--config", path, "--redis", "redis:6380"}))

	cfg, err := LoadObserver(fs)
	require.NoError(t, err)

	assert.Equal(t, "http://192.168.1.100:5000", cfg.Edge.URL)
	assert.Equal(t, 2*time.Second, cfg.Edge.PollInterval)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.True(t, cfg.Twilio.Enabled())
	assert.Equal(t, "say", cfg.Speech.Command)
	assert.Equal(t, []string{"-v", "Alex"}, cfg.Speech.Args)
}

func TestLoadObserverTwilioIncomplete(t *testing.T) {
	path := writeConfig(t, "hazard-observer.yaml", "twilio:\n  account_sid: AC123\n")
	fs := ObserverFlags()
	require.NoError(t, fs.Parse([]string{"--config", path}))

	_, err := LoadObserver(fs)
	assert.Error(t, err)
}

func TestLoadObserverEdgeTimeouts(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		ok   bool
	}{
		{"timeout shorter than pulse", "edge:\n  url: http://edge:5000\n  request_timeout: 3s\n  buzzer_pulse: 5s\n", false},
		{"timeout equal to pulse", "edge:\n  url: http://edge:5000\n  request_timeout: 5s\n  buzzer_pulse: 5s\n", false},
		{"control disabled", "edge:\n  url: http://edge:5000\n  request_timeout: 3s\n  control: false\n", true},
		{"channel timeout too short", "edge:\n  url: http://edge:5000\nnotify:\n  channel_timeout: 2s\n", false},
		{"zero channel timeout", "notify:\n  channel_timeout: 0s\n", false},
		{"longer pulse with longer timeout", "edge:\n  url: http://edge:5000\n  request_timeout: 20s\n  buzzer_pulse: 12s\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "hazard-observer.yaml", tt.yaml)
			fs := ObserverFlags()
			require.NoError(t, fs.Parse([]string{"--config", path}))

			_, err := LoadObserver(fs)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
