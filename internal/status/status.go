// Package status provides a thread-safe status tracker for the edge daemon.
// It is read by HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// SensorConfig is one monitor loop's cadence, for display.
type SensorConfig struct {
	ID            string
	Hazard        string
	PollMs        int64
	SustainMs     int64
	BuzzerPulseMs int64
}

// Config contains daemon configuration for display.
type Config struct {
	Node        string
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	ObserverURL string
	Sensors     []SensorConfig
}

// SensorStatus is the latest view of one monitor loop.
type SensorStatus struct {
	ID          string
	Hazard      string
	State       logic.MonitorState
	LastReading logic.Reading
	LastError   string
	InEpisode   bool
	Episode     logic.Episode
	Counts      logic.EpisodeCounts
}

// DispatchCounts tallies alert delivery results.
type DispatchCounts struct {
	Delivered int
	Failed    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Sensors       []SensorStatus // sorted by ID
	Buzzer        string
	LED           string
	DistanceCM    *float64
	DistanceAt    time.Time
	Dispatch      DispatchCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// HazardDetected reports whether any sensor's last reading was positive.
func (s Snapshot) HazardDetected() bool {
	for _, ss := range s.Sensors {
		if ss.LastReading.Hazard {
			return true
		}
	}
	return false
}

// Hazards reports, per hazard type, whether any of its sensors' last
// reading was positive.
func (s Snapshot) Hazards() map[string]bool {
	out := make(map[string]bool)
	for _, ss := range s.Sensors {
		out[ss.Hazard] = out[ss.Hazard] || ss.LastReading.Hazard
	}
	return out
}

// AnalogValue returns the most recent analog reading, if any sensor has one.
func (s Snapshot) AnalogValue() (float64, bool) {
	var (
		latest time.Time
		value  float64
		ok     bool
	)
	for _, ss := range s.Sensors {
		r := ss.LastReading
		if r.Kind == logic.KindAnalog && r.Timestamp.After(latest) {
			latest, value, ok = r.Timestamp, r.Value, true
		}
	}
	return value, ok
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	sensors map[string]SensorStatus
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Buzzer:    "off",
			LED:       "off",
		},
		sensors: make(map[string]SensorStatus),
	}
}

// UpdateSensor replaces the status of one sensor.
// Called by the sensor's monitor loop after every poll.
func (t *Tracker) UpdateSensor(s SensorStatus) {
	t.mu.Lock()
	t.sensors[s.ID] = s
	t.mu.Unlock()
}

// SetActuator records an output level ("on" or "off").
func (t *Tracker) SetActuator(output, level string) {
	t.mu.Lock()
	switch output {
	case "buzzer":
		t.snap.Buzzer = level
	case "led":
		t.snap.LED = level
	}
	t.mu.Unlock()
}

// SetDistance records the latest distance measurement.
func (t *Tracker) SetDistance(cm float64, at time.Time) {
	t.mu.Lock()
	t.snap.DistanceCM = &cm
	t.snap.DistanceAt = at
	t.mu.Unlock()
}

// RecordDispatch counts an alert delivery result.
func (t *Tracker) RecordDispatch(delivered bool) {
	t.mu.Lock()
	if delivered {
		t.snap.Dispatch.Delivered++
	} else {
		t.snap.Dispatch.Failed++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Sensors = make([]SensorStatus, 0, len(t.sensors))
	for _, ss := range t.sensors {
		s.Sensors = append(s.Sensors, ss)
	}
	if t.snap.DistanceCM != nil {
		d := *t.snap.DistanceCM
		s.DistanceCM = &d
	}
	t.mu.RUnlock()

	sort.Slice(s.Sensors, func(i, j int) bool { return s.Sensors[i].ID < s.Sensors[j].ID })
	s.Now = time.Now()
	return s
}
