package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string        `json:"event,omitempty"`
	Reason         string        `json:"reason,omitempty"`
	Node           string        `json:"node"`
	HazardDetected bool          `json:"hazard_detected"`
	UptimeSeconds  int64         `json:"uptime_seconds"`
	StartTime      string        `json:"start_time"`
	Timestamp      string        `json:"timestamp"`
	MQTT           MQTTStatus    `json:"mqtt"`
	Sensors        []SensorJSON  `json:"sensors"`
	Actuators      ActuatorsJSON `json:"actuators"`
	Distance       *DistanceJSON `json:"distance,omitempty"`
	Dispatch       DispatchJSON  `json:"dispatch"`
	Network        *NetworkJSON  `json:"network,omitempty"`
	Config         ConfigJSON    `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// SensorJSON is the JSON representation of one sensor.
type SensorJSON struct {
	ID             string       `json:"id"`
	Hazard         string       `json:"hazard"`
	State          string       `json:"state"`
	HazardDetected bool         `json:"hazard_detected"`
	Value          float64      `json:"value"`
	LastReadingAt  string       `json:"last_reading_at,omitempty"`
	Error          string       `json:"error,omitempty"`
	Episode        *EpisodeJSON `json:"episode,omitempty"`
	Counts         CountsJSON   `json:"episode_counts"`
}

// EpisodeJSON describes a live hazard episode.
type EpisodeJSON struct {
	StartedAt       string `json:"started_at"`
	DurationSeconds int64  `json:"duration_seconds"`
	Confirmed       bool   `json:"confirmed"`
}

// CountsJSON is the JSON representation of episode counts.
type CountsJSON struct {
	Started   int `json:"started"`
	Confirmed int `json:"confirmed"`
	Cleared   int `json:"cleared"`
}

// ActuatorsJSON reports output levels.
type ActuatorsJSON struct {
	Buzzer string `json:"buzzer"`
	LED    string `json:"led"`
}

// DistanceJSON is the latest distance measurement.
type DistanceJSON struct {
	CM         float64 `json:"cm"`
	MeasuredAt string  `json:"measured_at"`
}

// DispatchJSON tallies alert deliveries.
type DispatchJSON struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs int64              `json:"heartbeat_ms"`
	Broker      string             `json:"broker"`
	HTTPAddr    string             `json:"http_addr"`
	ObserverURL string             `json:"observer_url"`
	Sensors     []SensorConfigJSON `json:"sensors"`
}

// SensorConfigJSON is one sensor's cadence.
type SensorConfigJSON struct {
	ID            string `json:"id"`
	Hazard        string `json:"hazard"`
	PollMs        int64  `json:"poll_ms"`
	SustainMs     int64  `json:"sustain_ms"`
	BuzzerPulseMs int64  `json:"buzzer_pulse_ms"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildSensor(ss SensorStatus) SensorJSON {
	state := string(ss.State)
	if state == "" {
		state = "IDLE"
	}
	out := SensorJSON{
		ID:             ss.ID,
		Hazard:         ss.Hazard,
		State:          state,
		HazardDetected: ss.LastReading.Hazard,
		Value:          ss.LastReading.Value,
		LastReadingAt:  formatTime(ss.LastReading.Timestamp),
		Error:          ss.LastError,
		Counts: CountsJSON{
			Started:   ss.Counts.Started,
			Confirmed: ss.Counts.Confirmed,
			Cleared:   ss.Counts.Cleared,
		},
	}
	if ss.InEpisode {
		out.Episode = &EpisodeJSON{
			StartedAt:       formatTime(ss.Episode.StartedAt),
			DurationSeconds: int64(ss.Episode.Duration().Truncate(time.Second).Seconds()),
			Confirmed:       ss.Episode.Confirmed,
		}
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Node:           snap.Config.Node,
		HazardDetected: snap.HazardDetected(),
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Sensors:        make([]SensorJSON, 0, len(snap.Sensors)),
		Actuators:      ActuatorsJSON{Buzzer: snap.Buzzer, LED: snap.LED},
		Dispatch:       DispatchJSON{Delivered: snap.Dispatch.Delivered, Failed: snap.Dispatch.Failed},
		Config: ConfigJSON{
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			ObserverURL: snap.Config.ObserverURL,
			Sensors:     make([]SensorConfigJSON, 0, len(snap.Config.Sensors)),
		},
	}

	for _, ss := range snap.Sensors {
		inner.Sensors = append(inner.Sensors, buildSensor(ss))
	}
	for _, sc := range snap.Config.Sensors {
		inner.Config.Sensors = append(inner.Config.Sensors, SensorConfigJSON(sc))
	}
	if snap.DistanceCM != nil {
		inner.Distance = &DistanceJSON{CM: *snap.DistanceCM, MeasuredAt: formatTime(snap.DistanceAt)}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
