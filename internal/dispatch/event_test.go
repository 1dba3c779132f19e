package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlertEvent(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	a := NewAlertEvent("gas", HazardGas, nil, at)
	b := NewAlertEvent("gas", HazardGas, nil, at)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, time.UTC, a.DetectedAt.Location())
	assert.Equal(t, "/gas_alert", a.Path())
	assert.Equal(t, "/ir_alert", AlertPath(HazardIR))
}

func TestAlertEventAcceptsLegacyDistance(t *testing.T) {
	var ev AlertEvent
	require.NoError(t, json.Unmarshal([]byte(`{"distance": 12.34}`), &ev))
	require.NotNil(t, ev.DistanceCM)
	assert.Equal(t, 12.34, *ev.DistanceCM)

	var cur AlertEvent
	require.NoError(t, json.Unmarshal([]byte(`{"distance_cm": 1.5, "distance": 9, "sensor_id": "ir"}`), &cur))
	assert.Equal(t, 1.5, *cur.DistanceCM)
	assert.Equal(t, "ir", cur.SensorID)

	var none AlertEvent
	require.NoError(t, json.Unmarshal([]byte(`{}`), &none))
	assert.Nil(t, none.DistanceCM)
}

func TestTelemetryDecoding(t *testing.T) {
	var tel Telemetry
	require.NoError(t, json.Unmarshal([]byte(`{"distance": 3.5}`), &tel))
	assert.Equal(t, 3.5, tel.DistanceCM)

	require.NoError(t, json.Unmarshal([]byte(`{"distance_cm": 0}`), &tel))
	assert.Equal(t, 0.0, tel.DistanceCM)

	assert.Error(t, json.Unmarshal([]byte(`{"sensor_id": "x"}`), &tel))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "delivered after 2 attempt(s)", Delivered(2).String())
	assert.Equal(t, "failed after 3 attempt(s): timeout", Failed(3, "timeout").String())
}

func TestReadingsDecoding(t *testing.T) {
	var legacy Readings
	require.NoError(t, json.Unmarshal([]byte(`{"distance": 20.5, "gas_detected": true, "gas_value": 612}`), &legacy))
	require.NotNil(t, legacy.DistanceCM)
	assert.Equal(t, 20.5, *legacy.DistanceCM)
	assert.True(t, legacy.HazardDetected)
	require.NotNil(t, legacy.HazardValue)
	assert.Equal(t, 612.0, *legacy.HazardValue)
	assert.Equal(t, map[string]bool{HazardGas: true}, legacy.Detected())

	var cur Readings
	require.NoError(t, json.Unmarshal([]byte(`{"distance_cm": null, "hazard_detected": true, "hazards": {"gas": false, "ir": true}}`), &cur))
	assert.Nil(t, cur.DistanceCM)
	assert.Nil(t, cur.HazardValue)
	assert.Equal(t, map[string]bool{HazardGas: false, HazardIR: true}, cur.Detected())
}
