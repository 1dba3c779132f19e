package dispatch

import "encoding/json"

// Readings is the edge's current sensor view, served at /get_data and polled
// by the observer.
type Readings struct {
	DistanceCM     *float64 `json:"distance_cm"`
	HazardDetected bool     `json:"hazard_detected"`
	// HazardValue is the analog gas level, when an ADC is fitted.
	HazardValue *float64 `json:"hazard_value,omitempty"`
	// Hazards reports each hazard type separately.
	Hazards map[string]bool `json:"hazards,omitempty"`
}

// Detected returns the per-hazard verdicts. A payload without a hazards map
// is treated as a gas-only edge.
func (r Readings) Detected() map[string]bool {
	if len(r.Hazards) > 0 {
		return r.Hazards
	}
	return map[string]bool{HazardGas: r.HazardDetected}
}

// UnmarshalJSON also accepts the legacy {"distance","gas_detected","gas_value"}
// body.
func (r *Readings) UnmarshalJSON(b []byte) error {
	type plain Readings
	var aux struct {
		plain
		Distance    *float64 `json:"distance"`
		GasDetected *bool    `json:"gas_detected"`
		GasValue    *float64 `json:"gas_value"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Readings(aux.plain)
	if r.DistanceCM == nil {
		r.DistanceCM = aux.Distance
	}
	if aux.GasDetected != nil {
		r.HazardDetected = r.HazardDetected || *aux.GasDetected
	}
	if r.HazardValue == nil {
		r.HazardValue = aux.GasValue
	}
	return nil
}
