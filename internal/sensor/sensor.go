// Package sensor adapts physical sensing to hazard sources: binary pins,
// analog thresholds, and a simulated always-on source for bench testing.
package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/adc"
	"github.com/sweeney/hazard-sentinel/internal/gpio"
	"github.com/sweeney/hazard-sentinel/internal/logic"
)

// Source produces one reading per call.
type Source interface {
	Sample(ctx context.Context) (logic.Reading, error)
}

// Sampler adapts a Source to the debouncer's boolean sampler, passing every
// reading to record before reducing it to its hazard verdict.
func Sampler(src Source, record func(logic.Reading)) logic.Sampler {
	return func(ctx context.Context) (bool, error) {
		r, err := src.Sample(ctx)
		if err != nil {
			return false, err
		}
		if record != nil {
			record(r)
		}
		return r.Hazard, nil
	}
}

// Binary reads a digital sensor output such as the MQ-2 DO pin or an IR
// obstacle module.
type Binary struct {
	pin       gpio.Input
	activeLow bool
	now       func() time.Time
}

// NewBinary creates a binary source. With activeLow, a raw 0 means hazard.
func NewBinary(pin gpio.Input, activeLow bool) *Binary {
	return &Binary{pin: pin, activeLow: activeLow, now: time.Now}
}

// Sample reads the pin.
func (b *Binary) Sample(ctx context.Context) (logic.Reading, error) {
	raw, err := b.pin.Value()
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read hazard pin: %w", err)
	}
	hazard := raw == gpio.High
	if b.activeLow {
		hazard = raw == gpio.Low
	}
	return logic.Reading{
		Timestamp: b.now(),
		Kind:      logic.KindBinary,
		Value:     float64(raw),
		Hazard:    hazard,
	}, nil
}

// Analog compares an ADC channel against a threshold.
type Analog struct {
	reader    adc.Reader
	channel   int
	threshold int
	now       func() time.Time
}

// NewAnalog creates an analog source; readings at or above threshold are
// hazards.
func NewAnalog(reader adc.Reader, channel, threshold int) *Analog {
	return &Analog{reader: reader, channel: channel, threshold: threshold, now: time.Now}
}

// Sample performs one conversion.
func (a *Analog) Sample(ctx context.Context) (logic.Reading, error) {
	v, err := a.reader.Read(a.channel)
	if err != nil {
		return logic.Reading{}, fmt.Errorf("read adc channel %d: %w", a.channel, err)
	}
	return logic.Reading{
		Timestamp: a.now(),
		Kind:      logic.KindAnalog,
		Value:     float64(v),
		Hazard:    v >= a.threshold,
	}, nil
}

// Simulated always reports the configured verdict.
type Simulated struct {
	Hazard bool
	Value  float64
	now    func() time.Time
}

// NewSimulated creates a simulated source.
func NewSimulated(hazard bool) *Simulated {
	return &Simulated{Hazard: hazard, now: time.Now}
}

// Sample returns a synthetic reading.
func (s *Simulated) Sample(ctx context.Context) (logic.Reading, error) {
	return logic.Reading{
		Timestamp: s.now(),
		Kind:      logic.KindBinary,
		Value:     s.Value,
		Hazard:    s.Hazard,
	}, nil
}
