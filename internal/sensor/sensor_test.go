package sensor

import (
	"context"
	"errors"
	"testing"

	"github.com/sweeney/hazard-sentinel/internal/adc"
	"github.com/sweeney/hazard-sentinel/internal/gpio"
	"github.com/sweeney/hazard-sentinel/internal/logic"
)

func TestBinaryActiveLow(t *testing.T) {
	pin := gpio.NewFakeInput(gpio.Low, gpio.High)
	src := NewBinary(pin, true)
	ctx := context.Background()

	r, err := src.Sample(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Hazard || r.Kind != logic.KindBinary || r.Value != 0 {
		t.Errorf("raw low should be a hazard: %+v", r)
	}

	r, _ = src.Sample(ctx)
	if r.Hazard {
		t.Errorf("raw high should be clear: %+v", r)
	}
}

func TestBinaryActiveHigh(t *testing.T) {
	src := NewBinary(gpio.NewFakeInput(gpio.High), false)

	r, _ := src.Sample(context.Background())
	if !r.Hazard {
		t.Errorf("raw high should be a hazard when active high: %+v", r)
	}
}

func TestBinaryReadError(t *testing.T) {
	pin := gpio.NewFakeInput(gpio.Low)
	pin.ReadError = errors.New("gone")

	if _, err := NewBinary(pin, true).Sample(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestAnalogThreshold(t *testing.T) {
	reader := &adc.FakeReader{}
	src := NewAnalog(reader, 0, 400)
	ctx := context.Background()

	tests := []struct {
		value  int
		hazard bool
	}{
		{0, false},
		{399, false},
		{400, true},
		{1023, true},
	}
	for _, tt := range tests {
		reader.Set(0, tt.value)
		r, err := src.Sample(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if r.Hazard != tt.hazard || r.Value != float64(tt.value) || r.Kind != logic.KindAnalog {
			t.Errorf("value %d: unexpected reading %+v", tt.value, r)
		}
	}
}

func TestAnalogReadError(t *testing.T) {
	reader := &adc.FakeReader{Err: errors.New("spi fault")}

	if _, err := NewAnalog(reader, 0, 1).Sample(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSimulated(t *testing.T) {
	r, err := NewSimulated(true).Sample(context.Background())
	if err != nil || !r.Hazard {
		t.Errorf("expected hazard reading, got %+v (%v)", r, err)
	}
}

func TestSamplerRecordsReadings(t *testing.T) {
	var got []logic.Reading
	sample := Sampler(NewSimulated(true), func(r logic.Reading) {
		got = append(got, r)
	})

	hazard, err := sample(context.Background())
	if err != nil || !hazard {
		t.Fatalf("expected hazard, got %v (%v)", hazard, err)
	}
	if len(got) != 1 {
		t.Errorf("expected one recorded reading, got %d", len(got))
	}
}

func TestSamplerPropagatesError(t *testing.T) {
	pin := gpio.NewFakeInput()
	sample := Sampler(NewBinary(pin, true), nil)

	if _, err := sample(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
