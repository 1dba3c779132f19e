//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Chip hands out lines from a Linux GPIO character device and owns them
// until Close.
type Chip struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	inputs  []*gpiocdev.Line
	outputs []*gpiocdev.Line
}

// OpenChip opens the named GPIO chip (usually "gpiochip0" on a Raspberry Pi).
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// RequestInput requests the line at offset as an input.
func (c *Chip) RequestInput(offset int) (Input, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsInput)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	c.mu.Lock()
	c.inputs = append(c.inputs, line)
	c.mu.Unlock()
	return line, nil
}

// RequestOutput requests the line at offset as an output, initially low.
func (c *Chip) RequestOutput(offset int) (Output, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(Low))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	c.mu.Lock()
	c.outputs = append(c.outputs, line)
	c.mu.Unlock()
	return line, nil
}

// Close drives every output low, then reconfigures all lines to input with
// pull-down (matching Pi boot defaults) before releasing them.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, line := range c.outputs {
		if err := line.SetValue(Low); err != nil {
			errs = append(errs, fmt.Errorf("drive pin %d low: %w", line.Offset(), err))
		}
	}
	for _, line := range append(c.outputs, c.inputs...) {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", line.Offset(), err))
		}
	}
	c.outputs, c.inputs = nil, nil

	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
