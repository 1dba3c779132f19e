// Package adc reads analog channels from an MCP3008 10-bit converter on SPI.
package adc

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Reader reads a raw analog value (0-1023) from a channel.
type Reader interface {
	Read(channel int) (int, error)
}

// MaxValue is the full-scale reading of a 10-bit converter.
const MaxValue = 1023

const (
	numChannels = 8
	clockSpeed  = 1350 * physic.KiloHertz
)

// MCP3008 talks to the converter over an SPI connection.
type MCP3008 struct {
	mu   sync.Mutex
	port spi.PortCloser
	conn spi.Conn
}

// OpenMCP3008 opens the named SPI port ("" selects the first one available).
func OpenMCP3008(port string) (*MCP3008, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", port, err)
	}
	c, err := p.Connect(clockSpeed, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", port, err)
	}
	return &MCP3008{port: p, conn: c}, nil
}

// NewMCP3008 wraps an existing connection. Used by tests.
func NewMCP3008(conn spi.Conn) *MCP3008 {
	return &MCP3008{conn: conn}
}

// Read performs a single-ended conversion on channel.
func (m *MCP3008) Read(channel int) (int, error) {
	if channel < 0 || channel >= numChannels {
		return 0, fmt.Errorf("adc channel %d out of range", channel)
	}

	// Start bit, single-ended mode + channel, then clock out the result.
	w := []byte{1, byte(8+channel) << 4, 0}
	r := make([]byte, len(w))

	m.mu.Lock()
	err := m.conn.Tx(w, r)
	m.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("spi transfer: %w", err)
	}
	return decode(r), nil
}

func decode(r []byte) int {
	return int(r[1]&3)<<8 | int(r[2])
}

// Close releases the SPI port.
func (m *MCP3008) Close() error {
	if m.port == nil {
		return nil
	}
	return m.port.Close()
}

// FakeReader returns fixed values per channel.
type FakeReader struct {
	mu     sync.Mutex
	Values map[int]int
	Err    error
}

// Read returns the configured value for channel.
func (f *FakeReader) Read(channel int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Values[channel], nil
}

// Set changes the value returned for channel.
func (f *FakeReader) Set(channel, value int) {
	f.mu.Lock()
	if f.Values == nil {
		f.Values = make(map[int]int)
	}
	f.Values[channel] = value
	f.mu.Unlock()
}
