package adc

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"
)

// recordConn is an spi.Conn that records the last write and replies with
// a fixed response.
type recordConn struct {
	w     []byte
	reply []byte
	err   error
}

func (c *recordConn) String() string                 { return "record" }
func (c *recordConn) Duplex() conn.Duplex            { return conn.Full }
func (c *recordConn) TxPackets(p []spi.Packet) error { return errors.New("not implemented") }
func (c *recordConn) Tx(w, r []byte) error {
	c.w = append([]byte(nil), w...)
	if c.err != nil {
		return c.err
	}
	copy(r, c.reply)
	return nil
}

func TestMCP3008Read(t *testing.T) {
	c := &recordConn{reply: []byte{0, 0x02, 0x9A}}
	m := NewMCP3008(c)

	v, err := m.Read(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0x29A {
		t.Errorf("expected %d, got %d", 0x29A, v)
	}
	if c.w[0] != 1 || c.w[1] != 0x80 || c.w[2] != 0 {
		t.Errorf("unexpected command bytes % x", c.w)
	}
}

func TestMCP3008ReadChannelSelect(t *testing.T) {
	c := &recordConn{reply: []byte{0, 0xFF, 0xFF}}
	m := NewMCP3008(c)

	v, err := m.Read(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != MaxValue {
		t.Errorf("expected full scale, got %d", v)
	}
	if c.w[1] != 0xB0 {
		t.Errorf("expected channel byte 0xB0, got %#x", c.w[1])
	}
}

func TestMCP3008ReadErrors(t *testing.T) {
	m := NewMCP3008(&recordConn{err: errors.New("bus fault")})

	if _, err := m.Read(0); err == nil {
		t.Error("expected transfer error")
	}
	if _, err := m.Read(8); err == nil {
		t.Error("expected out of range error")
	}
}

func TestFakeReader(t *testing.T) {
	f := &FakeReader{}
	f.Set(0, 512)

	v, err := f.Read(0)
	if err != nil || v != 512 {
		t.Errorf("expected 512, got %d (%v)", v, err)
	}
}
