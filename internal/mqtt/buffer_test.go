package mqtt

import (
	"testing"

	"go.uber.org/zap"
)

func pushN(rb *ringBuffer, from, to int) {
	for i := from; i < to; i++ {
		rb.push(bufferedMsg{topic: "hazard/test/alerts", payload: []byte{byte(i)}})
	}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10, zap.NewNop())
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferOrder(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushed   int
		first    byte
		dropped  int
	}{
		{"partial", 10, 5, 0, 0},
		{"exactly full", 5, 5, 0, 0},
		{"overflow drops oldest", 5, 8, 3, 3},
		{"wraps twice", 3, 10, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := newRingBuffer(tt.capacity, zap.NewNop())
			pushN(rb, 0, tt.pushed)

			if rb.dropped != tt.dropped {
				t.Errorf("dropped: got %d, want %d", rb.dropped, tt.dropped)
			}

			got := rb.drainAll()
			want := tt.pushed
			if want > tt.capacity {
				want = tt.capacity
			}
			if len(got) != want {
				t.Fatalf("expected %d items, got %d", want, len(got))
			}
			for i, msg := range got {
				if msg.payload[0] != tt.first+byte(i) {
					t.Errorf("item %d: expected payload %d, got %d", i, tt.first+byte(i), msg.payload[0])
				}
			}
			if rb.dropped != 0 || rb.len() != 0 {
				t.Errorf("drain should reset buffer, len=%d dropped=%d", rb.len(), rb.dropped)
			}
		})
	}
}

func TestRingBufferMultipleCycles(t *testing.T) {
	rb := newRingBuffer(5, zap.NewNop())

	pushN(rb, 0, 3)
	if got := rb.drainAll(); len(got) != 3 {
		t.Fatalf("cycle 1: expected 3 items, got %d", len(got))
	}

	pushN(rb, 10, 14)
	got := rb.drainAll()
	if len(got) != 4 {
		t.Fatalf("cycle 2: expected 4 items, got %d", len(got))
	}
	for i, msg := range got {
		if want := byte(10 + i); msg.payload[0] != want {
			t.Errorf("cycle 2 item %d: expected %d, got %d", i, want, msg.payload[0])
		}
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10, zap.NewNop())
	rb.push(bufferedMsg{
		topic:    "hazard/porch/system",
		payload:  []byte(`{"system":{}}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	if got[0].topic != "hazard/porch/system" {
		t.Errorf("topic: got %s", got[0].topic)
	}
	if string(got[0].payload) != `{"system":{}}` {
		t.Errorf("payload: got %s", got[0].payload)
	}
	if got[0].qos != 1 || !got[0].retained {
		t.Errorf("qos/retained not preserved: %+v", got[0])
	}
}
