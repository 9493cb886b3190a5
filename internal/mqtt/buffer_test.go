package mqtt

import (
	"testing"
)

func pushN(rb *ringBuffer, from, n int) (reported int) {
	for i := from; i < from+n; i++ {
		if rb.push(bufferedMsg{topic: "remoteio/dev1/samples", payload: []byte{byte(i)}}) {
			reported++
		}
	}
	return reported
}

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	if got := rb.drainAll(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferFIFO(t *testing.T) {
	rb := newRingBuffer(10)
	if reported := pushN(rb, 0, 5); reported != 0 {
		t.Errorf("no overflow expected, reported %d", reported)
	}
	if got := string(payloads(rb.drainAll())); got != "\x00\x01\x02\x03\x04" {
		t.Errorf("order: got %q", got)
	}
	if rb.len() != 0 {
		t.Errorf("expected len 0 after drain, got %d", rb.len())
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5)

	// 0..7 into 5 slots: the oldest three go.
	reported := pushN(rb, 0, 8)
	if reported != 1 {
		t.Errorf("overflow should be reported once per drain, got %d", reported)
	}
	if got := string(payloads(rb.drainAll())); got != "\x03\x04\x05\x06\x07" {
		t.Errorf("kept: got %q", got)
	}

	// A drain re-arms the report.
	if reported := pushN(rb, 0, 6); reported != 1 {
		t.Errorf("overflow after drain: reported %d, want 1", reported)
	}
}

func TestRingBufferWrapAcrossDrains(t *testing.T) {
	rb := newRingBuffer(5)
	pushN(rb, 0, 3)
	rb.drainAll()

	pushN(rb, 10, 4)
	if got := string(payloads(rb.drainAll())); got != "\x0a\x0b\x0c\x0d" {
		t.Errorf("second cycle: got %q", got)
	}
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := newRingBuffer(0)
	pushN(rb, 0, 3)
	if got := payloads(rb.drainAll()); len(got) != 1 || got[0] != 2 {
		t.Errorf("got %v, want [2]", got)
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(bufferedMsg{
		topic:    "remoteio/dev1/system",
		payload:  []byte(`{"system":{}}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != "remoteio/dev1/system" || string(m.payload) != `{"system":{}}` || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
