// internal/tdma/packet_test.go
package tdma

import (
	"bytes"
	"errors"
	"testing"
)

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{Source: 3, Dest: 5, Admin: []byte{0, 1, 0x40}, Payload: []byte("data")}
	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode err=%v", err)
	}
	want := []byte{3, 5, 0, 3, 0, 4, 0, 1, 0x40, 'd', 'a', 't', 'a'}
	if !bytes.Equal(raw, want) {
		t.Fatalf("expected % x, got % x", want, raw)
	}

	got, err := DecodePacket(raw)
	if err != nil {
		t.Fatalf("DecodePacket err=%v", err)
	}
	if got.Source != 3 || got.Dest != 5 || !bytes.Equal(got.Admin, p.Admin) || !bytes.Equal(got.Payload, p.Payload) {
		t.Fatalf("unexpected packet %+v", got)
	}
}

func TestDecodePacketErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"short", []byte{1, 2, 3}, ErrPacketTooShort},
		{"admin overruns", []byte{1, 0, 0, 5, 0, 0, 1}, ErrPacketLength},
		{"trailing bytes", []byte{1, 0, 0, 0, 0, 1, 9, 9}, ErrPacketLength},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodePacket(tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFifoBounded(t *testing.T) {
	q := newFifo[int](2)
	if !q.push(1) || !q.push(2) || q.push(3) {
		t.Fatalf("bound not enforced")
	}
	if v, _ := q.pop(); v != 1 {
		t.Fatalf("expected FIFO order")
	}
	if got := q.drain(); len(got) != 1 || got[0] != 2 || q.len() != 0 {
		t.Fatalf("drain returned %v", got)
	}
}
