package gearlink

import (
	"bytes"
	"errors"
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		body []byte
		want byte
	}{
		{"small sum", []byte{1, 2, 3}, 6},
		{"wraps at 255", []byte{200, 100}, 45},
		{"all zero", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := make([]byte, PacketSize)
			copy(body, tt.body)
			if got := Checksum(body); got != tt.want {
				t.Errorf("Checksum(%v) = %d, want %d", tt.body, got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	pkt, err := Build(CmdSetGain, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(pkt) != PacketSize {
		t.Fatalf("packet length = %d, want %d", len(pkt), PacketSize)
	}
	if pkt[0] != CmdSetGain {
		t.Errorf("command byte = 0x%02x, want 0x%02x", pkt[0], CmdSetGain)
	}
	if !bytes.Equal(pkt[1:4], []byte{1, 2, 3}) {
		t.Errorf("payload bytes = %v, want [1 2 3]", pkt[1:4])
	}
	for i := 4; i < PacketSize-1; i++ {
		if pkt[i] != 0 {
			t.Errorf("padding byte %d = 0x%02x, want 0", i, pkt[i])
		}
	}
	// Command 0x10 plus payload 1+2+3 = 22.
	if pkt[PacketSize-1] != 22 {
		t.Errorf("checksum = %d, want 22", pkt[PacketSize-1])
	}
}

func TestBuildRejectsLongPayload(t *testing.T) {
	if _, err := Build(CmdPing, make([]byte, 15)); !errors.Is(err, ErrPayloadTooLong) {
		t.Errorf("Build with 15-byte payload: err = %v, want ErrPayloadTooLong", err)
	}
	if _, err := Build(CmdPing, make([]byte, 14)); err != nil {
		t.Errorf("Build with 14-byte payload: %v", err)
	}
}

func TestParseRoundTrip(t *testing.T) {
	pkt, err := Build(CmdSetLED, []byte{0xAA, 0x00, 0xBB})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Command != CmdSetLED {
		t.Errorf("command = 0x%02x, want 0x%02x", got.Command, CmdSetLED)
	}
	if !bytes.Equal(got.Payload, []byte{0xAA, 0x00, 0xBB}) {
		t.Errorf("payload = %v, want [aa 00 bb]", got.Payload)
	}
}

func TestParseEmptyPayload(t *testing.T) {
	pkt, _ := Build(CmdPing, nil)
	got, err := Parse(pkt)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Payload != nil {
		t.Errorf("payload = %v, want nil", got.Payload)
	}
}

func TestParseRejectsCorruption(t *testing.T) {
	pkt, _ := Build(CmdStartStream, []byte{7})
	pkt[1] ^= 0xFF
	if _, err := Parse(pkt); !errors.Is(err, ErrBadChecksum) {
		t.Errorf("Parse corrupted: err = %v, want ErrBadChecksum", err)
	}
	if _, err := Parse(pkt[:10]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("Parse short: err = %v, want ErrShortPacket", err)
	}
}
