// Package gearlink frames commands for the wearable sensor's 16-byte
// control channel.
//
// Every packet is exactly 16 bytes: the command byte, up to 14 payload
// bytes (zero-padded), and a trailing modulo-255 checksum over the first
// 15 bytes. All 256 command values are structurally valid; meaning is up
// to the device firmware.
package gearlink

import (
	"errors"
	"fmt"
)

// PacketSize is the fixed wire size of every packet.
const PacketSize = 16

// MaxPayload is how many payload bytes fit between the command byte and
// the checksum.
const MaxPayload = PacketSize - 2

// Commands understood by the current sensor firmware.
const (
	CmdStartStream byte = 0x01
	CmdStopStream  byte = 0x02
	CmdSetGain     byte = 0x10
	CmdSetLED      byte = 0x11
	CmdBattery     byte = 0x20
	CmdPing        byte = 0xF0
)

// Errors returned by packet construction and parsing.
var (
	ErrPayloadTooLong = errors.New("gearlink: payload exceeds 14 bytes")
	ErrShortPacket    = errors.New("gearlink: packet shorter than 16 bytes")
	ErrBadChecksum    = errors.New("gearlink: checksum mismatch")
)

// Packet is a decoded control packet.
type Packet struct {
	Command byte
	Payload []byte // at most MaxPayload bytes, trailing zeros stripped
}

// Checksum returns the modulo-255 sum of the first 15 bytes of a packet
// body. The body must hold at least PacketSize-1 bytes.
func Checksum(body []byte) byte {
	var sum int
	for _, b := range body[:PacketSize-1] {
		sum += int(b)
	}
	return byte(sum % 255)
}

// Build frames a command and payload into a 16-byte packet. Payloads
// longer than MaxPayload are rejected with ErrPayloadTooLong.
func Build(command byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: got %d", ErrPayloadTooLong, len(payload))
	}
	pkt := make([]byte, PacketSize)
	pkt[0] = command
	copy(pkt[1:], payload)
	pkt[PacketSize-1] = Checksum(pkt)
	return pkt, nil
}

// Parse validates a 16-byte packet and decodes it. Trailing payload
// zeros are stripped; a payload of all zeros decodes as empty.
func Parse(pkt []byte) (Packet, error) {
	if len(pkt) < PacketSize {
		return Packet{}, fmt.Errorf("%w: got %d", ErrShortPacket, len(pkt))
	}
	if got, want := pkt[PacketSize-1], Checksum(pkt); got != want {
		return Packet{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrBadChecksum, got, want)
	}
	payload := pkt[1 : PacketSize-1]
	end := len(payload)
	for end > 0 && payload[end-1] == 0 {
		end--
	}
	p := Packet{Command: pkt[0]}
	if end > 0 {
		p.Payload = append([]byte(nil), payload[:end]...)
	}
	return p, nil
}
