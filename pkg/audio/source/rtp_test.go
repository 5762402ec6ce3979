package source

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
)

// sendL16 marshals int16 samples into an RTP packet and sends it.
func sendL16(t *testing.T, conn net.Conn, seq uint16, ts uint32, samples []int16) {
	t.Helper()
	payload := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.BigEndian.PutUint16(payload[i*2:], uint16(s))
	}
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x1234,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal packet: %v", err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("send packet: %v", err)
	}
}

func TestRTPReceivesChunks(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	sender, err := net.Dial("udp", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sender.Close()

	src, err := NewRTP(listener, 16000, 1, nil, Config{ChunkSize: 256})
	if err != nil {
		t.Fatalf("NewRTP: %v", err)
	}
	defer src.Close()

	// 4 packets x 256 samples, constant value 4096.
	samples := make([]int16, 256)
	for i := range samples {
		samples[i] = 4096
	}
	for i := range 4 {
		sendL16(t, sender, uint16(100+i), uint32(i*256), samples)
	}

	want := float32(4096) / 32768
	for i := range 4 {
		chunk, err := src.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk %d: %v", i, err)
		}
		if len(chunk) != 256 {
			t.Fatalf("chunk %d length = %d, want 256", i, len(chunk))
		}
		for j, v := range chunk {
			if v != want {
				t.Fatalf("chunk %d sample %d = %f, want %f", i, j, v, want)
			}
		}
	}
}

func TestRTPCloseUnblocksAndDrains(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	sender, err := net.Dial("udp", listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sender.Close()

	src, err := NewRTP(listener, 16000, 1, nil, Config{ChunkSize: 512})
	if err != nil {
		t.Fatalf("NewRTP: %v", err)
	}

	// A partial chunk's worth of audio, then close.
	sendL16(t, sender, 1, 0, make([]int16, 100))

	done := make(chan struct{})
	var chunks [][]float32
	var readErr error
	go func() {
		defer close(done)
		for {
			chunk, err := src.ReadChunk()
			if err != nil {
				readErr = err
				return
			}
			cp := make([]float32, len(chunk))
			copy(cp, chunk)
			chunks = append(chunks, cp)
		}
	}()

	// Give the reader time to pick up the packet before closing.
	time.Sleep(100 * time.Millisecond)
	src.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ReadChunk did not return after Close")
	}
	if !errors.Is(readErr, io.EOF) {
		t.Fatalf("final error = %v, want io.EOF", readErr)
	}
	if len(chunks) != 1 || len(chunks[0]) != 100 {
		t.Fatalf("drained chunks = %d, want one 100-sample chunk", len(chunks))
	}
}

func TestRTPRejectsBadChannelCount(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()
	if _, err := NewRTP(listener, 16000, 3, nil, Config{}); err == nil {
		t.Fatal("expected error for 3 channels")
	}
}
