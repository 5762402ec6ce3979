package source

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/pion/rtp"
)

// RTP delivers chunks from an RTP/L16 stream received on a packet
// connection (RFC 3551 linear PCM, big-endian). Packets are decoded in
// arrival order; sequence gaps are logged and otherwise ignored, which is
// acceptable for envelope-level analysis.
type RTP struct {
	stream   *pcmStream
	conn     net.PacketConn
	channels int
	log      *slog.Logger

	buf     []byte
	lastSeq uint16
	haveSeq bool
}

// NewRTP receives L16 audio on conn. clockRate is the RTP clock rate
// (equal to the sample rate for L16); channels is 1 or 2.
func NewRTP(conn net.PacketConn, clockRate, channels int, logger *slog.Logger, cfg Config) (*RTP, error) {
	if channels < 1 || channels > 2 {
		return nil, errors.New("source: rtp channels must be 1 or 2")
	}
	if logger == nil {
		logger = slog.Default()
	}
	stream, err := newPCMStream(clockRate, cfg)
	if err != nil {
		return nil, err
	}
	return &RTP{
		stream:   stream,
		conn:     conn,
		channels: channels,
		log:      logger.With("component", "rtp-source"),
		buf:      make([]byte, 2048),
	}, nil
}

// ReadChunk blocks until a full chunk has been received. It returns
// io.EOF once the connection is closed and buffered audio is drained.
func (r *RTP) ReadChunk() ([]float32, error) {
	for !r.stream.ready() {
		n, _, err := r.conn.ReadFrom(r.buf)
		if err != nil {
			// Connection closed: flush what we have, then EOF.
			if chunk, ok := r.stream.pop(true); ok {
				return chunk, nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(r.buf[:n]); err != nil {
			r.log.Warn("dropping malformed packet", "err", err)
			continue
		}
		if r.haveSeq && pkt.SequenceNumber != r.lastSeq+1 {
			r.log.Warn("sequence gap",
				"expected", r.lastSeq+1,
				"got", pkt.SequenceNumber)
		}
		r.lastSeq = pkt.SequenceNumber
		r.haveSeq = true

		if err := r.stream.push(s16beToFloat64(pkt.Payload, r.channels)); err != nil {
			return nil, err
		}
	}
	chunk, _ := r.stream.pop(false)
	return chunk, nil
}

// Close closes the packet connection; a blocked ReadChunk returns after
// draining buffered audio.
func (r *RTP) Close() error {
	return r.conn.Close()
}

// Compile-time interface checks.
var (
	_ Source = (*Raw)(nil)
	_ Source = (*WAV)(nil)
	_ Source = (*RTP)(nil)
)
