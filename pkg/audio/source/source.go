// Package source turns audio inputs into the fixed-rate mono float32
// chunks the breathing pipeline consumes.
//
// Three inputs are supported: raw s16le streams, WAV files, and RTP/L16
// network streams. All of them resample to the target rate when needed
// and deliver samples in fixed-size chunks.
package source

import (
	"errors"
	"fmt"
	"io"

	resampling "github.com/tphakala/go-audio-resampling"
)

// DefaultChunkSize is the number of samples per delivered chunk, 64 ms at
// 16 kHz.
const DefaultChunkSize = 1024

// DefaultTargetRate is the sample rate delivered to the pipeline.
const DefaultTargetRate = 16000

// ErrClosed is returned by ReadChunk after Close.
var ErrClosed = errors.New("source: closed")

// Source delivers mono float32 audio in fixed-size chunks at the target
// sample rate. The final chunk before io.EOF may be shorter.
type Source interface {
	// ReadChunk returns the next chunk. It returns io.EOF when the input
	// is exhausted; the returned slice is only valid until the next call.
	ReadChunk() ([]float32, error)

	// Close releases the underlying input.
	Close() error
}

// Config controls chunking and resampling for all sources.
type Config struct {
	// TargetRate is the delivered sample rate in Hz. Default 16000.
	TargetRate int

	// ChunkSize is the number of samples per chunk. Default 1024.
	ChunkSize int
}

func (c Config) withDefaults() Config {
	if c.TargetRate == 0 {
		c.TargetRate = DefaultTargetRate
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	return c
}

// pcmStream chunks and optionally resamples a mono float64 sample stream.
// It underlies all Source implementations.
type pcmStream struct {
	cfg       Config
	resampler resampling.Resampler // nil when input is already at target rate

	pending []float32
	chunk   []float32
	closed  bool
}

func newPCMStream(inputRate int, cfg Config) (*pcmStream, error) {
	cfg = cfg.withDefaults()
	s := &pcmStream{
		cfg:   cfg,
		chunk: make([]float32, cfg.ChunkSize),
	}
	if inputRate != cfg.TargetRate {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(inputRate),
			OutputRate: float64(cfg.TargetRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("source: create resampler: %w", err)
		}
		s.resampler = r
	}
	return s, nil
}

// push resamples (if configured) and buffers a batch of input samples.
func (s *pcmStream) push(samples []float64) error {
	if len(samples) == 0 {
		return nil
	}
	if s.resampler != nil {
		out, err := s.resampler.Process(samples)
		if err != nil {
			return fmt.Errorf("source: resample: %w", err)
		}
		for _, v := range out {
			s.pending = append(s.pending, float32(v))
		}
		return nil
	}
	for _, v := range samples {
		s.pending = append(s.pending, float32(v))
	}
	return nil
}

// ready reports whether a full chunk is buffered.
func (s *pcmStream) ready() bool {
	return len(s.pending) >= s.cfg.ChunkSize
}

// pop returns the next chunk. final releases whatever remains as a short
// chunk; otherwise pop requires a full chunk buffered.
func (s *pcmStream) pop(final bool) ([]float32, bool) {
	n := s.cfg.ChunkSize
	if len(s.pending) < n {
		if !final || len(s.pending) == 0 {
			return nil, false
		}
		n = len(s.pending)
	}
	out := s.chunk[:n]
	copy(out, s.pending[:n])
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return out, true
}

// s16leToFloat64 decodes little-endian signed 16-bit PCM into [-1, 1)
// samples. A trailing odd byte is ignored.
func s16leToFloat64(b []byte, interleaved int) []float64 {
	frames := len(b) / 2 / interleaved
	out := make([]float64, frames)
	for i := range frames {
		// Average channels down to mono.
		var acc float64
		for c := range interleaved {
			off := (i*interleaved + c) * 2
			v := int16(b[off]) | int16(b[off+1])<<8
			acc += float64(v) / 32768.0
		}
		out[i] = acc / float64(interleaved)
	}
	return out
}

// s16beToFloat64 decodes big-endian (network order) signed 16-bit PCM, the
// encoding RTP L16 uses.
func s16beToFloat64(b []byte, interleaved int) []float64 {
	frames := len(b) / 2 / interleaved
	out := make([]float64, frames)
	for i := range frames {
		var acc float64
		for c := range interleaved {
			off := (i*interleaved + c) * 2
			v := int16(b[off])<<8 | int16(b[off+1])
			acc += float64(v) / 32768.0
		}
		out[i] = acc / float64(interleaved)
	}
	return out
}

// Raw delivers chunks from a raw mono s16le stream.
type Raw struct {
	stream *pcmStream
	src    io.ReadCloser
	buf    []byte
	eof    bool
}

// NewRaw wraps a mono s16le PCM stream at the given sample rate.
func NewRaw(src io.ReadCloser, sampleRate int, cfg Config) (*Raw, error) {
	stream, err := newPCMStream(sampleRate, cfg)
	if err != nil {
		return nil, err
	}
	return &Raw{
		stream: stream,
		src:    src,
		buf:    make([]byte, 8192),
	}, nil
}

// ReadChunk returns the next chunk of samples.
func (r *Raw) ReadChunk() ([]float32, error) {
	if r.stream.closed {
		return nil, ErrClosed
	}
	for !r.stream.ready() && !r.eof {
		n, err := r.src.Read(r.buf)
		if n > 0 {
			if perr := r.stream.push(s16leToFloat64(r.buf[:n], 1)); perr != nil {
				return nil, perr
			}
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if chunk, ok := r.stream.pop(r.eof); ok {
		return chunk, nil
	}
	return nil, io.EOF
}

// Close closes the underlying reader.
func (r *Raw) Close() error {
	r.stream.closed = true
	return r.src.Close()
}
