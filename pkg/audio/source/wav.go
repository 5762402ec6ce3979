package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// WAV format errors.
var (
	ErrNotWAV      = errors.New("source: not a RIFF/WAVE stream")
	ErrUnsupported = errors.New("source: unsupported WAV encoding")
)

// WAV delivers chunks from a PCM WAV stream. Only 16-bit integer PCM is
// supported; stereo input is downmixed to mono by averaging.
type WAV struct {
	stream   *pcmStream
	src      io.ReadCloser
	rate     int
	channels int

	buf       []byte
	remaining int64 // bytes left in the data chunk
	eof       bool
}

// NewWAV reads the WAV header from src and prepares chunked delivery of
// its data chunk.
func NewWAV(src io.ReadCloser, cfg Config) (*WAV, error) {
	rate, channels, dataLen, err := readWAVHeader(src)
	if err != nil {
		return nil, err
	}
	stream, err := newPCMStream(rate, cfg)
	if err != nil {
		return nil, err
	}
	return &WAV{
		stream:    stream,
		src:       src,
		rate:      rate,
		channels:  channels,
		buf:       make([]byte, 8192),
		remaining: dataLen,
	}, nil
}

// SampleRate returns the source sample rate declared in the header.
// Delivery is always at the configured target rate.
func (w *WAV) SampleRate() int {
	return w.rate
}

// ReadChunk returns the next chunk of samples.
func (w *WAV) ReadChunk() ([]float32, error) {
	if w.stream.closed {
		return nil, ErrClosed
	}
	for !w.stream.ready() && !w.eof {
		if w.remaining <= 0 {
			w.eof = true
			break
		}
		n := int64(len(w.buf))
		if n > w.remaining {
			n = w.remaining
		}
		read, err := w.src.Read(w.buf[:n])
		if read > 0 {
			w.remaining -= int64(read)
			if perr := w.stream.push(s16leToFloat64(w.buf[:read], w.channels)); perr != nil {
				return nil, perr
			}
		}
		if errors.Is(err, io.EOF) {
			w.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if chunk, ok := w.stream.pop(w.eof); ok {
		return chunk, nil
	}
	return nil, io.EOF
}

// Close closes the underlying reader.
func (w *WAV) Close() error {
	w.stream.closed = true
	return w.src.Close()
}

// readWAVHeader parses the RIFF header up to the start of the data chunk
// and returns the sample rate, channel count, and data chunk length.
func readWAVHeader(r io.Reader) (rate, channels int, dataLen int64, err error) {
	var riff [12]byte
	if _, err = io.ReadFull(r, riff[:]); err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, 0, 0, ErrNotWAV
	}

	haveFmt := false
	for {
		var hdr [8]byte
		if _, err = io.ReadFull(r, hdr[:]); err != nil {
			return 0, 0, 0, fmt.Errorf("%w: truncated chunk header", ErrNotWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, 0, 0, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			var fmtBuf [16]byte
			if _, err = io.ReadFull(r, fmtBuf[:]); err != nil {
				return 0, 0, 0, fmt.Errorf("%w: truncated fmt chunk", ErrNotWAV)
			}
			audioFormat := binary.LittleEndian.Uint16(fmtBuf[0:2])
			channels = int(binary.LittleEndian.Uint16(fmtBuf[2:4]))
			rate = int(binary.LittleEndian.Uint32(fmtBuf[4:8]))
			bits := binary.LittleEndian.Uint16(fmtBuf[14:16])
			if audioFormat != 1 || bits != 16 {
				return 0, 0, 0, fmt.Errorf("%w: format %d, %d-bit", ErrUnsupported, audioFormat, bits)
			}
			if channels < 1 || channels > 2 {
				return 0, 0, 0, fmt.Errorf("%w: %d channels", ErrUnsupported, channels)
			}
			if err = discard(r, size-16+size%2); err != nil {
				return 0, 0, 0, err
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return 0, 0, 0, fmt.Errorf("%w: data chunk before fmt", ErrNotWAV)
			}
			return rate, channels, size, nil

		default:
			// Skip LIST, fact and other chunks; sizes are padded to even.
			if err = discard(r, size+size%2); err != nil {
				return 0, 0, 0, err
			}
		}
	}
}

func discard(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("%w: truncated chunk", ErrNotWAV)
	}
	return nil
}
