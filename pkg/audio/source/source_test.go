package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

// s16leBytes encodes int16 samples as little-endian PCM.
func s16leBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// int16Sine produces n samples of a sine at freq/sampleRate, half scale.
func int16Sine(freq float64, sampleRate, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}

// drain reads every chunk until EOF and returns them concatenated plus
// the individual chunk lengths.
func drain(t *testing.T, s Source) ([]float32, []int) {
	t.Helper()
	var all []float32
	var lens []int
	for {
		chunk, err := s.ReadChunk()
		if errors.Is(err, io.EOF) {
			return all, lens
		}
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		all = append(all, chunk...)
		lens = append(lens, len(chunk))
	}
}

func TestRawChunking(t *testing.T) {
	samples := make([]int16, 2500)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	src, err := NewRaw(io.NopCloser(bytes.NewReader(s16leBytes(samples))), 16000, Config{})
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	defer src.Close()

	all, lens := drain(t, src)
	if len(all) != 2500 {
		t.Fatalf("total samples = %d, want 2500", len(all))
	}
	wantLens := []int{1024, 1024, 452}
	if len(lens) != len(wantLens) {
		t.Fatalf("chunk lengths = %v, want %v", lens, wantLens)
	}
	for i := range wantLens {
		if lens[i] != wantLens[i] {
			t.Fatalf("chunk lengths = %v, want %v", lens, wantLens)
		}
	}
	// Spot-check sample conversion.
	if got, want := all[0], float32(0); got != want {
		t.Errorf("sample 0 = %f, want %f", got, want)
	}
	if got, want := all[99], float32(99)/32768; math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("sample 99 = %f, want %f", got, want)
	}
}

func TestRawCustomChunkSize(t *testing.T) {
	samples := make([]int16, 1000)
	src, err := NewRaw(io.NopCloser(bytes.NewReader(s16leBytes(samples))), 16000, Config{ChunkSize: 250})
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	_, lens := drain(t, src)
	if len(lens) != 4 {
		t.Fatalf("got %d chunks, want 4", len(lens))
	}
	for i, n := range lens {
		if n != 250 {
			t.Fatalf("chunk %d length = %d, want 250", i, n)
		}
	}
}

func TestRawResamples(t *testing.T) {
	// One second at 8 kHz should come out as roughly one second at 16 kHz.
	// The polyphase filter keeps some tail samples, so allow slack below.
	in := int16Sine(200, 8000, 8000)
	src, err := NewRaw(io.NopCloser(bytes.NewReader(s16leBytes(in))), 8000, Config{})
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	all, _ := drain(t, src)
	if len(all) < 14000 || len(all) > 17000 {
		t.Fatalf("resampled length = %d, want about 16000", len(all))
	}
	for i, v := range all {
		if v < -1.01 || v > 1.01 {
			t.Fatalf("sample %d = %f out of range", i, v)
		}
	}
}

func TestRawReadAfterClose(t *testing.T) {
	src, err := NewRaw(io.NopCloser(bytes.NewReader(nil)), 16000, Config{})
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	src.Close()
	if _, err := src.ReadChunk(); !errors.Is(err, ErrClosed) {
		t.Fatalf("ReadChunk after Close: err = %v, want ErrClosed", err)
	}
}

func TestStereoDownmix(t *testing.T) {
	// Opposite-phase channels cancel to silence.
	b := s16leBytes([]int16{1000, -1000, 2000, -2000, 500, -500})
	got := s16leToFloat64(b, 2)
	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("frame %d = %f, want 0", i, v)
		}
	}
}

func TestBigEndianDecode(t *testing.T) {
	// 0x1234 big-endian.
	got := s16beToFloat64([]byte{0x12, 0x34}, 1)
	want := float64(int16(0x1234)) / 32768.0
	if len(got) != 1 || math.Abs(got[0]-want) > 1e-9 {
		t.Fatalf("decode = %v, want [%f]", got, want)
	}
	// Negative value.
	got = s16beToFloat64([]byte{0xFF, 0xFF}, 1)
	if got[0] != -1.0/32768.0 {
		t.Fatalf("decode -1 = %f", got[0])
	}
}
