package biquad

import (
	"math"
	"testing"
)

func sine(freq float64, sampleRate float64, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return s
}

func energy(signal []float32) float64 {
	var e float64
	for _, v := range signal {
		e += float64(v) * float64(v)
	}
	return e
}

func TestProcessPreservesLength(t *testing.T) {
	f := NewLowPass(16000, 2.5)
	for _, n := range []int{0, 1, 7, 1024} {
		out := f.Process(make([]float32, n))
		if len(out) != n {
			t.Errorf("len(Process(%d samples)) = %d, want %d", n, len(out), n)
		}
	}
}

func TestLowPassPassesDC(t *testing.T) {
	f := NewLowPass(16000, 100)
	in := make([]float32, 16000)
	for i := range in {
		in[i] = 1.0
	}
	out := f.Process(in)
	// After settling, a DC input should come through at unity gain.
	if got := out[len(out)-1]; math.Abs(float64(got)-1.0) > 0.01 {
		t.Errorf("settled DC output = %f, want ~1.0", got)
	}
}

func TestHighPassBlocksDC(t *testing.T) {
	f := NewHighPass(16000, 100)
	in := make([]float32, 16000)
	for i := range in {
		in[i] = 1.0
	}
	out := f.Process(in)
	if got := out[len(out)-1]; math.Abs(float64(got)) > 0.01 {
		t.Errorf("settled DC output = %f, want ~0", got)
	}
}

func TestBandPassAttenuatesOutOfBand(t *testing.T) {
	const fs = 16000
	f := NewBandPass(fs, 80, 500)

	// In-band tone plus a strongly out-of-band tone. Filtering must remove
	// energy overall.
	in := make([]float32, fs)
	inBand := sine(200, fs, fs)
	outBand := sine(5000, fs, fs)
	for i := range in {
		in[i] = inBand[i] + outBand[i]
	}

	out := f.Process(in)
	ein, eout := energy(in), energy(out)
	if eout >= ein {
		t.Errorf("output energy %.1f not less than input energy %.1f", eout, ein)
	}
	t.Logf("band-pass energy: in=%.1f out=%.1f", ein, eout)
}

func TestBandPassPassesInBandTone(t *testing.T) {
	const fs = 16000
	f := NewBandPass(fs, 80, 500)
	in := sine(200, fs, fs)
	out := f.Process(in)

	// Skip the transient, then compare steady-state energy. A 200 Hz tone
	// sits inside 80-500 Hz and should survive mostly intact.
	ratio := energy(out[fs/2:]) / energy(in[fs/2:])
	if ratio < 0.5 {
		t.Errorf("in-band energy ratio = %.3f, want > 0.5", ratio)
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	const fs = 16000
	in := sine(150, fs, 4096)

	whole := NewBandPass(fs, 80, 500)
	want := whole.Process(in)

	chunked := NewBandPass(fs, 80, 500)
	var got []float32
	for start := 0; start < len(in); start += 1000 {
		end := min(start+1000, len(in))
		got = append(got, chunked.Process(in[start:end])...)
	}

	if len(got) != len(want) {
		t.Fatalf("streamed length %d != one-shot length %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("sample %d: streamed %f != one-shot %f", i, got[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	f := NewLowPass(16000, 100)
	first := f.Process(sine(50, 16000, 256))
	f.Reset()
	second := f.Process(sine(50, 16000, 256))
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs after Reset: %f vs %f", i, first[i], second[i])
		}
	}
}

func TestMissingCutoffPanics(t *testing.T) {
	cases := []struct {
		name string
		fn   func()
	}{
		{"lowpass zero cutoff", func() { NewLowPass(16000, 0) }},
		{"highpass zero cutoff", func() { NewHighPass(16000, 0) }},
		{"bandpass zero low", func() { NewBandPass(16000, 0, 500) }},
		{"bandpass zero high", func() { NewBandPass(16000, 80, 0) }},
		{"bandpass inverted", func() { NewBandPass(16000, 500, 80) }},
		{"zero sample rate", func() { NewLowPass(0, 100) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tc.fn()
		})
	}
}

func BenchmarkProcess(b *testing.B) {
	f := NewBandPass(16000, 80, 500)
	in := sine(200, 16000, 1024)
	b.ResetTimer()
	b.ReportAllocs()
	for range b.N {
		_ = f.Process(in)
	}
}
