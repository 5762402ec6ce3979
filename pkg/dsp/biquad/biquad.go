// Package biquad implements streaming second-order IIR digital filters
// designed with the bilinear transform.
//
// A Filter is constructed once for a logical role (band isolation, envelope
// smoothing) and then fed successive chunks of samples. The internal delay
// line persists across Process calls, so a single Filter instance can run
// over an unbounded sample stream. A Filter must not be shared between
// concurrent callers.
//
// The band-pass design is a single second-order center/bandwidth section,
// not a cascaded higher-order filter. Downstream detection thresholds are
// calibrated against this transfer function; do not swap it for a steeper
// design without re-tuning.
package biquad

import "math"

// Filter is a second-order digital filter section using the transposed
// Direct Form II recursion. The zero-valued Filter is not usable; construct
// with NewLowPass, NewHighPass or NewBandPass.
type Filter struct {
	b [3]float64 // feedforward (numerator) coefficients
	a [3]float64 // feedback (denominator) coefficients, a[0] == 1

	// state is the delay line, length max(len(a), len(b)). The last slot
	// stays zero and exists so the recursion can read one past the end.
	state [3]float64
}

// NewLowPass creates a low-pass filter with the given cutoff frequency in Hz.
// Panics if sampleRate or cutoff is not positive: a filter without a cutoff
// is a programmer error, not a runtime condition.
func NewLowPass(sampleRate, cutoff float64) *Filter {
	mustPositive(sampleRate, "sample rate")
	mustPositive(cutoff, "low-pass cutoff")

	w := math.Tan(math.Pi * cutoff / sampleRate)
	k := 1.0 / (1.0 + math.Sqrt2*w + w*w)
	return &Filter{
		b: [3]float64{k * w * w, 2 * k * w * w, k * w * w},
		a: [3]float64{1, 2 * k * (w*w - 1), k * (1 - math.Sqrt2*w + w*w)},
	}
}

// NewHighPass creates a high-pass filter with the given cutoff frequency in Hz.
// Panics if sampleRate or cutoff is not positive.
func NewHighPass(sampleRate, cutoff float64) *Filter {
	mustPositive(sampleRate, "sample rate")
	mustPositive(cutoff, "high-pass cutoff")

	w := math.Tan(math.Pi * cutoff / sampleRate)
	k := 1.0 / (1.0 + math.Sqrt2*w + w*w)
	return &Filter{
		b: [3]float64{k, -2 * k, k},
		a: [3]float64{1, 2 * k * (w*w - 1), k * (1 - math.Sqrt2*w + w*w)},
	}
}

// NewBandPass creates a band-pass filter passing lowCutoff..highCutoff Hz.
// The section is designed from the geometric center frequency and the
// bandwidth between the cutoffs. Panics unless
// 0 < lowCutoff < highCutoff and sampleRate > 0.
func NewBandPass(sampleRate, lowCutoff, highCutoff float64) *Filter {
	mustPositive(sampleRate, "sample rate")
	mustPositive(lowCutoff, "band-pass low cutoff")
	mustPositive(highCutoff, "band-pass high cutoff")
	if highCutoff <= lowCutoff {
		panic("biquad: band-pass high cutoff must exceed low cutoff")
	}

	center := math.Sqrt(lowCutoff * highCutoff)
	w := math.Tan(math.Pi * center / sampleRate)
	bw := math.Tan(math.Pi * (highCutoff - lowCutoff) / sampleRate)
	k := 1.0 / (1.0 + bw + w*w)
	return &Filter{
		b: [3]float64{k * bw, 0, -k * bw},
		a: [3]float64{1, 2 * k * (w*w - 1), k * (1 - bw + w*w)},
	}
}

// Process filters a chunk of samples and returns a new chunk of equal
// length. The delay line carries over between calls, so consecutive chunks
// are filtered as one continuous signal. Empty input yields empty output.
func (f *Filter) Process(signal []float32) []float32 {
	out := make([]float32, len(signal))
	for i, s := range signal {
		out[i] = float32(f.step(float64(s)))
	}
	return out
}

// step advances the recursion by one sample.
func (f *Filter) step(x float64) float64 {
	y := f.b[0]*x + f.state[0]
	for j := 1; j < len(f.b); j++ {
		f.state[j-1] = f.b[j]*x - f.a[j]*y + f.state[j]
	}
	return y
}

// Reset clears the delay line. Coefficients are kept, so the filter can be
// reused for a fresh stream.
func (f *Filter) Reset() {
	f.state = [3]float64{}
}

func mustPositive(v float64, name string) {
	if v <= 0 {
		panic("biquad: " + name + " must be positive")
	}
}
