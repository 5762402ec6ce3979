package breath

import (
	"math"

	"github.com/lumora-health/breathsense/pkg/dsp/biquad"
)

// Signal conditioning constants. The band edges bracket the audible
// breath-noise band; the envelope cutoff tracks the breathing cycle itself.
const (
	bandLowHz     = 80.0
	bandHighHz    = 500.0
	envelopeCutHz = 2.5
	rmsFloor      = 1e-6
	clipLimit     = 3.0
)

// Conditioner prepares raw microphone chunks for detection: band-pass
// isolation, gain normalization with hard clipping, and envelope
// extraction. Each operation preserves chunk length. The Conditioner owns
// the filter state for both internal filters, so one instance serves one
// continuous stream.
type Conditioner struct {
	bandpass *biquad.Filter
	envLow   *biquad.Filter
}

// NewConditioner creates a Conditioner for the given sample rate.
func NewConditioner(sampleRate float64) *Conditioner {
	return &Conditioner{
		bandpass: biquad.NewBandPass(sampleRate, bandLowHz, bandHighHz),
		envLow:   biquad.NewLowPass(sampleRate, envelopeCutHz),
	}
}

// Bandpass isolates the breath band (80-500 Hz). Output length equals
// input length.
func (c *Conditioner) Bandpass(signal []float32) []float32 {
	return c.bandpass.Process(signal)
}

// Normalize scales the chunk to roughly unit RMS and hard-clips every
// sample to [-clipLimit, clipLimit]. The RMS is floored at rmsFloor so a
// silent chunk cannot divide by zero. Empty input is returned unchanged.
func (c *Conditioner) Normalize(signal []float32) []float32 {
	if len(signal) == 0 {
		return []float32{}
	}

	var sum float64
	for _, s := range signal {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(signal)))
	if rms < rmsFloor {
		rms = rmsFloor
	}

	out := make([]float32, len(signal))
	for i, s := range signal {
		v := float64(s) / rms
		if v > clipLimit {
			v = clipLimit
		} else if v < -clipLimit {
			v = -clipLimit
		}
		out[i] = float32(v)
	}
	return out
}

// Envelope rectifies the chunk and smooths it with a 2.5 Hz low-pass,
// yielding a non-negative amplitude trace. Must be fed normalized input:
// the envelope filter state assumes a roughly unit-scale signal.
func (c *Conditioner) Envelope(signal []float32) []float32 {
	rectified := make([]float32, len(signal))
	for i, s := range signal {
		if s < 0 {
			rectified[i] = -s
		} else {
			rectified[i] = s
		}
	}
	out := c.envLow.Process(rectified)
	// The IIR smoother can undershoot slightly on transients; the envelope
	// contract is non-negative.
	for i, v := range out {
		if v < 0 {
			out[i] = 0
		}
	}
	return out
}

// Reset clears both filter delay lines.
func (c *Conditioner) Reset() {
	c.bandpass.Reset()
	c.envLow.Reset()
}
