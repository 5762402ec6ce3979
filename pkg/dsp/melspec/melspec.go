// Package melspec computes log-mel spectrogram features from a rolling
// buffer of conditioned breath-band audio.
//
// The Extractor accumulates raw samples as they arrive and, once a full
// analysis window is buffered, produces a [T, NumMels] float32 matrix over
// the most recent window. History is never consumed: successive windows
// overlap, which keeps frame output available on every pipeline tick.
//
// Default parameters are tuned for breath sounds rather than speech:
//
//	SampleRate:    16000
//	FFTSize:       512 (frame length, Hann-windowed)
//	HopSize:       256 (50% overlap)
//	NumMels:       64
//	LowFreq:       100
//	HighFreq:      800
//	WindowSamples: 16000 (1 s analysis window)
//
// With 64 filters over so narrow a band, adjacent filter edges collapse
// onto shared FFT bins; the bank enforces a minimum one-bin filter width,
// which stretches the upper filters beyond HighFreq (to about 2.1 kHz for
// the defaults). The stated band is therefore a lower edge and a nominal
// ceiling, not a hard cutoff.
//
// The feature frames are the designated input for a future learned
// classifier; the current rule-based classifier does not consume them.
package melspec

import (
	"math"
)

// logFloor clamps log-compressed band energies from below. Matches the
// dynamic range the downstream consumers were calibrated on.
const logFloor = -10.0

// Config controls mel spectrogram extraction parameters.
type Config struct {
	SampleRate    int     // audio sample rate in Hz (default 16000)
	FFTSize       int     // FFT frame size in samples (default 512)
	HopSize       int     // hop between frames in samples (default 256)
	NumMels       int     // number of mel bands (default 64)
	LowFreq       float64 // lowest filterbank frequency in Hz (default 100)
	HighFreq      float64 // highest filterbank frequency in Hz (default 800)
	WindowSamples int     // analysis window length in samples (default 16000)
}

// DefaultConfig returns the standard breath-band configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		FFTSize:       512,
		HopSize:       256,
		NumMels:       64,
		LowFreq:       100,
		HighFreq:      800,
		WindowSamples: 16000,
	}
}

// Extractor computes log-mel features over a rolling sample buffer.
// Not safe for concurrent use.
type Extractor struct {
	cfg     Config
	window  []float64 // Hann window, FFTSize long
	melBank [][]float64

	// Rolling raw-sample buffer, capped at 2x the analysis window.
	// Oldest samples are evicted on overflow.
	buf []float32
	cap int
}

// New creates an Extractor with the given config. Zero fields take their
// defaults from DefaultConfig.
func New(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FFTSize == 0 {
		cfg.FFTSize = def.FFTSize
	}
	if cfg.HopSize == 0 {
		cfg.HopSize = def.HopSize
	}
	if cfg.NumMels == 0 {
		cfg.NumMels = def.NumMels
	}
	if cfg.LowFreq == 0 {
		cfg.LowFreq = def.LowFreq
	}
	if cfg.HighFreq == 0 {
		cfg.HighFreq = def.HighFreq
	}
	if cfg.WindowSamples == 0 {
		cfg.WindowSamples = def.WindowSamples
	}

	return &Extractor{
		cfg:     cfg,
		window:  hannWindow(cfg.FFTSize),
		melBank: melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, cfg.HighFreq),
		cap:     2 * cfg.WindowSamples,
	}
}

// AddSamples appends conditioned samples to the rolling buffer, evicting
// the oldest samples beyond twice the analysis window.
func (e *Extractor) AddSamples(samples []float32) {
	e.buf = append(e.buf, samples...)
	if over := len(e.buf) - e.cap; over > 0 {
		e.buf = append(e.buf[:0], e.buf[over:]...)
	}
}

// Buffered returns the number of samples currently in the rolling buffer.
func (e *Extractor) Buffered() int {
	return len(e.buf)
}

// Frames computes the log-mel spectrogram over the most recent analysis
// window. It returns nil while fewer than WindowSamples samples are
// buffered (the warm-up period at session start). The buffer is not
// consumed; consecutive calls analyse overlapping windows.
//
// The result is [T][NumMels] with T = (WindowSamples-FFTSize)/HopSize + 1.
func (e *Extractor) Frames() [][]float32 {
	cfg := e.cfg
	if len(e.buf) < cfg.WindowSamples {
		return nil
	}
	pcm := e.buf[len(e.buf)-cfg.WindowSamples:]

	numFrames := (cfg.WindowSamples-cfg.FFTSize)/cfg.HopSize + 1
	halfFFT := cfg.FFTSize/2 + 1

	features := make([][]float32, numFrames)

	re := make([]float64, cfg.FFTSize)
	im := make([]float64, cfg.FFTSize)
	mag := make([]float64, halfFFT)

	for t := 0; t < numFrames; t++ {
		start := t * cfg.HopSize

		for i := 0; i < cfg.FFTSize; i++ {
			re[i] = float64(pcm[start+i]) * e.window[i]
			im[i] = 0
		}
		fft(re, im)

		// Magnitude spectrum, first fftSize/2+1 bins.
		for i := 0; i < halfFFT; i++ {
			mag[i] = math.Sqrt(re[i]*re[i] + im[i]*im[i])
		}

		mel := make([]float32, cfg.NumMels)
		for m := 0; m < cfg.NumMels; m++ {
			sum := 0.0
			for k, w := range e.melBank[m] {
				if w != 0 {
					sum += w * mag[k]
				}
			}
			v := math.Log(sum + 1e-10)
			if v < logFloor {
				v = logFloor
			}
			mel[m] = float32(v)
		}
		features[t] = mel
	}

	return features
}

// Reset discards all buffered samples.
func (e *Extractor) Reset() {
	e.buf = e.buf[:0]
}
