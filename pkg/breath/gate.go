package breath

import (
	"github.com/lumora-health/breathsense/pkg/buffer"
)

const (
	// gateHistoryCap holds ~30 s of envelope means at the ~16 Hz chunk
	// cadence of the reference deployment.
	gateHistoryCap = 480

	// gateWarmUp is the number of history entries required before the gate
	// makes real decisions. Below this it always reports inactive.
	gateWarmUp = 10

	// gateThresholdRatio scales the history median into the activity
	// threshold.
	gateThresholdRatio = 1.5
)

// ActivityGate decides whether a chunk's envelope shows breathing activity.
// It keeps a bounded history of per-chunk envelope means and compares the
// current mean against a multiple of the history median, which makes the
// gate self-calibrating to the ambient noise floor without a fixed global
// threshold.
type ActivityGate struct {
	history *buffer.Window[float64]
}

// NewActivityGate creates an ActivityGate with an empty history.
func NewActivityGate() *ActivityGate {
	return &ActivityGate{history: buffer.NewWindow[float64](gateHistoryCap)}
}

// Detect reports whether the envelope chunk shows breathing activity.
// The chunk's mean is always recorded, even during warm-up, so the
// first calls of a session contribute to the noise-floor estimate while
// returning false.
func (g *ActivityGate) Detect(envelope []float32) bool {
	mean := 0.0
	if len(envelope) > 0 {
		var sum float64
		for _, v := range envelope {
			sum += float64(v)
		}
		mean = sum / float64(len(envelope))
	}
	g.history.Push(mean)

	if g.history.Len() <= gateWarmUp {
		return false
	}

	threshold := median(g.history.Values()) * gateThresholdRatio
	return mean > threshold
}

// Reset discards the noise-floor history.
func (g *ActivityGate) Reset() {
	g.history.Reset()
}
