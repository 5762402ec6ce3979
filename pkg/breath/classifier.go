package breath

import (
	"github.com/lumora-health/breathsense/pkg/buffer"
)

const (
	// slopeThreshold is the minimum absolute envelope slope (per sample)
	// that counts as a rising or falling breath phase.
	slopeThreshold = 0.001

	// slopeMaxHalfWidth caps the symmetric slope window around the chunk
	// midpoint.
	slopeMaxHalfWidth = 10

	// minEnvelopeSamples is the smallest envelope that supports a slope
	// estimate; anything shorter classifies as none.
	minEnvelopeSamples = 10

	// confirmRun is how many consecutive identical raw decisions are needed
	// before the displayed state switches. Trades ~confirmRun frames of
	// latency for stability against single-frame noise.
	confirmRun = 3

	// rawHistoryCap bounds the diagnostic history of raw decisions.
	rawHistoryCap = 5
)

// Classifier estimates the breathing state from the envelope slope and
// smooths the decision with run-length hysteresis: the displayed state only
// switches after confirmRun consecutive identical raw decisions.
//
// Spectral feature frames are accepted alongside the envelope so that a
// learned model can replace the rule later without changing the call site;
// the rule-based decision does not consume them.
type Classifier struct {
	prevRaw   State // baseline for the run counter
	displayed State
	run       int

	// rawHistory records recent raw decisions for diagnostics only.
	rawHistory *buffer.Window[State]
}

// NewClassifier creates a Classifier displaying StateNone.
func NewClassifier() *Classifier {
	return &Classifier{rawHistory: buffer.NewWindow[State](rawHistoryCap)}
}

// Classify produces the displayed breathing state for one processed window.
// An empty envelope yields StateNone immediately, bypassing hysteresis and
// leaving the smoothing state untouched.
func (c *Classifier) Classify(features [][]float32, envelope []float32) State {
	_ = features // reserved for a learned classifier

	if len(envelope) == 0 {
		return StateNone
	}

	raw := c.rawDecision(envelope)
	c.rawHistory.Push(raw)

	if raw != c.prevRaw {
		c.prevRaw = raw
		c.run = 1
	} else {
		c.run++
	}
	if c.run >= confirmRun {
		c.displayed = raw
	}
	return c.displayed
}

// rawDecision classifies from the envelope slope around the chunk midpoint.
func (c *Classifier) rawDecision(envelope []float32) State {
	n := len(envelope)
	if n <= minEnvelopeSamples {
		return StateNone
	}

	half := slopeMaxHalfWidth
	if q := n / 4; q < half {
		half = q
	}
	mid := n / 2
	start, end := mid-half, mid+half

	slope := float64(envelope[end]-envelope[start]) / float64(end-start)
	switch {
	case slope > slopeThreshold:
		return StateInhale
	case slope < -slopeThreshold:
		return StateExhale
	default:
		return StateNone
	}
}

// State returns the currently displayed state without classifying.
func (c *Classifier) State() State {
	return c.displayed
}

// RawHistory returns the recent raw decisions, oldest first. Diagnostic
// only; it has no influence on classification.
func (c *Classifier) RawHistory() []State {
	return c.rawHistory.Values()
}

// Reset returns the classifier to its initial StateNone condition.
func (c *Classifier) Reset() {
	c.prevRaw = StateNone
	c.displayed = StateNone
	c.run = 0
	c.rawHistory.Reset()
}
