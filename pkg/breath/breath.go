// Package breath turns conditioned microphone audio into a breathing-state
// signal, a smoothed breathing rate, and discrete physiological events.
//
// The package is organised as a chain of stateful stages, each owning its
// own bounded history:
//
//	Conditioner   band-pass isolation, gain normalization, envelope
//	ActivityGate  adaptive breathing-activity detection
//	Classifier    rule-based inhale/exhale estimation with hysteresis
//	Tracker       breath-rate estimation and event detection
//	Pipeline      per-chunk sequencing of the stages above
//
// All stages operate on in-memory sample chunks and are free of I/O. Chunks
// must be processed strictly in arrival order by a single worker; none of
// the stages are safe for concurrent use. Raw audio is never retained
// beyond the bounded analysis buffers.
package breath

import (
	"sort"
	"time"
)

// State is the displayed breathing state for one processed window.
type State int

// Breathing states.
const (
	StateNone State = iota
	StateInhale
	StateExhale
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInhale:
		return "inhale"
	case StateExhale:
		return "exhale"
	default:
		return "none"
	}
}

// EventType identifies a physiological event.
type EventType string

// Event types emitted by the Tracker.
const (
	EventInhale     EventType = "inhale"
	EventExhale     EventType = "exhale"
	EventApnea      EventType = "apnea"
	EventDeepBreath EventType = "deep_breath"
)

// Event is an immutable physiological event record. Events are handed to
// collaborators (persistence, UI) by value; the pipeline keeps no long-term
// ownership.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id" msgpack:"id"`

	// Time is when the event was detected.
	Time time.Time `json:"time" msgpack:"time"`

	// Type is the event kind.
	Type EventType `json:"type" msgpack:"type"`

	// Amplitude is the peak envelope amplitude for inhale and deep-breath
	// events. Zero when not applicable.
	Amplitude float64 `json:"amplitude,omitempty" msgpack:"amplitude,omitempty"`

	// Duration is the elapsed breathing pause for apnea events.
	// Zero when not applicable.
	Duration time.Duration `json:"duration,omitempty" msgpack:"duration,omitempty"`
}

// RateMeasurement is one breathing-rate update. Rates are in breaths per
// minute, always clamped to [4, 60].
type RateMeasurement struct {
	// Time is when the measurement was taken.
	Time time.Time `json:"time" msgpack:"time"`

	// Instant is the rate implied by the most recent inter-breath interval.
	Instant float64 `json:"instant" msgpack:"instant"`

	// Smoothed is the median of the rates over the recent interval window.
	Smoothed float64 `json:"smoothed" msgpack:"smoothed"`

	// Confidence grows with the number of intervals backing the estimate,
	// in [0, 1].
	Confidence float64 `json:"confidence" msgpack:"confidence"`
}

// Rate clamp bounds in breaths per minute.
const (
	MinRateBPM = 4.0
	MaxRateBPM = 60.0
)

// clampRate clamps a rate to the physiological [4, 60] BPM range.
func clampRate(bpm float64) float64 {
	if bpm < MinRateBPM {
		return MinRateBPM
	}
	if bpm > MaxRateBPM {
		return MaxRateBPM
	}
	return bpm
}

// median returns the median of xs. Returns 0 for an empty slice.
// The input is not modified.
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
