package breath

import (
	"time"

	"github.com/google/uuid"

	"github.com/lumora-health/breathsense/pkg/buffer"
)

const (
	// rateWindow is how many recent inhalation timestamps feed the rate
	// median.
	rateWindow = 5

	// inhaleTimesCap bounds the inhalation-timestamp FIFO: the rate window
	// plus slack for diagnostics.
	inhaleTimesCap = rateWindow + 5

	// amplitudeCap bounds the inhalation peak-amplitude history used as the
	// deep-breath baseline.
	amplitudeCap = 20

	// apneaAfter is how long without an inhalation counts as apnea.
	apneaAfter = 15 * time.Second

	// apneaDebounce limits apnea events to one per second of persistent
	// silence.
	apneaDebounce = time.Second

	// deepBreathMinHistory is the number of recorded amplitudes required
	// before deep-breath detection activates.
	deepBreathMinHistory = 5

	// deepBreathRatio is how far above the amplitude median an inhalation
	// must peak to count as a deep breath.
	deepBreathRatio = 1.5
)

// Tracker watches the classifier's state sequence for breath transitions
// and derives the breathing rate and discrete events: inhalations, apnea
// and deep breaths. It is evaluated once per pipeline tick.
type Tracker struct {
	prevState State

	inhaleTimes *buffer.Window[time.Time]
	amplitudes  *buffer.Window[float64]

	rate float64 // current smoothed rate, 0 until first measurement

	firstTick  time.Time // apnea baseline before any inhalation
	lastInhale time.Time
	lastApnea  time.Time // last apnea emission, for the debounce
}

// NewTracker creates a Tracker with empty history.
func NewTracker() *Tracker {
	return &Tracker{
		inhaleTimes: buffer.NewWindow[time.Time](inhaleTimesCap),
		amplitudes:  buffer.NewWindow[float64](amplitudeCap),
	}
}

// Update advances the tracker by one tick. state is the classifier output
// for the tick, envelope the tick's envelope chunk, now the tick timestamp.
// It returns any events detected on this tick and, when a new breath
// completes the interval window, a rate measurement. Ticks must arrive in
// chronological order.
func (t *Tracker) Update(state State, envelope []float32, now time.Time) ([]Event, *RateMeasurement) {
	if t.firstTick.IsZero() {
		t.firstTick = now
	}

	var events []Event
	var measurement *RateMeasurement

	// Only an Exhale-to-Inhale transition starts a new breath.
	if t.prevState == StateExhale && state == StateInhale {
		amp := peakOf(envelope)
		t.inhaleTimes.Push(now)
		t.amplitudes.Push(amp)
		t.lastInhale = now

		events = append(events, Event{
			ID:        uuid.NewString(),
			Time:      now,
			Type:      EventInhale,
			Amplitude: amp,
		})

		if ev, ok := t.detectDeepBreath(amp, now); ok {
			events = append(events, ev)
		}

		if t.inhaleTimes.Len() >= 2 {
			measurement = t.measureRate(now)
		}
	}

	if ev, ok := t.detectApnea(now); ok {
		events = append(events, ev)
	}

	t.prevState = state
	return events, measurement
}

// Rate returns the current smoothed rate in BPM, or 0 before the first
// measurement.
func (t *Tracker) Rate() float64 {
	return t.rate
}

// measureRate recomputes the smoothed rate from up to the last rateWindow
// inhalation timestamps: pairwise instantaneous rates, median, clamped to
// the physiological range.
func (t *Tracker) measureRate(now time.Time) *RateMeasurement {
	times := t.inhaleTimes.Last(rateWindow)
	rates := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		dt := times[i].Sub(times[i-1]).Seconds()
		if dt <= 0 {
			continue
		}
		rates = append(rates, 60.0/dt)
	}
	if len(rates) == 0 {
		return nil
	}

	t.rate = clampRate(median(rates))
	return &RateMeasurement{
		Time:       now,
		Instant:    clampRate(rates[len(rates)-1]),
		Smoothed:   t.rate,
		Confidence: float64(len(rates)) / float64(rateWindow-1),
	}
}

// detectDeepBreath fires when the amplitude history is established and the
// new inhalation peaks well above its median.
func (t *Tracker) detectDeepBreath(amp float64, now time.Time) (Event, bool) {
	if t.amplitudes.Len() < deepBreathMinHistory {
		return Event{}, false
	}
	if amp <= deepBreathRatio*median(t.amplitudes.Values()) {
		return Event{}, false
	}
	return Event{
		ID:        uuid.NewString(),
		Time:      now,
		Type:      EventDeepBreath,
		Amplitude: amp,
	}, true
}

// detectApnea fires when no inhalation has been recorded for apneaAfter,
// rate-limited to one event per apneaDebounce of persistent silence.
// Before any inhalation, the first tick serves as the baseline.
func (t *Tracker) detectApnea(now time.Time) (Event, bool) {
	since := t.lastInhale
	if since.IsZero() {
		since = t.firstTick
	}
	elapsed := now.Sub(since)
	if elapsed <= apneaAfter {
		return Event{}, false
	}
	if !t.lastApnea.IsZero() && now.Sub(t.lastApnea) <= apneaDebounce {
		return Event{}, false
	}
	t.lastApnea = now
	return Event{
		ID:       uuid.NewString(),
		Time:     now,
		Type:     EventApnea,
		Duration: elapsed,
	}, true
}

// Reset clears all tracker history and the current rate.
func (t *Tracker) Reset() {
	t.prevState = StateNone
	t.inhaleTimes.Reset()
	t.amplitudes.Reset()
	t.rate = 0
	t.firstTick = time.Time{}
	t.lastInhale = time.Time{}
	t.lastApnea = time.Time{}
}

// peakOf returns the maximum envelope value, or 0 for an empty chunk.
func peakOf(envelope []float32) float64 {
	var peak float64
	for _, v := range envelope {
		if f := float64(v); f > peak {
			peak = f
		}
	}
	return peak
}
