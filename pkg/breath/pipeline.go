package breath

import (
	"time"

	"github.com/lumora-health/breathsense/pkg/dsp/melspec"
)

// DefaultSampleRate is the sample rate of the reference deployment.
const DefaultSampleRate = 16000

// PipelineConfig controls pipeline construction.
type PipelineConfig struct {
	// SampleRate of the incoming mono float32 stream in Hz.
	// Default 16000.
	SampleRate float64

	// ResetOnStart clears all stage state when Start is called. Off, a
	// restarted pipeline resumes with its previous noise-floor and rate
	// history, which preserves continuity across brief disconnects at the
	// cost of carrying stale history into a genuinely new session.
	ResetOnStart bool
}

// Result is the outcome of processing one audio chunk. Callers receive
// everything the chunk produced as plain values; there are no callbacks.
type Result struct {
	// Active reports whether the activity gate saw breathing activity.
	// When false the chunk was dropped after envelope extraction and
	// State is StateNone.
	Active bool

	// State is the breathing state notified for this chunk.
	State State

	// Rate is the new rate measurement, or nil when this chunk did not
	// complete a breath interval.
	Rate *RateMeasurement

	// Events are the physiological events detected on this chunk.
	Events []Event
}

// Pipeline sequences the processing stages for each incoming audio chunk:
// conditioning, activity gating, feature accumulation, classification and
// rate/event tracking.
//
// A Pipeline carries mutable per-stage state and must only be driven from
// a single worker, with chunks in strict arrival order. Nothing in Process
// blocks; serialization is the integration layer's responsibility.
type Pipeline struct {
	cfg PipelineConfig

	cond       *Conditioner
	gate       *ActivityGate
	extractor  *melspec.Extractor
	classifier *Classifier
	tracker    *Tracker
}

// NewPipeline creates a Pipeline with fresh stage state.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	mc := melspec.DefaultConfig()
	mc.SampleRate = int(cfg.SampleRate)
	mc.WindowSamples = int(cfg.SampleRate)
	return &Pipeline{
		cfg:        cfg,
		cond:       NewConditioner(cfg.SampleRate),
		gate:       NewActivityGate(),
		extractor:  melspec.New(mc),
		classifier: NewClassifier(),
		tracker:    NewTracker(),
	}
}

// Start prepares the pipeline for a session. With ResetOnStart set, all
// stage state is cleared; otherwise history persists across sessions.
func (p *Pipeline) Start() {
	if p.cfg.ResetOnStart {
		p.Reset()
	}
}

// Process runs one chunk of arbitrary length through the pipeline and
// returns everything it produced. now is the chunk's timestamp.
func (p *Pipeline) Process(chunk []float32, now time.Time) Result {
	filtered := p.cond.Bandpass(chunk)
	normalized := p.cond.Normalize(filtered)
	envelope := p.cond.Envelope(normalized)

	if !p.gate.Detect(envelope) {
		// Inactive: notify none and skip classification. Nothing is added
		// to the feature buffer for this chunk.
		return Result{Active: false, State: StateNone}
	}

	p.extractor.AddSamples(normalized)
	frames := p.extractor.Frames()
	if frames == nil {
		// Feature window still warming up; keep the current state.
		return Result{Active: true, State: p.classifier.State()}
	}

	state := p.classifier.Classify(frames, envelope)
	events, rate := p.tracker.Update(state, envelope, now)
	return Result{
		Active: true,
		State:  state,
		Rate:   rate,
		Events: events,
	}
}

// Rate returns the tracker's current smoothed rate in BPM, 0 before the
// first measurement.
func (p *Pipeline) Rate() float64 {
	return p.tracker.Rate()
}

// Reset clears every stage: filter delay lines, gate history, feature
// buffer, classifier hysteresis and tracker FIFOs.
func (p *Pipeline) Reset() {
	p.cond.Reset()
	p.gate.Reset()
	p.extractor.Reset()
	p.classifier.Reset()
	p.tracker.Reset()
}
