package breath

import "testing"

// flat returns an envelope chunk with every sample at v.
func flat(v float32, n int) []float32 {
	e := make([]float32, n)
	for i := range e {
		e[i] = v
	}
	return e
}

func TestGateWarmUp(t *testing.T) {
	g := NewActivityGate()
	// The first 10 calls report inactive regardless of envelope content.
	for i := range 10 {
		if g.Detect(flat(100, 64)) {
			t.Fatalf("call %d: active during warm-up", i+1)
		}
	}
}

func TestGateRespondsAfterWarmUp(t *testing.T) {
	g := NewActivityGate()
	for range 20 {
		g.Detect(flat(0.1, 64))
	}
	// Median is 0.1, threshold 0.15: a 0.5 mean is activity...
	if !g.Detect(flat(0.5, 64)) {
		t.Error("loud chunk not detected as active")
	}
	// ...while another quiet chunk is not.
	if g.Detect(flat(0.1, 64)) {
		t.Error("quiet chunk detected as active")
	}
}

func TestGateThresholdIsMedianBased(t *testing.T) {
	g := NewActivityGate()
	for range 20 {
		g.Detect(flat(0.1, 64))
	}
	// Just below 1.5x the median: inactive.
	if g.Detect(flat(0.14, 64)) {
		t.Error("chunk below 1.5x median detected as active")
	}
	// Just above: active.
	if !g.Detect(flat(0.16, 64)) {
		t.Error("chunk above 1.5x median not detected")
	}
}

func TestGateSilentHistory(t *testing.T) {
	g := NewActivityGate()
	// During pure silence the gate must stay closed forever: the mean never
	// exceeds a zero threshold.
	for i := range 600 {
		if g.Detect(flat(0, 64)) {
			t.Fatalf("call %d: silence detected as activity", i+1)
		}
	}
}

func TestGateHistoryBounded(t *testing.T) {
	g := NewActivityGate()
	// Long noisy past, then a much quieter present: once the loud history
	// has been fully evicted the gate recalibrates to the new floor.
	for range 480 {
		g.Detect(flat(10, 64))
	}
	for range 480 {
		g.Detect(flat(0.1, 64))
	}
	if !g.Detect(flat(0.5, 64)) {
		t.Error("gate did not recalibrate after noise floor dropped")
	}
}

func TestGateEmptyEnvelope(t *testing.T) {
	g := NewActivityGate()
	for range 20 {
		g.Detect(flat(0.1, 64))
	}
	if g.Detect(nil) {
		t.Error("empty envelope detected as active")
	}
}

func TestGateReset(t *testing.T) {
	g := NewActivityGate()
	for range 20 {
		g.Detect(flat(0.1, 64))
	}
	g.Reset()
	// Warm-up applies again after reset.
	if g.Detect(flat(100, 64)) {
		t.Error("active immediately after Reset; warm-up not restored")
	}
}
