package melspec

import "math"

// hannWindow generates a Hann window of the given length.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// hzToMel converts frequency in Hz to mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale frequency back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank creates the triangular mel filterbank matrix.
// Returns [numMels][halfFFT] where halfFFT = fftSize/2 + 1.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	halfFFT := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	// numMels + 2 evenly spaced mel points mapped back to Hz, then to bins.
	melPoints := make([]float64, numMels+2)
	step := (highMel - lowMel) / float64(numMels+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*step
	}

	bins := make([]int, numMels+2)
	for i, m := range melPoints {
		hz := melToHz(m)
		bin := int(math.Round(hz * float64(fftSize) / float64(sampleRate)))
		if bin >= halfFFT {
			bin = halfFFT - 1
		}
		bins[i] = bin
	}

	// Narrow band edges can collapse onto the same bin; force a minimum
	// one-bin width so every filter has support. When the band spans fewer
	// FFT bins than numMels+1 this pushes the upper filters past highFreq,
	// widening the effective band (the default 100-800 Hz config covers
	// roughly 23 bins for 64 filters and tops out near 2.1 kHz).
	for i := 1; i < len(bins); i++ {
		if bins[i] <= bins[i-1] {
			bins[i] = bins[i-1] + 1
		}
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float64, halfFFT)
		left := bins[m]
		center := bins[m+1]
		right := bins[m+2]

		// Rising ramp left..center, falling ramp center..right.
		for k := left; k < center && k < halfFFT; k++ {
			if center != left {
				filter[k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k <= right && k < halfFFT; k++ {
			if right != center {
				filter[k] = float64(right-k) / float64(right-center)
			}
		}
		bank[m] = filter
	}
	return bank
}
