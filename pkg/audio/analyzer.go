package audio

import (
	"math"
	"sync"
)

// Analyzer is a read-only tap over the capture stream. The capture pipeline
// feeds every block into it; consumers (the UI bridge) poll RMS level and a
// coarse magnitude spectrum for rendering.
//
// Safe for concurrent use. Feeding and reading never block each other for
// longer than a copy of the window.
type Analyzer struct {
	mu     sync.Mutex
	window []float32
	pos    int
	filled bool
	rate   int
}

// NewAnalyzer creates an Analyzer holding the most recent windowSize samples.
// windowSize must be positive; typical values are one or two block lengths.
func NewAnalyzer(windowSize, sampleRate int) *Analyzer {
	if windowSize <= 0 {
		windowSize = 2048
	}
	return &Analyzer{
		window: make([]float32, windowSize),
		rate:   sampleRate,
	}
}

// Feed appends samples to the rolling window, overwriting the oldest data.
func (a *Analyzer) Feed(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.window[a.pos] = s
		a.pos++
		if a.pos == len(a.window) {
			a.pos = 0
			a.filled = true
		}
	}
}

// RMS returns the root-mean-square level of the current window in [0, 1].
func (a *Analyzer) RMS() float64 {
	samples := a.snapshot()
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Spectrum returns bins magnitude values covering 0 Hz up to half the sample
// rate, computed with the Goertzel algorithm per bin over the current window.
// Magnitudes are normalised to [0, 1]. Returns nil if bins is not positive.
func (a *Analyzer) Spectrum(bins int) []float64 {
	if bins <= 0 {
		return nil
	}
	samples := a.snapshot()
	out := make([]float64, bins)
	if len(samples) == 0 {
		return out
	}

	n := float64(len(samples))
	for b := range bins {
		// Center frequency of the bin as a fraction of Nyquist.
		k := (float64(b) + 0.5) / float64(bins) * n / 2
		w := 2 * math.Pi * k / n
		cosW := math.Cos(w)

		var s0, s1, s2 float64
		for _, x := range samples {
			s0 = float64(x) + 2*cosW*s1 - s2
			s2 = s1
			s1 = s0
		}
		power := s1*s1 + s2*s2 - 2*cosW*s1*s2
		out[b] = math.Min(1, math.Sqrt(math.Max(0, power))/(n/2))
	}
	return out
}

// SampleRate returns the rate the analyzer was created with.
func (a *Analyzer) SampleRate() int { return a.rate }

// snapshot copies the window in chronological order.
func (a *Analyzer) snapshot() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.filled {
		out := make([]float32, a.pos)
		copy(out, a.window[:a.pos])
		return out
	}
	out := make([]float32, len(a.window))
	n := copy(out, a.window[a.pos:])
	copy(out[n:], a.window[:a.pos])
	return out
}
