package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/sprachcoach/pkg/audio"
)

func TestAnalyzer_RMS_EmptyWindow(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(1024, 16000)
	if got := a.RMS(); got != 0 {
		t.Errorf("RMS() = %v on empty window; want 0", got)
	}
}

func TestAnalyzer_RMS_ConstantSignal(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(256, 16000)

	block := make([]float32, 256)
	for i := range block {
		block[i] = 0.5
	}
	a.Feed(block)

	if got := a.RMS(); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("RMS() = %v; want 0.5", got)
	}
}

func TestAnalyzer_RMS_RollingWindowKeepsNewest(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(128, 16000)

	loud := make([]float32, 128)
	for i := range loud {
		loud[i] = 0.8
	}
	quiet := make([]float32, 128)

	a.Feed(loud)
	a.Feed(quiet) // overwrites the whole window

	if got := a.RMS(); got != 0 {
		t.Errorf("RMS() = %v after silence filled the window; want 0", got)
	}
}

func TestAnalyzer_Spectrum_PeakAtToneBin(t *testing.T) {
	t.Parallel()
	const (
		window = 1024
		bins   = 8
		tone   = 4 // bin index carrying the test tone
	)
	a := audio.NewAnalyzer(window, 16000)

	// Synthesize a sine whose frequency sits at the center of the tone bin.
	k := (float64(tone) + 0.5) / float64(bins) * float64(window) / 2
	samples := make([]float32, window)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * k * float64(i) / float64(window)))
	}
	a.Feed(samples)

	spectrum := a.Spectrum(bins)
	if len(spectrum) != bins {
		t.Fatalf("Spectrum len = %d; want %d", len(spectrum), bins)
	}

	maxBin := 0
	for b, v := range spectrum {
		if v > spectrum[maxBin] {
			maxBin = b
		}
	}
	if maxBin != tone {
		t.Errorf("peak at bin %d; want bin %d", maxBin, tone)
	}
	if spectrum[tone] < 0.5 {
		t.Errorf("tone bin magnitude = %v; want >= 0.5", spectrum[tone])
	}
	for b, v := range spectrum {
		if v < 0 || v > 1 {
			t.Errorf("bin %d magnitude %v outside [0, 1]", b, v)
		}
	}
}

func TestAnalyzer_Spectrum_EmptyWindowIsSilent(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(512, 16000)

	for b, v := range a.Spectrum(16) {
		if v != 0 {
			t.Errorf("bin %d = %v on empty window; want 0", b, v)
		}
	}
}

func TestAnalyzer_Spectrum_InvalidBins(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(512, 16000)
	if got := a.Spectrum(0); got != nil {
		t.Errorf("Spectrum(0) = %v; want nil", got)
	}
	if got := a.Spectrum(-4); got != nil {
		t.Errorf("Spectrum(-4) = %v; want nil", got)
	}
}

func TestAnalyzer_SampleRate(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(512, 44100)
	if got := a.SampleRate(); got != 44100 {
		t.Errorf("SampleRate() = %d; want 44100", got)
	}
}

func TestNewAnalyzer_NonPositiveWindow_Defaults(t *testing.T) {
	t.Parallel()
	a := audio.NewAnalyzer(0, 16000)
	// Must accept feeds without panicking.
	a.Feed(make([]float32, 4096))
	if a.RMS() != 0 {
		t.Errorf("RMS() = %v for silence; want 0", a.RMS())
	}
}
