package morse

import (
	"math"
	"testing"
)

// Probe tests run at the test rate with a 4096-point FFT: bin resolution
// is exactly 2 Hz, and tones at even frequencies land on bin centers.
func newTestProbe() *SpectralProbe {
	return NewSpectralProbe(testRate, ProbeFFTSize)
}

func probeBand(p *SpectralProbe, samples []float64, max int) []float64 {
	return p.Probe(samples, ProbeMinFreq, ProbeMaxFreq, ProbeMinSpacing, max)
}

func TestProbeFindsSingleTone(t *testing.T) {
	p := newTestProbe()
	samples := genTone(testFreq, testRate, ProbeFFTSize, 1.0)

	freqs := probeBand(p, samples, 4)
	if len(freqs) != 1 {
		t.Fatalf("Probe found %d tones (%v), want 1", len(freqs), freqs)
	}
	if math.Abs(freqs[0]-testFreq) > 0.5 {
		t.Errorf("tone at %v Hz, want %v", freqs[0], testFreq)
	}
}

// A tone between bin centers must come back refined by interpolation,
// well inside one bin of the true frequency.
func TestProbeInterpolatesOffBinTone(t *testing.T) {
	p := newTestProbe()
	const freq = 768.5 // bin 384.25 at 2 Hz resolution
	samples := genTone(freq, testRate, ProbeFFTSize, 1.0)

	freqs := probeBand(p, samples, 4)
	if len(freqs) != 1 {
		t.Fatalf("Probe found %d tones (%v), want 1", len(freqs), freqs)
	}
	if math.Abs(freqs[0]-freq) > 1.0 {
		t.Errorf("tone at %v Hz, want within 1 Hz of %v", freqs[0], freq)
	}
}

func TestProbeOrdersByStrength(t *testing.T) {
	p := newTestProbe()
	samples := Mix(
		genTone(900, testRate, ProbeFFTSize, 0.6),
		genTone(500, testRate, ProbeFFTSize, 1.0),
	)

	freqs := probeBand(p, samples, 4)
	if len(freqs) != 2 {
		t.Fatalf("Probe found %d tones (%v), want 2", len(freqs), freqs)
	}
	if math.Abs(freqs[0]-500) > 0.5 || math.Abs(freqs[1]-900) > 0.5 {
		t.Errorf("tones = %v, want [500 900] strongest first", freqs)
	}
}

func TestProbeHonorsMaxCount(t *testing.T) {
	p := newTestProbe()
	samples := Mix(
		genTone(400, testRate, ProbeFFTSize, 1.0),
		genTone(600, testRate, ProbeFFTSize, 0.9),
		genTone(800, testRate, ProbeFFTSize, 0.8),
	)

	freqs := probeBand(p, samples, 2)
	if len(freqs) != 2 {
		t.Fatalf("Probe returned %d tones (%v), want max 2", len(freqs), freqs)
	}
	if math.Abs(freqs[0]-400) > 0.5 || math.Abs(freqs[1]-600) > 0.5 {
		t.Errorf("tones = %v, want the two strongest [400 600]", freqs)
	}
}

func TestProbeFoldsNearbyPeaks(t *testing.T) {
	p := newTestProbe()
	samples := Mix(
		genTone(700, testRate, ProbeFFTSize, 1.0),
		genTone(720, testRate, ProbeFFTSize, 0.8),
	)

	freqs := probeBand(p, samples, 4)
	if len(freqs) != 1 {
		t.Fatalf("Probe found %d tones (%v), want nearby peaks folded into 1", len(freqs), freqs)
	}
	if math.Abs(freqs[0]-700) > 1.0 {
		t.Errorf("kept tone at %v Hz, want the stronger one at 700", freqs[0])
	}
}

func TestProbeIgnoresQuietAndSilentInput(t *testing.T) {
	p := newTestProbe()

	if freqs := probeBand(p, genSilence(ProbeFFTSize), 4); freqs != nil {
		t.Errorf("Probe on silence = %v, want nil", freqs)
	}

	quiet := genTone(testFreq, testRate, ProbeFFTSize, 0.005)
	if freqs := probeBand(p, quiet, 4); freqs != nil {
		t.Errorf("Probe on sub-floor tone = %v, want nil", freqs)
	}
}

func TestProbeRespectsBandLimits(t *testing.T) {
	p := newTestProbe()

	low := genTone(200, testRate, ProbeFFTSize, 1.0)
	if freqs := probeBand(p, low, 4); freqs != nil {
		t.Errorf("Probe found %v below the band floor", freqs)
	}

	high := genTone(1400, testRate, ProbeFFTSize, 1.0)
	if freqs := probeBand(p, high, 4); freqs != nil {
		t.Errorf("Probe found %v above the band ceiling", freqs)
	}
}

func TestProbeNeedsEnoughSamples(t *testing.T) {
	p := newTestProbe()
	short := genTone(testFreq, testRate, ProbeFFTSize-1, 1.0)
	if freqs := probeBand(p, short, 4); freqs != nil {
		t.Errorf("Probe on short input = %v, want nil", freqs)
	}
	if freqs := probeBand(p, genTone(testFreq, testRate, ProbeFFTSize, 1.0), 0); freqs != nil {
		t.Errorf("Probe with max 0 = %v, want nil", freqs)
	}
	if got := p.FFTSize(); got != ProbeFFTSize {
		t.Errorf("FFTSize() = %d, want %d", got, ProbeFFTSize)
	}
}
