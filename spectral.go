package morse

import (
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// minProbeMagnitude is the absolute normalized magnitude floor below
// which a spectral peak is treated as noise.
const minProbeMagnitude = 0.01

// relativeProbeFloor drops peaks weaker than this fraction of the
// strongest peak found.
const relativeProbeFloor = 0.3

// Standard probe window for CW discovery: most operators key between
// 300 and 1200 Hz, and two readable signals sit at least ~40 Hz apart.
const (
	ProbeFFTSize    = 4096
	ProbeMinFreq    = 300.0
	ProbeMaxFreq    = 1200.0
	ProbeMinSpacing = 40.0
)

// SpectralProbe scans a stretch of audio for dominant tones. It runs
// once at startup to discover active carrier frequencies when no
// channels were configured explicitly.
type SpectralProbe struct {
	sampleRate float64
	fftSize    int
	window     []float64
}

func NewSpectralProbe(sampleRate float64, fftSize int) *SpectralProbe {
	return &SpectralProbe{
		sampleRate: sampleRate,
		fftSize:    fftSize,
		window:     window.Blackman(fftSize),
	}
}

// FFTSize returns the number of samples Probe needs.
func (p *SpectralProbe) FFTSize() int { return p.fftSize }

// Probe returns up to max tone frequencies between minFreq and maxFreq,
// strongest first. Peaks closer than minSpacing Hz to a stronger one are
// folded into it. Returns nil when samples are too short or nothing
// rises above the noise floor.
func (p *SpectralProbe) Probe(samples []float64, minFreq, maxFreq, minSpacing float64, max int) []float64 {
	if len(samples) < p.fftSize || max <= 0 {
		return nil
	}

	// Use the newest fftSize samples, windowed to tame leakage.
	input := samples[len(samples)-p.fftSize:]
	windowed := make([]float64, p.fftSize)
	for i, v := range input {
		windowed[i] = v * p.window[i]
	}
	spectrum := fft.FFTReal(windowed)

	binRes := p.sampleRate / float64(p.fftSize)
	minBin := int(minFreq / binRes)
	if minBin < 1 {
		minBin = 1
	}
	maxBin := int(maxFreq / binRes)
	if maxBin > len(spectrum)/2-1 {
		maxBin = len(spectrum)/2 - 1
	}

	type peak struct {
		freq float64
		mag  float64
	}
	var peaks []peak
	for i := minBin; i <= maxBin; i++ {
		y1 := cmplx.Abs(spectrum[i-1])
		y2 := cmplx.Abs(spectrum[i])
		y3 := cmplx.Abs(spectrum[i+1])
		if y2 < y1 || y2 <= y3 {
			continue
		}
		normalized := y2 * 2 / float64(p.fftSize)
		if normalized < minProbeMagnitude {
			continue
		}
		// Parabolic interpolation refines the peak between bins.
		delta := 0.0
		if denom := 2 * (2*y2 - y1 - y3); denom != 0 {
			delta = (y3 - y1) / denom
		}
		peaks = append(peaks, peak{freq: (float64(i) + delta) * binRes, mag: normalized})
	}
	if len(peaks) == 0 {
		return nil
	}

	sort.Slice(peaks, func(a, b int) bool { return peaks[a].mag > peaks[b].mag })
	floor := peaks[0].mag * relativeProbeFloor

	var freqs []float64
	for _, pk := range peaks {
		if pk.mag < floor {
			break
		}
		tooClose := false
		for _, f := range freqs {
			if diff := pk.freq - f; diff < minSpacing && diff > -minSpacing {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		freqs = append(freqs, pk.freq)
		if len(freqs) == max {
			break
		}
	}
	return freqs
}
