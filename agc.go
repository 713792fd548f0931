package morse

import (
	"errors"
	"math"
)

// ErrInvalidGain reports unusable AGC parameters.
var ErrInvalidGain = errors.New("invalid gain parameters")

// rmsEpsilon is the block loudness below which the input counts as silence
// and the gain loop holds still instead of amplifying noise toward the
// target.
const rmsEpsilon = 1e-6

// AGC keeps the stream near a target loudness with one slowly adapting gain
// scalar. The smoothing constant is small enough that the gain follows the
// operator's audio level, not the keying rhythm, so dits are not squashed
// against the silence between them.
type AGC struct {
	cfg     AGCConfig
	gain    float64
	enabled bool
	scratch []float64 // reused output buffer, input blocks are never mutated
}

// NewAGC builds the gain stage. Parameters are assumed pre-validated by
// Config.Validate; NewSession rejects bad ones before this runs.
func NewAGC(cfg AGCConfig) *AGC {
	return &AGC{cfg: cfg, gain: 1.0, enabled: cfg.Enabled}
}

// SetEnabled switches normalization on or off. Off means blocks pass
// through untouched.
func (a *AGC) SetEnabled(on bool) { a.enabled = on }

// Enabled reports whether normalization is active.
func (a *AGC) Enabled() bool { return a.enabled }

// Gain returns the current gain scalar.
func (a *AGC) Gain() float64 { return a.gain }

// Apply updates the gain from the block RMS and returns the scaled block.
// A near-silent block leaves the gain unchanged. The returned slice is
// owned by the AGC and only valid until the next call.
func (a *AGC) Apply(block []float64) []float64 {
	if !a.enabled {
		return block
	}

	var sum float64
	for _, s := range block {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(block)))

	if rms > rmsEpsilon && !math.IsNaN(rms) && !math.IsInf(rms, 0) {
		desired := a.cfg.TargetRMS / rms
		if desired < a.cfg.MinGain {
			desired = a.cfg.MinGain
		} else if desired > a.cfg.MaxGain {
			desired = a.cfg.MaxGain
		}
		a.gain += a.cfg.GainAlpha * (desired - a.gain)
	}

	if cap(a.scratch) < len(block) {
		a.scratch = make([]float64, len(block))
	}
	out := a.scratch[:len(block)]
	for i, s := range block {
		out[i] = s * a.gain
	}
	return out
}
