package morse

import (
	"errors"
	"math"
)

// ErrInvalidFrequency reports a tone frequency outside (0, sampleRate/2).
var ErrInvalidFrequency = errors.New("frequency must lie strictly between 0 and Nyquist")

// Goertzel measures the power of one frequency over a block of samples.
// It is a two-pole resonator, much cheaper than an FFT when only a single
// bin is needed, and exact for any target frequency rather than just bin
// centers.
type Goertzel struct {
	coeff float64
}

// NewGoertzel prepares a detector for the given tone. The frequency must
// sit strictly inside (0, sampleRate/2); anything else cannot be resolved
// at this sample rate and is rejected here rather than at block time.
func NewGoertzel(frequency, sampleRate float64) (*Goertzel, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if frequency <= 0 || frequency >= sampleRate/2 {
		return nil, ErrInvalidFrequency
	}

	// coeff = 2 * cos(2 * PI * f / fs)
	return &Goertzel{coeff: 2.0 * math.Cos(2.0*math.Pi*frequency/sampleRate)}, nil
}

// BlockPower runs the resonator over one block and returns the power of the
// target frequency in it. Every block is measured independently; no state
// carries over. Result is always finite and >= 0.
func (g *Goertzel) BlockPower(samples []float64) float64 {
	q1, q2 := 0.0, 0.0
	for _, s := range samples {
		q0 := g.coeff*q1 - q2 + s
		q2 = q1
		q1 = q0
	}

	// power = q1^2 + q2^2 - q1*q2*coeff, clamped against rounding below zero
	p := q1*q1 + q2*q2 - q1*q2*g.coeff
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}
