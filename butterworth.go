package morse

import "math"

// BiquadFilter is one second-order IIR section in transposed direct form
// II. Higher-order filters cascade several of these.
type BiquadFilter struct {
	a0, a1, a2, b1, b2 float64 // coefficients
	z1, z2             float64 // delay line
}

// Process filters a single sample.
func (f *BiquadFilter) Process(in float64) float64 {
	out := in*f.a0 + f.z1
	f.z1 = in*f.a1 - out*f.b1 + f.z2
	f.z2 = in*f.a2 - out*f.b2
	return out
}

// ButterworthFilter is an N-th order Butterworth low-pass built as a
// cascade of biquad sections. The keyer runs the on/off key line through
// one of these so the rendered tone has rounded edges instead of key
// clicks.
type ButterworthFilter struct {
	sections []BiquadFilter
}

// NewButterworthLowpass designs an order-N low-pass via the bilinear
// transform. The order must be even (each section covers one conjugate
// pole pair); an odd order is a programming error and panics.
func NewButterworthLowpass(order int, sampleRate, cutoff float64) *ButterworthFilter {
	if order%2 != 0 {
		panic("butterworth order must be even")
	}

	// tan() blows up toward Nyquist, keep the cutoff strictly below it.
	if cutoff >= sampleRate*0.499 {
		cutoff = sampleRate * 0.499
	}

	// Prewarp the cutoff so the digital filter lands on the analog target.
	w := 2.0 * sampleRate * math.Tan(math.Pi*cutoff/sampleRate)

	sections := make([]BiquadFilter, order/2)
	for i := range sections {
		// Cascade low-Q sections first; the reversed pole index keeps the
		// intermediate signal from peaking before the high-Q stages.
		poleIdx := len(sections) - 1 - i
		theta := math.Pi * (2.0*float64(poleIdx) + 1.0) / (2.0 * float64(order))

		pRe := -w * math.Sin(theta)
		pIm := w * math.Cos(theta)

		// Bilinear transform with K = 2*sampleRate. alpha is the z^0
		// denominator coefficient K^2 - 2*K*pRe + |p|^2 (pRe < 0, so the
		// middle term adds).
		alpha := 4.0*sampleRate*sampleRate - 4.0*sampleRate*pRe + pRe*pRe + pIm*pIm

		sections[i] = BiquadFilter{
			a0: (w * w) / alpha,
			a1: (2.0 * w * w) / alpha,
			a2: (w * w) / alpha,
			b1: (-8.0*sampleRate*sampleRate + 2.0*(pRe*pRe+pIm*pIm)) / alpha,
			b2: (4.0*sampleRate*sampleRate + 4.0*sampleRate*pRe + pRe*pRe + pIm*pIm) / alpha,
		}
	}

	return &ButterworthFilter{sections: sections}
}

// Process runs a sample through every section.
func (f *ButterworthFilter) Process(in float64) float64 {
	out := in
	for i := range f.sections {
		out = f.sections[i].Process(out)
	}
	return out
}

// Reset clears all delay lines.
func (f *ButterworthFilter) Reset() {
	for i := range f.sections {
		f.sections[i].z1 = 0
		f.sections[i].z2 = 0
	}
}
