package morse

import (
	"fmt"
	"math"
	"strings"
)

// keyEdgeHz is the cutoff of the envelope shaping filter. A fourth-order
// low-pass at this corner rounds the key edges over a few milliseconds,
// enough to keep clicks out of the spectrum without softening dits at
// high speed.
const keyEdgeHz = 100.0

// Keyer renders text as on-off keyed sine audio with standard element
// timing: dot 1 unit, dash 3, gap between elements 1, between characters
// 3, between words 7. The output is what the decoder expects to hear, so
// the keyer doubles as the test-signal generator, and mixing several
// keyers at different frequencies produces multi-channel input.
type Keyer struct {
	// Amplitude scales the rendered tone, default 0.8.
	Amplitude float64
	// Spacing stretches the gaps between characters and words
	// (Farnsworth style): elements keep their speed, a value of 1.5 makes
	// the pauses half again as long. Default 1.0, values below are
	// ignored.
	Spacing float64

	sampleRate float64
	frequency  float64
	dit        float64 // seconds per unit
	shaper     *ButterworthFilter
}

// NewKeyer builds a keyer for one tone. The frequency must be resolvable
// at the sample rate and the speed positive.
func NewKeyer(frequency, sampleRate, wpm float64) (*Keyer, error) {
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if frequency <= 0 || frequency >= sampleRate/2 {
		return nil, ErrInvalidFrequency
	}
	if wpm <= 0 {
		return nil, ErrInvalidWPM
	}
	return &Keyer{
		Amplitude:  0.8,
		Spacing:    1.0,
		sampleRate: sampleRate,
		frequency:  frequency,
		dit:        wpmDitProduct / wpm,
		shaper:     NewButterworthLowpass(4, sampleRate, keyEdgeHz),
	}, nil
}

// Render returns keyed audio for the text. Letters are case-insensitive;
// spaces become word gaps. A character without a Morse code is an error
// rather than silently dropped output.
func (k *Keyer) Render(text string) ([]float64, error) {
	key, err := k.keyLine(strings.ToUpper(text))
	if err != nil {
		return nil, err
	}

	// Shape the raw on/off line, then modulate the carrier with it.
	k.shaper.Reset()
	out := make([]float64, len(key))
	phaseInc := 2 * math.Pi * k.frequency / k.sampleRate
	phase := 0.0
	for i, on := range key {
		envelope := k.shaper.Process(on)
		out[i] = k.Amplitude * envelope * math.Sin(phase)
		phase += phaseInc
	}
	return out, nil
}

// keyLine builds the unshaped 0/1 key line, one value per sample.
func (k *Keyer) keyLine(text string) ([]float64, error) {
	var key []float64
	level := func(on float64, units float64) {
		n := int(units * k.dit * k.sampleRate)
		for i := 0; i < n; i++ {
			key = append(key, on)
		}
	}

	spacing := k.Spacing
	if spacing < 1 {
		spacing = 1
	}

	// One unit of lead-in silence gives the first element a clean rising
	// edge and lets a decoder settle its noise baseline before it.
	level(0, 1)

	// Gaps are written lazily before the next element so a word gap is 7
	// units total, not a character gap plus a word gap.
	pendingGap := 0.0
	for _, r := range text {
		if r == ' ' {
			pendingGap = wordGapRatio * spacing
			continue
		}
		marks, ok := Encode(string(r))
		if !ok {
			return nil, fmt.Errorf("no morse code for %q", r)
		}
		for i := 0; i < len(marks); i++ {
			gap := 1.0
			if i == 0 {
				gap = pendingGap
			}
			level(0, gap)
			if marks[i] == '.' {
				level(1, 1)
			} else {
				level(1, 3)
			}
		}
		pendingGap = charGapRatio * spacing
	}

	// Trailing silence lets the shaping filter ring out and gives the
	// decoder a clean final edge.
	level(0, 2)
	return key, nil
}

// Mix sums several rendered streams into one, scaled so the result cannot
// clip. Shorter streams are treated as silence past their end.
func Mix(streams ...[]float64) []float64 {
	if len(streams) == 0 {
		return nil
	}
	maxLen := 0
	for _, s := range streams {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	out := make([]float64, maxLen)
	scale := 1.0 / float64(len(streams))
	for _, s := range streams {
		for i, v := range s {
			out[i] += v * scale
		}
	}
	return out
}
