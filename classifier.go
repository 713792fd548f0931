package morse

import "errors"

// ErrInvalidThresholds reports hysteresis ratios that cannot hold a stable
// level (the on ratio must sit strictly above the off ratio).
var ErrInvalidThresholds = errors.New("invalid hysteresis thresholds")

// baselineEpsilon floors the baseline before the ratio division so a dead
// channel can never produce NaN or Inf.
const baselineEpsilon = 1e-12

// Transition reports that one level just ended after Duration seconds.
type Transition struct {
	ToneEnded bool    // true: a tone run ended, false: a silence run ended
	Duration  float64 // seconds the run lasted
}

// ToneClassifier turns the per-block tone power of one channel into stable
// tone/silence runs. It compares the power against a slow noise baseline
// and applies hysteresis to the ratio: crossing the on threshold enters
// TONE, only falling below the lower off threshold leaves it, and anything
// between holds the current level. That keeps envelope flutter near one
// threshold from shredding a dash into spurious dits.
type ToneClassifier struct {
	cfg DetectorConfig

	baseline  float64 // noise power EMA
	lastRatio float64 // power/baseline of the most recent block
	tone      bool    // current level
	run       float64 // seconds spent in the current level
	primed    bool    // first block seeds the baseline instead of comparing
}

// NewToneClassifier builds a classifier. The on ratio must exceed the off
// ratio, otherwise the hysteresis band is empty or inverted.
func NewToneClassifier(cfg DetectorConfig) (*ToneClassifier, error) {
	if cfg.OnRatio <= cfg.OffRatio || cfg.OffRatio <= 0 ||
		cfg.BaselineAlpha <= 0 || cfg.BaselineAlpha > 1 {
		return nil, ErrInvalidThresholds
	}
	return &ToneClassifier{cfg: cfg}, nil
}

// Feed consumes one block's power and its duration in seconds. It returns
// the completed run when the level flips, nil while the level holds. The
// first block only seeds the baseline and starts the first run; no
// transition can be reported before a second level has been seen.
func (c *ToneClassifier) Feed(power, dt float64) *Transition {
	if !c.primed {
		c.baseline = power
		c.lastRatio = c.ratio(power)
		c.tone = c.lastRatio > c.cfg.OnRatio
		c.run = dt
		c.primed = true
		return nil
	}

	ratio := c.ratio(power)
	c.lastRatio = ratio
	c.baseline += c.cfg.BaselineAlpha * (power - c.baseline)

	next := c.tone
	if c.tone {
		if ratio < c.cfg.OffRatio {
			next = false
		}
	} else {
		if ratio > c.cfg.OnRatio {
			next = true
		}
	}

	if next == c.tone {
		c.run += dt
		return nil
	}

	tr := &Transition{ToneEnded: c.tone, Duration: c.run}
	c.tone = next
	c.run = dt
	return tr
}

// Flush returns the still-open run as if a transition had just happened,
// or nil when no block was ever classified. The classifier is left primed
// with a zero-length run, so feeding further blocks remains valid.
func (c *ToneClassifier) Flush() *Transition {
	if !c.primed || c.run <= 0 {
		return nil
	}
	tr := &Transition{ToneEnded: c.tone, Duration: c.run}
	c.run = 0
	return tr
}

// Tone reports the current level.
func (c *ToneClassifier) Tone() bool { return c.tone }

// Baseline returns the current noise power estimate.
func (c *ToneClassifier) Baseline() float64 { return c.baseline }

// Ratio returns power/baseline of the most recent block.
func (c *ToneClassifier) Ratio() float64 { return c.lastRatio }

func (c *ToneClassifier) ratio(power float64) float64 {
	b := c.baseline
	if b < baselineEpsilon {
		b = baselineEpsilon
	}
	return power / b
}
