package morse

import "errors"

// ErrInvalidWPM reports a speed that is zero, negative or otherwise
// unusable.
var ErrInvalidWPM = errors.New("invalid words-per-minute value")

// wpmDitProduct converts between dit seconds and PARIS words per minute:
// "PARIS" is 50 dit units, so wpm = 60 / (50 * dit) = 1.2 / dit.
const wpmDitProduct = 1.2

// SpeedTracker estimates the sender's dit length from the elements already
// classified on one channel. Dots and dashes feed separate EMAs and the dit
// combines both, so a stream of only dashes (all Ts, say) still tracks the
// sender instead of drifting. In manual mode the dit is pinned and the EMAs
// stand still.
type SpeedTracker struct {
	cfg SpeedConfig

	dit     float64 // current dit estimate (s), always clamped positive
	dotEMA  float64
	dashEMA float64
	manual  bool
}

// NewSpeedTracker seeds the tracker at the configured initial speed.
// Parameters are assumed pre-validated by Config.Validate.
func NewSpeedTracker(cfg SpeedConfig) *SpeedTracker {
	t := &SpeedTracker{cfg: cfg}
	wpm := cfg.InitialWPM
	if cfg.Manual {
		t.manual = true
		wpm = cfg.ManualWPM
	}
	t.dit = t.clamp(wpmDitProduct / wpm)
	t.dotEMA = t.dit
	t.dashEMA = 3 * t.dit
	return t
}

// Observe feeds one classified tone element. In automatic mode it updates
// the matching EMA and re-derives the dit; manual mode ignores it.
func (t *SpeedTracker) Observe(mark byte, duration float64) {
	if t.manual {
		return
	}
	if mark == '.' {
		t.dotEMA += t.cfg.EMAAlpha * (duration - t.dotEMA)
	} else {
		t.dashEMA += t.cfg.EMAAlpha * (duration - t.dashEMA)
	}
	// A dash is nominally three dits, so both estimators vote on the same
	// quantity and the dit averages them.
	t.dit = t.clamp((t.dotEMA + t.dashEMA/3) / 2)
}

// SetManual pins the speed to the given WPM until SetAuto. Rejects
// non-positive speeds.
func (t *SpeedTracker) SetManual(wpm float64) error {
	if wpm <= 0 {
		return ErrInvalidWPM
	}
	t.manual = true
	t.dit = t.clamp(wpmDitProduct / wpm)
	return nil
}

// SetAuto resumes adaptive tracking from the current estimate. The EMAs are
// re-seeded at the pinned dit so adaptation continues from there rather
// than from stale pre-manual values.
func (t *SpeedTracker) SetAuto() {
	if !t.manual {
		return
	}
	t.manual = false
	t.dotEMA = t.dit
	t.dashEMA = 3 * t.dit
}

// Dit returns the current dit length in seconds.
func (t *SpeedTracker) Dit() float64 { return t.dit }

// WPM returns the current speed estimate.
func (t *SpeedTracker) WPM() float64 { return wpmDitProduct / t.dit }

// Manual reports whether the speed is pinned.
func (t *SpeedTracker) Manual() bool { return t.manual }

func (t *SpeedTracker) clamp(dit float64) float64 {
	if dit < t.cfg.MinDit {
		return t.cfg.MinDit
	}
	if dit > t.cfg.MaxDit {
		return t.cfg.MaxDit
	}
	return dit
}
