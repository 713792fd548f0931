package morse

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable of the decoding pipeline in one place.
// The zero value is not usable; start from DefaultConfig and override.
type Config struct {
	SampleRate float64 `yaml:"sample_rate"` // input sample rate (Hz), e.g. 48000
	BlockSize  int     `yaml:"block_size"`  // samples per analysis block, e.g. 1024 (~21ms at 48kHz)
	Parallel   bool    `yaml:"parallel"`    // fan blocks out to channels on separate goroutines
	LogLevel   string  `yaml:"log_level"`   // debug | info | warn | error

	// Channels lists the tone frequencies to decode out of the shared stream.
	Channels []ChannelConfig `yaml:"channels"`

	AGC      AGCConfig      `yaml:"agc"`
	Detector DetectorConfig `yaml:"detector"`
	Speed    SpeedConfig    `yaml:"speed"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

// ChannelConfig identifies one decoder channel. Immutable once the session
// is created.
type ChannelConfig struct {
	ID        int     `yaml:"id"`
	Frequency float64 `yaml:"frequency"` // tone frequency (Hz), must sit below Nyquist
}

// AGCConfig tunes the input gain loop.
type AGCConfig struct {
	Enabled   bool    `yaml:"enabled"`
	TargetRMS float64 `yaml:"target_rms"` // loudness the gain loop steers toward, e.g. 0.3
	GainAlpha float64 `yaml:"gain_alpha"` // gain smoothing per block, ~1e-3 so keying never pumps the gain
	MinGain   float64 `yaml:"min_gain"`   // gain clamp floor
	MaxGain   float64 `yaml:"max_gain"`   // gain clamp ceiling, bounds noise amplification on dead input
}

// DetectorConfig tunes the tone/silence hysteresis per channel.
type DetectorConfig struct {
	OnRatio       float64 `yaml:"on_ratio"`       // power/baseline ratio to enter TONE, e.g. 1.8
	OffRatio      float64 `yaml:"off_ratio"`      // power/baseline ratio to leave TONE, e.g. 1.2
	BaselineAlpha float64 `yaml:"baseline_alpha"` // baseline power smoothing per block, ~1e-2
}

// SpeedConfig tunes the per-channel keying speed tracker.
type SpeedConfig struct {
	InitialWPM float64 `yaml:"initial_wpm"` // starting assumption before any elements arrive
	Manual     bool    `yaml:"manual"`      // lock speed instead of adapting
	ManualWPM  float64 `yaml:"manual_wpm"`  // speed used when Manual is set
	EMAAlpha   float64 `yaml:"ema_alpha"`   // dot/dash length smoothing, e.g. 0.2
	MinDit     float64 `yaml:"min_dit"`     // shortest dit (s), 0.024 is ~50 WPM
	MaxDit     float64 `yaml:"max_dit"`     // longest dit (s), 0.24 is ~5 WPM
}

// MQTTConfig enables the optional MQTT event sink when Broker is non-empty.
type MQTTConfig struct {
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"` // events publish to <prefix>/<channel id>
}

// Sentinel errors for config and setup validation.
var (
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidBlockSize  = errors.New("block size must be positive")
)

// DefaultConfig returns the tuned defaults.
func DefaultConfig() *Config {
	cfg := &Config{
		SampleRate: 48000,
		BlockSize:  1024,
		Parallel:   true,
		LogLevel:   "info",
	}

	cfg.AGC.Enabled = true
	cfg.AGC.TargetRMS = 0.3
	cfg.AGC.GainAlpha = 0.001
	cfg.AGC.MinGain = 0.05
	cfg.AGC.MaxGain = 100.0

	cfg.Detector.OnRatio = 1.8
	cfg.Detector.OffRatio = 1.2
	cfg.Detector.BaselineAlpha = 0.01

	cfg.Speed.InitialWPM = 20
	cfg.Speed.Manual = false
	cfg.Speed.ManualWPM = 20
	cfg.Speed.EMAAlpha = 0.2
	cfg.Speed.MinDit = 0.024 // 50 WPM
	cfg.Speed.MaxDit = 0.24  // 5 WPM

	cfg.MQTT.TopicPrefix = "morse"
	cfg.MQTT.ClientID = "morse-decoder"

	return cfg
}

// LoadConfig reads a YAML file over the defaults, so a partial file only
// overrides what it names. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every scalar range and reports all problems at once.
// Channel presence is not required here: the CLI may add channels from
// positional arguments after loading, and the session checks again.
func (c *Config) Validate() error {
	var errs []error

	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %v", ErrInvalidSampleRate, c.SampleRate))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidBlockSize, c.BlockSize))
	}

	for _, ch := range c.Channels {
		if c.SampleRate > 0 && (ch.Frequency <= 0 || ch.Frequency >= c.SampleRate/2) {
			errs = append(errs, fmt.Errorf("%w: channel %d at %v Hz (sample rate %v)",
				ErrInvalidFrequency, ch.ID, ch.Frequency, c.SampleRate))
		}
	}

	if c.AGC.TargetRMS <= 0 || c.AGC.GainAlpha <= 0 || c.AGC.GainAlpha > 1 ||
		c.AGC.MinGain <= 0 || c.AGC.MaxGain < c.AGC.MinGain {
		errs = append(errs, fmt.Errorf("%w: target_rms %v, gain_alpha %v, gain clamp [%v, %v]",
			ErrInvalidGain, c.AGC.TargetRMS, c.AGC.GainAlpha, c.AGC.MinGain, c.AGC.MaxGain))
	}

	if c.Detector.OnRatio <= c.Detector.OffRatio || c.Detector.OffRatio <= 0 ||
		c.Detector.BaselineAlpha <= 0 || c.Detector.BaselineAlpha > 1 {
		errs = append(errs, fmt.Errorf("%w: on %v, off %v, baseline_alpha %v",
			ErrInvalidThresholds, c.Detector.OnRatio, c.Detector.OffRatio, c.Detector.BaselineAlpha))
	}

	if c.Speed.InitialWPM <= 0 || (c.Speed.Manual && c.Speed.ManualWPM <= 0) {
		errs = append(errs, fmt.Errorf("%w: initial %v, manual %v",
			ErrInvalidWPM, c.Speed.InitialWPM, c.Speed.ManualWPM))
	}
	if c.Speed.EMAAlpha <= 0 || c.Speed.EMAAlpha > 1 ||
		c.Speed.MinDit <= 0 || c.Speed.MaxDit < c.Speed.MinDit {
		errs = append(errs, fmt.Errorf("%w: ema_alpha %v, dit clamp [%v, %v]",
			ErrInvalidWPM, c.Speed.EMAAlpha, c.Speed.MinDit, c.Speed.MaxDit))
	}

	return errors.Join(errs...)
}
