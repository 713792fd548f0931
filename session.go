package morse

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNoChannels reports a session configured without any channel.
	ErrNoChannels = errors.New("at least one channel is required")
	// ErrDuplicateChannel reports two channels sharing an id.
	ErrDuplicateChannel = errors.New("duplicate channel id")
)

// SessionOption adjusts session construction.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	trace Trace
}

// WithTrace attaches a per-block signal trace to every channel.
func WithTrace(t Trace) SessionOption {
	return func(o *sessionOptions) { o.trace = t }
}

// Session drives any number of decoder channels over one audio stream.
// Each block updates the shared gain once, fans out to every channel and
// the per-channel events merge back in registration order. Process and
// Flush must be called from a single goroutine; the Set* commands may be
// called from any goroutine and take effect at the next block boundary.
type Session struct {
	sampleRate float64
	parallel   bool

	agc      *AGC
	channels []*Channel
	clock    time.Duration // elapsed stream time, advanced by block length
	results  [][]Event     // scratch for the parallel fan-out

	mu     sync.Mutex
	staged []func()
}

// NewSession validates the configuration and builds all channels. Every
// setup problem is reported here; Process can no longer fail.
func NewSession(cfg *Config, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}

	var o sessionOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		sampleRate: cfg.SampleRate,
		parallel:   cfg.Parallel,
		agc:        NewAGC(cfg.AGC),
		channels:   make([]*Channel, 0, len(cfg.Channels)),
		results:    make([][]Event, len(cfg.Channels)),
	}

	seen := make(map[int]bool, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		if seen[cc.ID] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateChannel, cc.ID)
		}
		seen[cc.ID] = true

		ch, err := newChannel(cc, cfg, o.trace)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", cc.ID, err)
		}
		s.channels = append(s.channels, ch)
	}
	return s, nil
}

// Process consumes one block of samples and returns the events it
// produced. A zero-length block is a no-op. Events are ordered by stream
// time, and within the block by channel registration order.
func (s *Session) Process(block []float64) []Event {
	if len(block) == 0 {
		return nil
	}
	s.applyStaged()

	// Stream time advances by what actually arrived, so irregular block
	// sizes cannot skew the duration thresholds.
	dt := float64(len(block)) / s.sampleRate
	s.clock += time.Duration(dt * float64(time.Second))

	scaled := s.agc.Apply(block)

	if !s.parallel || len(s.channels) == 1 {
		var events []Event
		for _, ch := range s.channels {
			events = append(events, ch.process(scaled, s.clock, dt)...)
		}
		return events
	}

	// The gain was updated above and is read-only from here on, and the
	// channels share no state, so the fan-out needs no locking.
	var wg sync.WaitGroup
	for i, ch := range s.channels {
		wg.Add(1)
		go func(i int, ch *Channel) {
			defer wg.Done()
			s.results[i] = ch.process(scaled, s.clock, dt)
		}(i, ch)
	}
	wg.Wait()

	var events []Event
	for i := range s.results {
		events = append(events, s.results[i]...)
		s.results[i] = nil
	}
	return events
}

// Flush ends the stream: every channel classifies its still-open run and
// decodes whatever marks remain. The session stays usable afterwards.
func (s *Session) Flush() []Event {
	s.applyStaged()
	var events []Event
	for _, ch := range s.channels {
		events = append(events, ch.flush(s.clock)...)
	}
	return events
}

// SetAGC stages enabling or disabling input normalization.
func (s *Session) SetAGC(enabled bool) {
	s.stage(func() { s.agc.SetEnabled(enabled) })
}

// SetManualWPM stages pinning every channel to the given speed. The value
// is validated immediately; staging only happens for a usable speed.
func (s *Session) SetManualWPM(wpm float64) error {
	if wpm <= 0 {
		return ErrInvalidWPM
	}
	s.stage(func() {
		for _, ch := range s.channels {
			ch.speed.SetManual(wpm)
		}
	})
	return nil
}

// SetAutoSpeed stages resuming adaptive speed tracking on every channel.
func (s *Session) SetAutoSpeed() {
	s.stage(func() {
		for _, ch := range s.channels {
			ch.speed.SetAuto()
		}
	})
}

// Channels returns the live channels, ordered as configured.
func (s *Session) Channels() []*Channel { return s.channels }

// Elapsed returns the stream time consumed so far.
func (s *Session) Elapsed() time.Duration { return s.clock }

// Gain returns the current AGC gain.
func (s *Session) Gain() float64 { return s.agc.Gain() }

// AGCEnabled reports whether input normalization is active.
func (s *Session) AGCEnabled() bool { return s.agc.Enabled() }

func (s *Session) stage(fn func()) {
	s.mu.Lock()
	s.staged = append(s.staged, fn)
	s.mu.Unlock()
}

func (s *Session) applyStaged() {
	s.mu.Lock()
	staged := s.staged
	s.staged = nil
	s.mu.Unlock()
	for _, fn := range staged {
		fn()
	}
}
