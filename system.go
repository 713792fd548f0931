package morse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeMaxChannels caps how many channels the startup probe may create.
const probeMaxChannels = 4

// captureQueue is how many blocks may sit between the audio thread and
// the decode loop before blocks are dropped.
const captureQueue = 64

// EventSink receives decoded events from the decode loop, one call per
// event, at stream pace.
type EventSink interface {
	Publish(ev Event) error
	Close() error
}

// Status is a point-in-time view of the decoder, refreshed every block.
type Status struct {
	Elapsed  time.Duration
	Gain     float64
	AGC      bool
	Channels []ChannelStatus
}

// ChannelStatus summarizes one channel for status displays.
type ChannelStatus struct {
	ID        int
	Frequency float64
	WPM       float64
	Tone      bool
}

// System wires one audio source through a decoding session and fans the
// events out to sinks. The source is either a WAV replay or a live
// capture device; live capture can additionally be recorded, and a CI-V
// rig attached for keying replies. When the configuration names no
// channels the system probes the incoming audio for active tones and
// builds the channels itself.
type System struct {
	// Set before Run.
	ReplayFile string // WAV to replay; empty means live capture
	Fast       bool   // replay as fast as possible instead of stream pace
	DeviceName string // capture device substring; empty means default
	RecordFile string // tap the live capture to this WAV
	RigPort    string // CI-V serial port; empty disables the rig
	RigBaud    int
	TraceFile  string // per-block CSV signal trace

	cfg   *Config
	log   *slog.Logger
	sinks []EventSink

	trace    Trace
	recorder *WAVWriter

	probeBuf []float64
	blocks   chan []float64
	dropped  atomic.Int64

	// mu guards the fields the console goroutine reads while the decode
	// loop runs: the session and rig handles and the status snapshot.
	mu      sync.Mutex
	session *Session
	rig     *CIVClient
	status  Status
}

// NewSystem prepares a runner for the given configuration. Attach sinks
// with AddSink, then call Run.
func NewSystem(cfg *Config, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	return &System{
		cfg:     cfg,
		log:     logger,
		RigBaud: 115200,
	}
}

// AddSink attaches an event sink. Not safe once Run has started.
func (s *System) AddSink(sink EventSink) { s.sinks = append(s.sinks, sink) }

// Run decodes until the source ends or ctx is cancelled. Every resource
// Run opens is released before it returns, and the sinks are closed so
// transcripts flush.
func (s *System) Run(ctx context.Context) error {
	var src *WAVSource
	if s.ReplayFile != "" {
		var err error
		src, err = OpenWAV(s.ReplayFile)
		if err != nil {
			return err
		}
		if rate := float64(src.SampleRate()); rate != s.cfg.SampleRate {
			s.log.Info("using sample rate from replay file", "rate", src.SampleRate())
			s.cfg.SampleRate = rate
		}
	}

	if s.TraceFile != "" {
		trace, err := NewCSVTrace(s.TraceFile)
		if err != nil {
			return err
		}
		s.trace = trace
		defer trace.Close()
		s.log.Info("tracing signal levels", "file", s.TraceFile)
	}

	if len(s.cfg.Channels) > 0 {
		if err := s.openSession(); err != nil {
			return err
		}
	} else {
		s.log.Info("no channels configured, probing for tones",
			"min_hz", ProbeMinFreq, "max_hz", ProbeMaxFreq)
	}

	if s.RigPort != "" {
		rig := NewCIVClient(s.RigPort, s.RigBaud)
		if err := rig.Open(); err != nil {
			s.log.Warn("rig unavailable", "port", s.RigPort, "error", err)
		} else {
			s.mu.Lock()
			s.rig = rig
			s.mu.Unlock()
			defer rig.Close()
			s.logRigState(rig)
		}
	}

	defer s.closeSinks()

	if src != nil {
		return s.runReplay(ctx, src)
	}
	return s.runLive(ctx)
}

// openSession builds the decoding session from the current channel list.
func (s *System) openSession() error {
	session, err := NewSession(s.cfg, WithTrace(s.trace))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	for _, ch := range session.Channels() {
		s.log.Info("channel ready", "id", ch.ID(), "frequency_hz", ch.Frequency())
	}
	s.refreshStatus(session)
	return nil
}

func (s *System) logRigState(rig *CIVClient) {
	freq, err := rig.ReadFrequency()
	if err != nil {
		s.log.Warn("rig connected, dial frequency unavailable", "error", err)
		return
	}
	mode, err := rig.ReadMode()
	if err != nil {
		s.log.Warn("rig connected, mode unavailable", "error", err)
		return
	}
	s.log.Info("rig connected", "dial_hz", freq, "mode", mode)
}

// runReplay runs a two-stage pipeline: a source goroutine paces blocks
// out of the file (a ticker at block duration, skipped in fast mode) and
// the dispatch goroutine decodes them. End of file drains the pipeline
// and flushes so trailing marks decode.
func (s *System) runReplay(ctx context.Context, src *WAVSource) error {
	s.log.Info("replay started", "file", s.ReplayFile, "rate", src.SampleRate(), "fast", s.Fast)

	blocks := make(chan []float64, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(blocks)

		var tick <-chan time.Time
		if !s.Fast {
			interval := time.Second * time.Duration(s.cfg.BlockSize) / time.Duration(int(s.cfg.SampleRate))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			if tick != nil {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-tick:
				}
			} else if err := gctx.Err(); err != nil {
				return err
			}

			block, err := src.ReadBlock(s.cfg.BlockSize)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case blocks <- block:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		for block := range blocks {
			if err := s.handleBlock(block); err != nil {
				return err
			}
		}
		s.finish()
		s.log.Info("replay finished", "elapsed", s.Status().Elapsed)
		return nil
	})

	return g.Wait()
}

// runLive captures from the device into a bounded queue and decodes it
// on a dispatch goroutine. The audio thread never blocks: when the queue
// is full the block is dropped and counted, and a health goroutine
// reports the damage.
func (s *System) runLive(ctx context.Context) error {
	s.blocks = make(chan []float64, captureQueue)

	blockSize := s.cfg.BlockSize
	pending := make([]float64, 0, blockSize)
	capture, err := NewAudioCapture(int(s.cfg.SampleRate), s.DeviceName, s.log, func(samples []float32) {
		for _, v := range samples {
			pending = append(pending, float64(v))
			if len(pending) == blockSize {
				block := pending
				pending = make([]float64, 0, blockSize)
				select {
				case s.blocks <- block:
				default:
					s.dropped.Add(1)
				}
			}
		}
	})
	if err != nil {
		return err
	}
	defer capture.Stop()

	if s.RecordFile != "" {
		recorder, err := NewWAVWriter(s.RecordFile, int(s.cfg.SampleRate))
		if err != nil {
			return err
		}
		s.recorder = recorder
		s.log.Info("recording input", "file", s.RecordFile)
		defer func() {
			if err := recorder.Close(); err != nil {
				s.log.Warn("recording not saved cleanly", "error", err)
			} else {
				s.log.Info("recording saved", "file", s.RecordFile)
			}
		}()
	}

	if err := capture.Start(); err != nil {
		return err
	}
	s.log.Info("capture started", "rate", int(s.cfg.SampleRate), "block", blockSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				s.finish()
				return gctx.Err()
			case block := <-s.blocks:
				if err := s.handleBlock(block); err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := s.dropped.Swap(0); n > 0 {
					s.log.Warn("decode loop fell behind", "dropped_blocks", n)
				}
				if st := s.Status(); len(st.Channels) > 0 {
					s.log.Debug("health", "elapsed", st.Elapsed, "gain", st.Gain)
				}
			}
		}
	})

	return g.Wait()
}

// handleBlock records, decodes and publishes one block. While no session
// exists yet the block goes to the tone probe instead.
func (s *System) handleBlock(block []float64) error {
	if s.recorder != nil {
		if err := s.recorder.WriteBlock(block); err != nil {
			s.log.Warn("recording failed, tap disabled", "error", err)
			s.recorder = nil
		}
	}

	session := s.session
	if session == nil {
		return s.autofill(block)
	}
	s.publish(session.Process(block))
	s.refreshStatus(session)
	return nil
}

// autofill accumulates audio until the spectral probe finds tones, then
// builds the channels and replays the accumulated audio through them so
// the opening transmission is not lost.
func (s *System) autofill(block []float64) error {
	s.probeBuf = append(s.probeBuf, block...)
	if len(s.probeBuf) < ProbeFFTSize {
		return nil
	}

	probe := NewSpectralProbe(s.cfg.SampleRate, ProbeFFTSize)
	freqs := probe.Probe(s.probeBuf, ProbeMinFreq, ProbeMaxFreq, ProbeMinSpacing, probeMaxChannels)
	if len(freqs) == 0 {
		// Nothing above the noise floor; wait on fresh audio.
		s.probeBuf = s.probeBuf[:0]
		return nil
	}

	for i, f := range freqs {
		s.cfg.Channels = append(s.cfg.Channels, ChannelConfig{ID: i + 1, Frequency: f})
		s.log.Info("tone found", "channel", i+1, "frequency_hz", f)
	}
	if err := s.openSession(); err != nil {
		return fmt.Errorf("probed channels: %w", err)
	}

	buffered := s.probeBuf
	s.probeBuf = nil
	session := s.session
	for off := 0; off < len(buffered); off += s.cfg.BlockSize {
		end := off + s.cfg.BlockSize
		if end > len(buffered) {
			end = len(buffered)
		}
		s.publish(session.Process(buffered[off:end]))
	}
	s.refreshStatus(session)
	return nil
}

// finish flushes the session so trailing marks decode.
func (s *System) finish() {
	session := s.session
	if session == nil {
		return
	}
	s.publish(session.Flush())
	s.refreshStatus(session)
}

func (s *System) publish(events []Event) {
	for _, ev := range events {
		if ev.Type == EventSymbol {
			s.log.Debug("symbol", "channel", ev.Channel, "mark", string(ev.Mark), "wpm", ev.WPM)
		}
		for _, sink := range s.sinks {
			if err := sink.Publish(ev); err != nil {
				s.log.Warn("sink publish failed", "error", err)
			}
		}
	}
}

func (s *System) refreshStatus(session *Session) {
	st := Status{
		Elapsed: session.Elapsed(),
		Gain:    session.Gain(),
		AGC:     session.AGCEnabled(),
	}
	for _, ch := range session.Channels() {
		st.Channels = append(st.Channels, ChannelStatus{
			ID:        ch.ID(),
			Frequency: ch.Frequency(),
			WPM:       ch.WPM(),
			Tone:      ch.Tone(),
		})
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status returns the latest per-block snapshot. Safe from any goroutine.
func (s *System) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *System) currentSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *System) currentRig() *CIVClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rig
}

func (s *System) closeSinks() {
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.log.Warn("sink close failed", "error", err)
		}
	}
}

// HandleCommand executes one console command and returns the reply to
// print. Anything that is not a command is keyed through the rig, the
// way the operator console on a transceiver behaves.
func (s *System) HandleCommand(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}
	fields := strings.Fields(line)

	switch strings.ToLower(fields[0]) {
	case "agc":
		session := s.currentSession()
		if session == nil {
			return "decoder still probing for tones"
		}
		if len(fields) == 2 {
			switch strings.ToLower(fields[1]) {
			case "on":
				session.SetAGC(true)
				return "agc on"
			case "off":
				session.SetAGC(false)
				return "agc off"
			}
		}
		return "usage: agc on|off"

	case "wpm":
		session := s.currentSession()
		if session == nil {
			return "decoder still probing for tones"
		}
		if len(fields) != 2 {
			return "usage: wpm <speed>|auto"
		}
		if strings.EqualFold(fields[1], "auto") {
			session.SetAutoSpeed()
			return "wpm auto"
		}
		wpm, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "usage: wpm <speed>|auto"
		}
		if err := session.SetManualWPM(wpm); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("wpm pinned to %.0f", wpm)

	case "status":
		st := s.Status()
		if len(st.Channels) == 0 {
			return "probing for tones..."
		}
		var b strings.Builder
		agc := "off"
		if st.AGC {
			agc = "on"
		}
		fmt.Fprintf(&b, "elapsed %s  gain %.2f  agc %s", st.Elapsed.Truncate(time.Millisecond), st.Gain, agc)
		for _, ch := range st.Channels {
			state := "idle"
			if ch.Tone {
				state = "tone"
			}
			fmt.Fprintf(&b, "\n  channel %d  %.0f Hz  %.1f wpm  %s", ch.ID, ch.Frequency, ch.WPM, state)
		}
		return b.String()

	default:
		rig := s.currentRig()
		if rig == nil {
			return fmt.Sprintf("unknown command %q (no rig connected for tx)", fields[0])
		}
		text := strings.ToUpper(line)
		if err := rig.SendText(text); err != nil {
			return fmt.Sprintf("tx failed: %v", err)
		}
		return "[TX] " + text
	}
}
