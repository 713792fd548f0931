package morse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeSink collects published events. The runner guarantees publishes
// happen-before Run returns, so tests may read events without locking.
type fakeSink struct {
	events []Event
	err    error
	closed bool
}

func (f *fakeSink) Publish(ev Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Render a message, write it to a WAV, replay it through the full
// runner: the sinks must see the decoded text and be closed afterwards.
func TestSystemReplayEndToEnd(t *testing.T) {
	k, err := NewKeyer(testFreq, testRate, testWPM)
	if err != nil {
		t.Fatal(err)
	}
	k.Spacing = 1.5
	audio, err := k.Render("SOS")
	if err != nil {
		t.Fatal(err)
	}
	path := writeTestWAV(t, audio)

	sys := NewSystem(testConfig(testFreq), testLogger())
	sys.ReplayFile = path
	sys.Fast = true

	sink := &fakeSink{}
	var out bytes.Buffer
	console := NewConsoleSink(&out, false)
	sys.AddSink(sink)
	sys.AddSink(console)

	if err := sys.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := renderEvents(sink.events, 1); got != "SOS" {
		t.Errorf("decoded %q, want %q", got, "SOS")
	}
	if got := console.Transcript(1); got != "SOS" {
		t.Errorf("console transcript = %q, want %q", got, "SOS")
	}
	if !sink.closed {
		t.Error("sink not closed after Run")
	}

	st := sys.Status()
	if len(st.Channels) != 1 || st.Channels[0].Frequency != testFreq {
		t.Errorf("Status().Channels = %+v, want one channel at %v Hz", st.Channels, testFreq)
	}
	if st.Elapsed <= 0 {
		t.Errorf("Status().Elapsed = %v, want stream time consumed", st.Elapsed)
	}
}

func TestSystemReplayWritesTrace(t *testing.T) {
	audio := append(genSilence(4*testBlock), keyPattern(".", testFreq)...)
	sys := NewSystem(testConfig(testFreq), testLogger())
	sys.ReplayFile = writeTestWAV(t, audio)
	sys.Fast = true
	sys.TraceFile = filepath.Join(t.TempDir(), "trace.csv")
	sys.AddSink(&fakeSink{})

	if err := sys.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(sys.TraceFile)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	// Header plus one row per block.
	if want := 1 + len(audio)/testBlock; len(lines) != want {
		t.Errorf("trace has %d lines, want %d", len(lines), want)
	}
}

func TestSystemRunReportsSetupErrors(t *testing.T) {
	t.Run("missing replay file", func(t *testing.T) {
		sys := NewSystem(testConfig(testFreq), testLogger())
		sys.ReplayFile = filepath.Join(t.TempDir(), "absent.wav")
		if err := sys.Run(context.Background()); err == nil {
			t.Error("Run with missing replay file returned nil error")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(testFreq)
		cfg.Detector.OnRatio = 0.5
		sys := NewSystem(cfg, testLogger())
		if err := sys.Run(context.Background()); !errors.Is(err, ErrInvalidThresholds) {
			t.Errorf("Run = %v, want ErrInvalidThresholds", err)
		}
	})
}

func TestSystemReplayStopsOnCancel(t *testing.T) {
	audio := genSilence(1024 * testBlock)
	sys := NewSystem(testConfig(testFreq), testLogger())
	sys.ReplayFile = writeTestWAV(t, audio)
	sys.AddSink(&fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sys.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestSystemCommandsWhileProbing(t *testing.T) {
	sys := NewSystem(testConfig(), testLogger())

	for _, cmd := range []string{"agc on", "wpm 20"} {
		if got := sys.HandleCommand(cmd); got != "decoder still probing for tones" {
			t.Errorf("HandleCommand(%q) = %q before any session", cmd, got)
		}
	}
	if got := sys.HandleCommand("status"); got != "probing for tones..." {
		t.Errorf("HandleCommand(status) = %q", got)
	}
	if got := sys.HandleCommand(""); got != "" {
		t.Errorf("HandleCommand(empty) = %q, want empty reply", got)
	}
}

func TestSystemCommandsDriveSession(t *testing.T) {
	sys := NewSystem(testConfig(testFreq), testLogger())
	if err := sys.openSession(); err != nil {
		t.Fatal(err)
	}
	block := genSilence(testBlock)

	if got := sys.HandleCommand("agc on"); got != "agc on" {
		t.Fatalf("agc on reply = %q", got)
	}
	if err := sys.handleBlock(block); err != nil {
		t.Fatal(err)
	}
	if !sys.Status().AGC {
		t.Error("AGC not enabled after command and block")
	}

	if got := sys.HandleCommand("wpm 25"); got != "wpm pinned to 25" {
		t.Fatalf("wpm reply = %q", got)
	}
	if err := sys.handleBlock(block); err != nil {
		t.Fatal(err)
	}
	if got := sys.Status().Channels[0].WPM; math.Abs(got-25) > 1e-9 {
		t.Errorf("channel WPM = %v after command, want 25", got)
	}

	if got := sys.HandleCommand("wpm auto"); got != "wpm auto" {
		t.Errorf("wpm auto reply = %q", got)
	}
	if got := sys.HandleCommand("agc off"); got != "agc off" {
		t.Errorf("agc off reply = %q", got)
	}
	if err := sys.handleBlock(block); err != nil {
		t.Fatal(err)
	}

	status := sys.HandleCommand("status")
	for _, want := range []string{"elapsed", "agc off", "channel 1", "768 Hz"} {
		if !strings.Contains(status, want) {
			t.Errorf("status reply %q missing %q", status, want)
		}
	}
}

func TestSystemCommandUsageAndUnknown(t *testing.T) {
	sys := NewSystem(testConfig(testFreq), testLogger())
	if err := sys.openSession(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		cmd  string
		want string
	}{
		{"agc", "usage: agc on|off"},
		{"agc banana", "usage: agc on|off"},
		{"wpm", "usage: wpm <speed>|auto"},
		{"wpm banana", "usage: wpm <speed>|auto"},
		{"wpm -3", ErrInvalidWPM.Error()},
	}
	for _, tt := range tests {
		if got := sys.HandleCommand(tt.cmd); got != tt.want {
			t.Errorf("HandleCommand(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}

	// Without a rig, free text cannot be keyed.
	if got := sys.HandleCommand("cq de k1abc"); !strings.Contains(got, "no rig connected") {
		t.Errorf("free text reply = %q, want rig hint", got)
	}
}

// With no channels configured the runner probes the incoming audio,
// builds channels from the tones it finds and replays the buffered
// opening so nothing is lost.
func TestSystemAutofillBuildsChannels(t *testing.T) {
	sys := NewSystem(testConfig(), testLogger())
	sink := &fakeSink{}
	sys.AddSink(sink)

	feed := func(samples []float64) {
		t.Helper()
		for off := 0; off < len(samples); off += testBlock {
			if err := sys.handleBlock(samples[off : off+testBlock]); err != nil {
				t.Fatal(err)
			}
		}
	}

	// Exactly one probe window of steady tone.
	feed(genTone(testFreq, testRate, ProbeFFTSize, 0.8))

	if sys.currentSession() == nil {
		t.Fatal("no session after a full probe window of tone")
	}
	st := sys.Status()
	if len(st.Channels) != 1 || st.Channels[0].ID != 1 {
		t.Fatalf("Status().Channels = %+v, want channel 1", st.Channels)
	}
	if math.Abs(st.Channels[0].Frequency-testFreq) > 1.0 {
		t.Errorf("probed frequency = %v, want ~%v", st.Channels[0].Frequency, testFreq)
	}

	// Let the baseline fall back after the probe tone, then key a word.
	feed(genSilence(80 * testBlock))
	feed(keyPattern("... --- ...", testFreq))
	sys.finish()

	if got := renderEvents(sink.events, 1); got != "SOS" {
		t.Errorf("decoded %q after autofill, want %q", got, "SOS")
	}
}

func TestSystemAutofillWaitsThroughSilence(t *testing.T) {
	sys := NewSystem(testConfig(), testLogger())
	sink := &fakeSink{}
	sys.AddSink(sink)

	silence := genSilence(2 * ProbeFFTSize)
	for off := 0; off < len(silence); off += testBlock {
		if err := sys.handleBlock(silence[off : off+testBlock]); err != nil {
			t.Fatal(err)
		}
	}

	if sys.currentSession() != nil {
		t.Error("silence alone created a session")
	}
	if len(sink.events) != 0 {
		t.Errorf("silence published %d events", len(sink.events))
	}

	// finish with no session must be a quiet no-op.
	sys.finish()
	if len(sink.events) != 0 {
		t.Errorf("finish without session published %d events", len(sink.events))
	}
}

// One failing sink must not starve the others.
func TestSystemPublishToleratesSinkErrors(t *testing.T) {
	sys := NewSystem(testConfig(testFreq), testLogger())
	bad := &fakeSink{err: errors.New("broker gone")}
	good := &fakeSink{}
	sys.AddSink(bad)
	sys.AddSink(good)

	sys.publish([]Event{
		{Type: EventChar, Channel: 1, Char: "K"},
		{Type: EventWordBreak, Channel: 1},
	})

	if len(bad.events) != 2 || len(good.events) != 2 {
		t.Errorf("sink deliveries = %d and %d, want 2 and 2", len(bad.events), len(good.events))
	}
}
