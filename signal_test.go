package morse

import (
	"math"
	"strings"
)

// The decode tests run on a grid where every duration is an exact binary
// fraction: a block is 64/8192 s = 7.8125 ms and a dit is 0.0625 s
// (19.2 WPM, 8 blocks), so run lengths accumulate without rounding and a
// run of exactly 2/3/7 dits really compares equal to its threshold. The
// 768 Hz test tone completes 6 full cycles per block, so tone blocks
// carry full Goertzel power and leak nothing into other bin-aligned
// frequencies.
const (
	testRate  = 8192.0
	testBlock = 64
	testFreq  = 768.0
	testWPM   = 19.2
	testDit   = 0.0625 // seconds, 8 blocks
)

// ditBlocks is how many test blocks one dit spans.
const ditBlocks = 8

// testConfig shrinks the defaults onto the test grid. AGC off and serial
// fan-out keep decode runs bit-reproducible; tests that exercise those
// turn them back on.
func testConfig(freqs ...float64) *Config {
	cfg := DefaultConfig()
	cfg.SampleRate = testRate
	cfg.BlockSize = testBlock
	cfg.Parallel = false
	cfg.AGC.Enabled = false
	cfg.Speed.InitialWPM = testWPM
	for i, f := range freqs {
		cfg.Channels = append(cfg.Channels, ChannelConfig{ID: i + 1, Frequency: f})
	}
	return cfg
}

// genTone returns n samples of a sine at freq.
func genTone(freq, sampleRate float64, n int, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
	}
	return out
}

// genSilence returns n zero samples.
func genSilence(n int) []float64 {
	return make([]float64, n)
}

// keyPattern renders a ".-" pattern as hard-keyed audio on the test
// grid: '.' is one dit of tone, '-' three, each followed by one dit of
// silence; ' ' widens the trailing gap to three dits total and '/' to
// seven. Unlike the Keyer there is no envelope shaping, so when the
// result is chopped into test blocks every block is either pure tone or
// pure silence.
func keyPattern(pattern string, freq float64) []float64 {
	var out []float64
	tone := func(dits int) { out = append(out, genTone(freq, testRate, dits*ditBlocks*testBlock, 0.8)...) }
	gap := func(dits int) { out = append(out, genSilence(dits*ditBlocks*testBlock)...) }

	for _, r := range pattern {
		switch r {
		case '.':
			tone(1)
			gap(1)
		case '-':
			tone(3)
			gap(1)
		case ' ':
			gap(2)
		case '/':
			gap(6)
		}
	}
	return out
}

// processBlocks drives samples through the session one block at a time
// without the end-of-stream flush.
func processBlocks(s *Session, samples []float64, blockSize int) []Event {
	var events []Event
	for off := 0; off < len(samples); off += blockSize {
		end := off + blockSize
		if end > len(samples) {
			end = len(samples)
		}
		events = append(events, s.Process(samples[off:end])...)
	}
	return events
}

// feedAll is processBlocks plus the final flush, the way a replay run
// ends.
func feedAll(s *Session, samples []float64, blockSize int) []Event {
	events := processBlocks(s, samples, blockSize)
	return append(events, s.Flush()...)
}

// renderEvents assembles one channel's character and word-break events
// into text, the way the console sink does.
func renderEvents(events []Event, channel int) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Channel != channel {
			continue
		}
		switch ev.Type {
		case EventChar:
			b.WriteString(ev.Char)
		case EventWordBreak:
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

// markString extracts one channel's symbol marks as a ".-" string.
func markString(events []Event, channel int) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Channel == channel && ev.Type == EventSymbol {
			b.WriteByte(ev.Mark)
		}
	}
	return b.String()
}
