package morse

import "time"

// Element ratios in dit units: dot 1, dash 3, character gap 3, word gap 7.
// Fixed rather than configurable; consumers of the event stream rely on
// the classic cutoffs.
const (
	dashRatio    = 2.0 // tone run >= 2 dits is a dash
	charGapRatio = 3.0 // silence run >= 3 dits ends the character
	wordGapRatio = 7.0 // silence run >= 7 dits also ends the word
)

// Channel decodes one tone frequency out of the shared stream. Each block
// is reduced to a power reading, classified into tone/silence runs, and
// the run durations segmented into marks, characters and word breaks.
// A Channel owns all of its state exclusively; distinct channels never
// share anything mutable, so a session may run them in parallel.
type Channel struct {
	id        int
	frequency float64

	detector   *Goertzel
	classifier *ToneClassifier
	speed      *SpeedTracker
	marks      []byte // pending symbol buffer, bounded by maxMarks
	trace      Trace
}

func newChannel(cc ChannelConfig, cfg *Config, trace Trace) (*Channel, error) {
	detector, err := NewGoertzel(cc.Frequency, cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	classifier, err := NewToneClassifier(cfg.Detector)
	if err != nil {
		return nil, err
	}
	if trace == nil {
		trace = NopTrace{}
	}
	return &Channel{
		id:         cc.ID,
		frequency:  cc.Frequency,
		detector:   detector,
		classifier: classifier,
		speed:      NewSpeedTracker(cfg.Speed),
		marks:      make([]byte, 0, maxMarks),
		trace:      trace,
	}, nil
}

// ID returns the channel id.
func (ch *Channel) ID() int { return ch.id }

// Frequency returns the tone frequency in Hz.
func (ch *Channel) Frequency() float64 { return ch.frequency }

// WPM returns the channel's current speed estimate.
func (ch *Channel) WPM() float64 { return ch.speed.WPM() }

// Tone reports whether the channel is currently inside a tone run.
func (ch *Channel) Tone() bool { return ch.classifier.Tone() }

// process consumes one block. at is the stream time of the block, dt its
// duration in seconds. Returns the events the block produced, usually none.
func (ch *Channel) process(block []float64, at time.Duration, dt float64) []Event {
	power := ch.detector.BlockPower(block)
	tr := ch.classifier.Feed(power, dt)
	ch.trace.Record(at, ch.id, power, ch.classifier.Ratio(), ch.classifier.Baseline(), ch.classifier.Tone())
	if tr == nil {
		return nil
	}
	return ch.transition(tr, at)
}

// flush closes the stream: the still-open run is segmented by the same
// rules as any completed run, then whatever marks remain decode so the
// final character is not lost.
func (ch *Channel) flush(at time.Duration) []Event {
	var events []Event
	if tr := ch.classifier.Flush(); tr != nil {
		events = ch.transition(tr, at)
	}
	return ch.decode(at, events)
}

// transition segments one completed run. The dit in effect when the run
// ended decides the classification; a tone element then updates the speed
// tracker for the runs after it.
func (ch *Channel) transition(tr *Transition, at time.Duration) []Event {
	var events []Event
	dit := ch.speed.Dit()

	if tr.ToneEnded {
		mark := byte('.')
		if tr.Duration >= dashRatio*dit {
			mark = '-'
		}
		ch.speed.Observe(mark, tr.Duration)
		events = ch.push(mark, at, events)
		events = append(events, Event{
			Type: EventSymbol, Channel: ch.id, At: at,
			Mark: mark, WPM: ch.speed.WPM(),
		})
		return events
	}

	switch {
	case tr.Duration < charGapRatio*dit:
		// Gap between elements of one character: keep collecting.
	case tr.Duration < wordGapRatio*dit:
		events = ch.decode(at, events)
	default:
		events = ch.decode(at, events)
		events = append(events, Event{Type: EventWordBreak, Channel: ch.id, At: at})
	}
	return events
}

// push appends a mark to the symbol buffer. A buffer already at its cap
// can never decode, so it is flushed as Unknown first and collection
// continues with the new mark.
func (ch *Channel) push(mark byte, at time.Duration, events []Event) []Event {
	if len(ch.marks) == maxMarks {
		events = append(events, Event{Type: EventChar, Channel: ch.id, At: at, Char: Unknown})
		ch.marks = ch.marks[:0]
	}
	ch.marks = append(ch.marks, mark)
	return events
}

// decode flushes the symbol buffer into a character event. Empty buffers
// decode to nothing, so repeated long gaps cannot invent characters.
func (ch *Channel) decode(at time.Duration, events []Event) []Event {
	if len(ch.marks) == 0 {
		return events
	}
	events = append(events, Event{
		Type: EventChar, Channel: ch.id, At: at,
		Char: Decode(string(ch.marks)), WPM: ch.speed.WPM(),
	})
	ch.marks = ch.marks[:0]
	return events
}
