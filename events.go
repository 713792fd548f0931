package morse

import "time"

// EventType classifies what a decoder channel just produced.
type EventType int

const (
	// EventSymbol reports one classified mark ('.' or '-').
	EventSymbol EventType = iota
	// EventChar reports one decoded character (letter, digit, prosign or "?").
	EventChar
	// EventWordBreak reports a gap long enough to separate words.
	EventWordBreak
)

func (t EventType) String() string {
	switch t {
	case EventSymbol:
		return "symbol"
	case EventChar:
		return "character"
	case EventWordBreak:
		return "word_break"
	default:
		return "unknown"
	}
}

// Event is one decoding result. Events come out of a Session in stream-time
// order; events from the same block are ordered by channel registration.
type Event struct {
	Type    EventType
	Channel int           // id of the channel that produced it
	At      time.Duration // elapsed stream time of the producing block
	Mark    byte          // '.' or '-', set for EventSymbol
	Char    string        // decoded text, set for EventChar
	WPM     float64       // speed estimate at emission, zero for EventWordBreak
}
