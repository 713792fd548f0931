package morse

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ConsoleSink prints decoded characters as a running stream. With more
// than one channel the stream is tagged whenever the active channel
// changes, and Close prints a per-channel transcript so interleaved
// traffic can still be read back as whole messages.
type ConsoleSink struct {
	mu          sync.Mutex
	w           io.Writer
	multi       bool
	lastChannel int
	transcripts map[int]*strings.Builder
}

func NewConsoleSink(w io.Writer, multi bool) *ConsoleSink {
	return &ConsoleSink{
		w:           w,
		multi:       multi,
		lastChannel: -1,
		transcripts: make(map[int]*strings.Builder),
	}
}

// Publish writes character and word-break events; symbol events are
// ignored here, they are only interesting to the debug log.
func (c *ConsoleSink) Publish(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case EventChar:
		if c.multi && ev.Channel != c.lastChannel {
			fmt.Fprintf(c.w, "\n[ch %d] ", ev.Channel)
		}
		c.lastChannel = ev.Channel
		fmt.Fprint(c.w, ev.Char)
		c.transcript(ev.Channel).WriteString(ev.Char)
	case EventWordBreak:
		fmt.Fprint(c.w, " ")
		c.transcript(ev.Channel).WriteString(" ")
	}
	return nil
}

func (c *ConsoleSink) transcript(channel int) *strings.Builder {
	b, ok := c.transcripts[channel]
	if !ok {
		b = &strings.Builder{}
		c.transcripts[channel] = b
	}
	return b
}

// Transcript returns everything decoded on one channel so far.
func (c *ConsoleSink) Transcript(channel int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.transcripts[channel]; ok {
		return strings.TrimSpace(b.String())
	}
	return ""
}

// Close prints the per-channel transcripts.
func (c *ConsoleSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.transcripts) == 0 {
		fmt.Fprintln(c.w)
		return nil
	}
	ids := make([]int, 0, len(c.transcripts))
	for id := range c.transcripts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fmt.Fprintln(c.w)
	for _, id := range ids {
		fmt.Fprintf(c.w, "Channel %d: %s\n", id, strings.TrimSpace(c.transcripts[id].String()))
	}
	return nil
}
