package morse

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

// Trace receives one record per processed block per channel. It exists for
// offline tuning: dump a session, plot power against baseline and see where
// the hysteresis sat. Channels may record from separate goroutines.
type Trace interface {
	Record(at time.Duration, channel int, power, ratio, baseline float64, tone bool)
	Close() error
}

// NopTrace is the default: record nothing.
type NopTrace struct{}

func (NopTrace) Record(time.Duration, int, float64, float64, float64, bool) {}
func (NopTrace) Close() error                                               { return nil }

// CSVTrace writes records to a CSV file, one row per block per channel.
type CSVTrace struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	rows   int
}

// NewCSVTrace creates the file and writes the header row.
func NewCSVTrace(filename string) (*CSVTrace, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString("at_ms,channel,power,ratio,baseline,tone\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write trace header: %w", err)
	}
	return &CSVTrace{file: f, writer: w}, nil
}

// Record appends one row. Safe for concurrent use.
func (t *CSVTrace) Record(at time.Duration, channel int, power, ratio, baseline float64, tone bool) {
	toneVal := 0
	if tone {
		toneVal = 1
	}
	t.mu.Lock()
	fmt.Fprintf(t.writer, "%.3f,%d,%g,%g,%g,%d\n",
		float64(at)/float64(time.Millisecond), channel, power, ratio, baseline, toneVal)
	t.rows++
	if t.rows%4096 == 0 {
		// Periodic flush so a crash mid-session still leaves usable data.
		t.writer.Flush()
	}
	t.mu.Unlock()
}

// Close flushes and closes the file.
func (t *CSVTrace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.Flush(); err != nil {
		t.file.Close()
		return err
	}
	return t.file.Close()
}
