package morse

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter records float blocks to a 16-bit mono PCM WAV file. It is
// used to tap the live capture path so a session can be replayed later
// with the exact samples the decoder saw.
type WAVWriter struct {
	file    *os.File
	encoder *wav.Encoder
	scratch *audio.IntBuffer
}

// NewWAVWriter creates the file and prepares the encoder. The header is
// finalized on Close; an unclosed writer leaves an unplayable file.
func NewWAVWriter(filename string, sampleRate int) (*WAVWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}
	return &WAVWriter{
		file:    f,
		encoder: wav.NewEncoder(f, sampleRate, 16, 1, 1),
		scratch: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// WriteBlock appends one block of samples. Values outside [-1, 1] are
// clipped rather than wrapped.
func (w *WAVWriter) WriteBlock(block []float64) error {
	if len(block) == 0 {
		return nil
	}
	if cap(w.scratch.Data) < len(block) {
		w.scratch.Data = make([]int, len(block))
	}
	w.scratch.Data = w.scratch.Data[:len(block)]
	for i, s := range block {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		w.scratch.Data[i] = int(math.Round(s * 32767))
	}
	if err := w.encoder.Write(w.scratch); err != nil {
		return fmt.Errorf("write wav block: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (w *WAVWriter) Close() error {
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return w.file.Close()
}
