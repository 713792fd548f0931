package morse

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
)

// WAVSource replays a PCM WAV file as float blocks. Multi-channel files
// are downmixed to mono by averaging and the whole recording is peak
// normalized once, so replay level does not depend on how hot the file
// was recorded.
type WAVSource struct {
	samples    []float64
	sampleRate int
	pos        int
}

// OpenWAV decodes the file up front. Raw PCM is held in memory, which is
// fine for the minutes-long recordings this tool replays.
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("open wav: %s is not a valid WAV file", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav %s: %w", path, err)
	}
	if buf.Format == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("decode wav %s: no samples", path)
	}

	mono := downmix(buf)
	fb := mono.AsFloatBuffer()
	transforms.NormalizeMax(fb)

	return &WAVSource{
		samples:    fb.Data,
		sampleRate: buf.Format.SampleRate,
	}, nil
}

// downmix averages interleaved channels into one.
func downmix(buf *audio.IntBuffer) *audio.IntBuffer {
	ch := buf.Format.NumChannels
	if ch <= 1 {
		return buf
	}
	frames := len(buf.Data) / ch
	mono := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: buf.Format.SampleRate},
		SourceBitDepth: buf.SourceBitDepth,
		Data:           make([]int, frames),
	}
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < ch; c++ {
			sum += buf.Data[i*ch+c]
		}
		mono.Data[i] = sum / ch
	}
	return mono
}

// SampleRate returns the file's sample rate in Hz.
func (s *WAVSource) SampleRate() int { return s.sampleRate }

// Duration returns the total length of the recording in samples.
func (s *WAVSource) Duration() int { return len(s.samples) }

// ReadBlock returns the next block of up to n samples. The final block may
// be short; after the end it returns io.EOF. The slice aliases the
// decoded recording and must not be modified.
func (s *WAVSource) ReadBlock(n int) ([]float64, error) {
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	end := s.pos + n
	if end > len(s.samples) {
		end = len(s.samples)
	}
	block := s.samples[s.pos:end]
	s.pos = end
	return block, nil
}

// Rewind restarts replay from the beginning.
func (s *WAVSource) Rewind() { s.pos = 0 }
