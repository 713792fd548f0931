package morse

import (
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Player sends rendered audio to an output device in fixed-size chunks
// using a blocking portaudio stream. The caller is responsible for
// portaudio.Initialize / portaudio.Terminate.
type Player struct {
	stream *portaudio.Stream
	buf    []float32
}

// NewPlayer opens a mono output stream. deviceName selects the first
// output device whose name contains it (case-insensitive); empty picks
// the system default.
func NewPlayer(sampleRate float64, framesPerBuffer int, deviceName string) (*Player, error) {
	var info *portaudio.DeviceInfo
	if deviceName == "" {
		def, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("default output device: %w", err)
		}
		info = def
	} else {
		devices, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("list audio devices: %w", err)
		}
		for _, d := range devices {
			if d.MaxOutputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(deviceName)) {
				info = d
				break
			}
		}
		if info == nil {
			return nil, fmt.Errorf("no output device matching %q", deviceName)
		}
	}

	p := portaudio.HighLatencyParameters(nil, info)
	p.Output.Channels = 1
	p.SampleRate = sampleRate
	p.FramesPerBuffer = framesPerBuffer

	player := &Player{buf: make([]float32, framesPerBuffer)}
	stream, err := portaudio.OpenStream(p, player.buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	player.stream = stream
	return player, nil
}

// Play writes samples to the device, blocking until everything has been
// handed to the driver. The last chunk is zero padded to a full buffer.
func (p *Player) Play(samples []float64) error {
	for off := 0; off < len(samples); off += len(p.buf) {
		for i := range p.buf {
			if off+i < len(samples) {
				p.buf[i] = float32(samples[off+i])
			} else {
				p.buf[i] = 0
			}
		}
		if err := p.stream.Write(); err != nil {
			return fmt.Errorf("write output stream: %w", err)
		}
	}
	return nil
}

// Close stops the stream and releases it.
func (p *Player) Close() error {
	if p.stream == nil {
		return nil
	}
	defer func() { p.stream = nil }()
	if err := p.stream.Stop(); err != nil {
		p.stream.Close()
		return fmt.Errorf("stop output stream: %w", err)
	}
	return p.stream.Close()
}
