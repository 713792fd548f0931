package morse

import (
	"fmt"
	"log/slog"
	"strings"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// CaptureCallback receives raw capture frames. The slice is a view into
// the driver's buffer and is only valid for the duration of the call.
type CaptureCallback func(samples []float32)

// AudioCapture pulls mono float32 frames from a capture device via
// miniaudio and hands them to a callback on the audio thread.
type AudioCapture struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	callback CaptureCallback
	log      *slog.Logger

	// SampleRate is the rate the device was opened at.
	SampleRate int
}

// NewAudioCapture opens a capture device. deviceName selects the first
// device whose name contains it (case-insensitive); empty picks the
// system default.
func NewAudioCapture(sampleRate int, deviceName string, logger *slog.Logger, callback CaptureCallback) (*AudioCapture, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	ac := &AudioCapture{
		ctx:        ctx,
		callback:   callback,
		log:        logger,
		SampleRate: sampleRate,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceName != "" {
		infos, err := ctx.Devices(malgo.Capture)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(deviceName)) {
					deviceConfig.Capture.DeviceID = info.ID.Pointer()
					logger.Info("selected capture device", "name", info.Name())
					break
				}
			}
		}
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if ac.callback == nil || len(pInputSamples) == 0 {
			return
		}
		samples := unsafe.Slice((*float32)(unsafe.Pointer(&pInputSamples[0])), int(framecount))
		ac.callback(samples)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	ac.device = device
	logger.Info("capture device ready", "rate", device.SampleRate())

	return ac, nil
}

// Start begins capture. Frames arrive on the callback until Stop.
func (ac *AudioCapture) Start() error {
	if ac.device == nil {
		return fmt.Errorf("capture device not initialized")
	}
	return ac.device.Start()
}

// Stop halts capture and releases the device and context.
func (ac *AudioCapture) Stop() {
	if ac.device != nil {
		ac.device.Uninit()
		ac.device = nil
	}
	if ac.ctx != nil {
		_ = ac.ctx.Uninit()
		ac.ctx.Free()
		ac.ctx = nil
	}
}

// ListCaptureDevices returns the names of the available capture devices.
func ListCaptureDevices() ([]string, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}
