package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"morse"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

func main() {
	configFile := flag.String("config", "", "YAML config file")
	inputFile := flag.String("file", "", "input WAV file to replay (default: live capture)")
	fast := flag.Bool("fast", false, "replay without real-time pacing")
	record := flag.String("record", "", "record the live capture to this WAV file")
	device := flag.String("device", "", "capture device name substring")
	rigPort := flag.String("rig", "", "CI-V serial port, e.g. /dev/ttyUSB0")
	mqttBroker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	traceFile := flag.String("trace", "", "write a per-block signal trace CSV")
	probeOnly := flag.Bool("probe", false, "scan the input for tones and exit")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = usage
	flag.Parse()

	cfg := morse.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = morse.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	logger := newLogger(cfg.LogLevel, *verbose)
	slog.SetDefault(logger)

	// Positional arguments are tone frequencies, one channel each. They
	// replace the channel list from the config file.
	if args := flag.Args(); len(args) > 0 {
		channels := make([]morse.ChannelConfig, 0, len(args))
		for i, arg := range args {
			freq, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid frequency %q\n", arg)
				os.Exit(1)
			}
			channels = append(channels, morse.ChannelConfig{ID: i + 1, Frequency: freq})
		}
		cfg.Channels = channels
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *probeOnly {
		if err := runProbe(ctx, cfg, *inputFile, *device, logger); err != nil {
			logger.Error("probe failed", "error", err)
			os.Exit(1)
		}
		return
	}

	system := morse.NewSystem(cfg, logger)
	system.ReplayFile = *inputFile
	system.Fast = *fast
	system.DeviceName = *device
	system.RecordFile = *record
	system.RigPort = *rigPort
	system.TraceFile = *traceFile

	system.AddSink(morse.NewConsoleSink(os.Stdout, len(cfg.Channels) != 1))

	broker := cfg.MQTT.Broker
	if *mqttBroker != "" {
		broker = *mqttBroker
	}
	if broker != "" {
		sink, err := morse.NewMQTTSink(broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
		if err != nil {
			logger.Error("mqtt sink unavailable", "broker", broker, "error", err)
			os.Exit(1)
		}
		system.AddSink(sink)
		logger.Info("publishing events", "broker", broker, "prefix", cfg.MQTT.TopicPrefix)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go console(system, cancel)

	if err := system.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("decoder stopped", "error", err)
		os.Exit(1)
	}
}

// console feeds stdin lines to the system until exit/quit, which cancels
// the run context. It stays detached from the run: a Read blocked on
// stdin must not keep the process alive once decoding ends.
func console(system *morse.System, cancel context.CancelFunc) {
	fmt.Println("Ready. Commands: agc on|off, wpm <n>|auto, status, exit. Other input keys the rig.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if low := strings.ToLower(line); low == "exit" || low == "quit" {
			cancel()
			return
		}
		if reply := system.HandleCommand(line); reply != "" {
			fmt.Println(reply)
		}
	}
}

// runProbe scans the input (first seconds of a file, or a short live
// capture) and prints the tone frequencies it finds.
func runProbe(ctx context.Context, cfg *morse.Config, file, device string, logger *slog.Logger) error {
	var (
		samples []float64
		rate    = cfg.SampleRate
		err     error
	)
	if file != "" {
		samples, rate, err = fileSnippet(file, 5*int(rate))
	} else {
		samples, err = captureSnippet(ctx, cfg, device, logger, 2*int(rate))
	}
	if err != nil {
		return err
	}

	freqs := scanTones(samples, rate)
	if len(freqs) == 0 {
		fmt.Println("no tones found")
		return nil
	}
	for _, f := range freqs {
		fmt.Printf("%.1f Hz\n", f)
	}
	return nil
}

// scanTones slides the probe across the snippet in half-overlapping
// windows and merges the frequencies found, so a tone keyed on and off
// is still caught.
func scanTones(samples []float64, rate float64) []float64 {
	probe := morse.NewSpectralProbe(rate, morse.ProbeFFTSize)
	var found []float64
	for off := 0; off+morse.ProbeFFTSize <= len(samples); off += morse.ProbeFFTSize / 2 {
		window := samples[off : off+morse.ProbeFFTSize]
		for _, f := range probe.Probe(window, morse.ProbeMinFreq, morse.ProbeMaxFreq, morse.ProbeMinSpacing, 8) {
			known := false
			for _, g := range found {
				if diff := f - g; diff < morse.ProbeMinSpacing && diff > -morse.ProbeMinSpacing {
					known = true
					break
				}
			}
			if !known {
				found = append(found, f)
			}
		}
	}
	return found
}

func fileSnippet(file string, n int) ([]float64, float64, error) {
	src, err := morse.OpenWAV(file)
	if err != nil {
		return nil, 0, err
	}
	var buf []float64
	for len(buf) < n {
		block, err := src.ReadBlock(n - len(buf))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		buf = append(buf, block...)
	}
	return buf, float64(src.SampleRate()), nil
}

func captureSnippet(ctx context.Context, cfg *morse.Config, device string, logger *slog.Logger, n int) ([]float64, error) {
	chunks := make(chan []float64, 16)
	capture, err := morse.NewAudioCapture(int(cfg.SampleRate), device, logger, func(in []float32) {
		out := make([]float64, len(in))
		for i, v := range in {
			out[i] = float64(v)
		}
		select {
		case chunks <- out:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer capture.Stop()
	if err := capture.Start(); err != nil {
		return nil, err
	}

	buf := make([]float64, 0, n)
	for len(buf) < n {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk := <-chunks:
			buf = append(buf, chunk...)
		}
	}
	return buf, nil
}

func newLogger(level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags] [frequency ...]\n\n", os.Args[0])
	fmt.Fprintln(out, "Each positional frequency (Hz) becomes one decoder channel over the")
	fmt.Fprintln(out, "same input stream. With no frequencies the decoder probes for tones.")
	fmt.Fprintln(out)
	flag.PrintDefaults()
}
