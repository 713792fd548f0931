package main

import (
	"flag"
	"fmt"
	"log"
	"morse"
	"os"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Practice generator: renders one keyed sine stream per text, mixes
// them, and writes a WAV file and/or plays the result. Feeding its
// output back through the decoder is the quickest end-to-end check.
//
//	practice -out two.wav -freq 600,750 "CQ CQ DE K1ABC" "TEST DE N0CALL"
func main() {
	out := flag.String("out", "", "write the rendered audio to this WAV file")
	play := flag.Bool("play", false, "play the rendered audio")
	device := flag.String("device", "", "output device name substring")
	rate := flag.Int("rate", 48000, "sample rate (Hz)")
	wpm := flag.Float64("wpm", 20, "keying speed")
	spacing := flag.Float64("spacing", 1, "stretch factor for character and word gaps")
	freqs := flag.String("freq", "700", "comma-separated tone frequencies (Hz), one per text")
	flag.Parse()

	texts := flag.Args()
	if len(texts) == 0 || (*out == "" && !*play) {
		fmt.Fprintln(os.Stderr, `usage: practice [-out file.wav] [-play] [-freq f1,f2,...] "TEXT" ["TEXT" ...]`)
		os.Exit(1)
	}

	var freqList []float64
	for _, s := range strings.Split(*freqs, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			log.Fatalf("invalid frequency %q", s)
		}
		freqList = append(freqList, f)
	}
	if len(freqList) != len(texts) {
		log.Fatalf("%d texts but %d frequencies", len(texts), len(freqList))
	}

	streams := make([][]float64, 0, len(texts))
	for i, text := range texts {
		keyer, err := morse.NewKeyer(freqList[i], float64(*rate), *wpm)
		if err != nil {
			log.Fatalf("keyer at %.0f Hz: %v", freqList[i], err)
		}
		keyer.Spacing = *spacing
		samples, err := keyer.Render(strings.ToUpper(text))
		if err != nil {
			log.Fatalf("render %q: %v", text, err)
		}
		streams = append(streams, samples)
	}
	mixed := morse.Mix(streams...)

	if *out != "" {
		w, err := morse.NewWAVWriter(*out, *rate)
		if err != nil {
			log.Fatal(err)
		}
		if err := w.WriteBlock(mixed); err != nil {
			log.Fatal(err)
		}
		if err := w.Close(); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s: %.1fs at %d Hz\n", *out, float64(len(mixed))/float64(*rate), *rate)
	}

	if *play {
		if err := portaudio.Initialize(); err != nil {
			log.Fatal(err)
		}
		defer portaudio.Terminate()

		player, err := morse.NewPlayer(float64(*rate), 1024, *device)
		if err != nil {
			log.Fatal(err)
		}
		if err := player.Play(mixed); err != nil {
			log.Fatal(err)
		}
		if err := player.Close(); err != nil {
			log.Fatal(err)
		}
	}
}
