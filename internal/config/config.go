// Package config parses the kqplay demo binary's command-line flags into a
// plain options struct.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Config holds everything cmd/kqplay needs to load a song and render it.
type Config struct {
	SongPath    string
	AudioRate   int32
	BlockFrames int
	ThreadCount int
	Track       int
	Realtime    bool
	OutPath     string
	Duration    float64
	Verbose     bool
}

// Parse parses args (normally os.Args[1:]) into a Config. -h/--help prints
// the usage text and exits the process with status 0; a missing --song
// prints the usage text and returns an error.
func Parse(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("kqplay", pflag.ContinueOnError)

	songPath := fs.StringP("song", "s", "", "Path to a song YAML file (required).")
	audioRate := fs.Int32P("rate", "r", 44100, "Audio sample rate in Hz.")
	blockFrames := fs.IntP("block", "b", 2048, "Frames rendered per Play() call.")
	threads := fs.IntP("threads", "t", 1, "Voice-processing worker thread count.")
	track := fs.IntP("track", "k", 0, "Subsong (track list entry) to play; -1 loops subsong 0 indefinitely.")
	realtime := fs.BoolP("play", "p", false, "Play live through the system audio device instead of exporting a file.")
	outPath := fs.StringP("out", "o", "out.wav", "Output WAV path (ignored with --play).")
	duration := fs.Float64P("duration", "d", 30.0, "Seconds to render.")
	verbose := fs.BoolP("verbose", "v", false, "Enable debug logging.")
	help := fs.BoolP("help", "h", false, "Display help text.")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "kqplay: render a song file through the sequencer engine")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *help {
		fs.Usage()
		os.Exit(0)
	}
	if *songPath == "" {
		fs.Usage()
		return nil, fmt.Errorf("--song is required")
	}

	return &Config{
		SongPath:    *songPath,
		AudioRate:   *audioRate,
		BlockFrames: *blockFrames,
		ThreadCount: *threads,
		Track:       *track,
		Realtime:    *realtime,
		OutPath:     *outPath,
		Duration:    *duration,
		Verbose:     *verbose,
	}, nil
}
