// Command kqplay loads a song YAML file and renders it through the
// sequencer engine, either to a WAV file or live through the system audio
// device.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/kunquat/kunquat-go/internal/config"
	"github.com/kunquat/kunquat-go/pkg/audio"
	"github.com/kunquat/kunquat-go/pkg/format"
	"github.com/kunquat/kunquat-go/pkg/player"
	"github.com/kunquat/kunquat-go/pkg/signalplan"
	"github.com/kunquat/kunquat-go/pkg/voiceproc"
)

// voiceStateSize is the DSPState size reserved for every voice. Each node
// of the oscillator+envelope plan runs in its own voice: the oscillator's
// voice uses 8 bytes (phase), the envelope's 24 (phase/position/volume), so
// 32 covers either.
const voiceStateSize = 32

var bannerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("212")).
	Padding(0, 1)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal("parsing flags", "error", err)
	}

	logger := log.New(os.Stderr)
	if cfg.Verbose {
		logger.SetLevel(log.DebugLevel)
	}

	fmt.Println(bannerStyle.Render(fmt.Sprintf("kqplay — %s", cfg.SongPath)))

	song, err := format.LoadFile(cfg.SongPath)
	if err != nil {
		logger.Fatal("loading song", "path", cfg.SongPath, "error", err)
	}
	logger.Info("song loaded", "path", cfg.SongPath, "channels", song.Module.NumChannels, "patterns", len(song.Module.Patterns))

	eventBufferSize := 256
	voiceCount := 64
	p, err := player.NewPlayer(song.Module, cfg.AudioRate, cfg.BlockFrames, eventBufferSize, voiceCount)
	if err != nil {
		logger.Fatal("creating player", "error", err)
	}

	if err := p.SetThreadCount(cfg.ThreadCount); err != nil {
		logger.Fatal("setting thread count", "error", err)
	}
	if err := p.ReserveVoiceStateSpace(voiceStateSize); err != nil {
		logger.Fatal("reserving voice state", "error", err)
	}

	for idx, inst := range song.Instruments {
		plan, err := buildVoicePlan(p, idx, inst, float64(cfg.AudioRate))
		if err != nil {
			logger.Fatal("building instrument", "instrument", inst.Name, "error", err)
		}
		p.RegisterInstrument(idx, plan)
		logger.Debug("registered instrument", "index", idx, "name", inst.Name, "wave", inst.Wave)
	}
	for ch, instIdx := range song.ChannelInstrument {
		if instIdx >= 0 {
			p.SetChannelInstrument(ch, instIdx)
		}
	}

	if err := p.Reset(cfg.Track); err != nil {
		logger.Fatal("resetting playback position", "track", cfg.Track, "error", err)
	}

	if cfg.Realtime {
		if err := playRealtime(p, cfg, logger); err != nil {
			logger.Fatal("realtime playback failed", "error", err)
		}
		return
	}

	if err := exportWAV(p, cfg, logger); err != nil {
		logger.Fatal("export failed", "error", err)
	}
}

// buildVoicePlan wires an Oscillator into an Envelope sharing the same
// scratch ports, each reading the channel's pitch/force through the
// player rather than fixed constants, so a pattern's slides and volume
// effects actually drive the sound.
func buildVoicePlan(p *player.Player, instIdx int, inst format.InstrumentDoc, audioRate float64) (*signalplan.VoicePlan, error) {
	wave, err := parseWave(inst.Wave)
	if err != nil {
		return nil, err
	}

	refPitch := inst.RefPitch
	if refPitch <= 0 {
		refPitch = 440
	}

	pitch := func(ch int) float64 { return p.ChannelPitch(ch) }
	force := func(ch int) float64 { return p.ChannelForce(ch) }

	osc := voiceproc.NewOscillator(wave, inst.Duty, refPitch, audioRate, pitch, 0)
	env := voiceproc.NewEnvelope(
		inst.AttackSecs*audioRate,
		inst.DecaySecs*audioRate,
		inst.SustainLevel,
		inst.ReleaseSecs*audioRate,
		force,
		1,
	)

	return signalplan.NewVoicePlan([]signalplan.Node{
		{Proc: osc},
		{Proc: env},
	}), nil
}

func parseWave(name string) (voiceproc.Waveform, error) {
	switch name {
	case "", "triangle":
		return voiceproc.Triangle, nil
	case "sawtooth":
		return voiceproc.Sawtooth, nil
	case "square":
		return voiceproc.Square, nil
	case "sawbig":
		return voiceproc.SawBig, nil
	case "noise":
		return voiceproc.Noise, nil
	default:
		return 0, &unknownWaveError{name}
	}
}

type unknownWaveError struct{ name string }

func (e *unknownWaveError) Error() string { return "unknown waveform: " + e.name }

func exportWAV(p *player.Player, cfg *config.Config, logger *log.Logger) error {
	f, err := os.Create(cfg.OutPath)
	if err != nil {
		return err
	}
	defer f.Close()

	logger.Info("exporting", "path", cfg.OutPath, "duration", cfg.Duration)
	if err := audio.ExportWAV(p, int(cfg.AudioRate), f, cfg.Duration); err != nil {
		return err
	}
	logger.Info("export complete", "path", cfg.OutPath)
	return nil
}

func playRealtime(p *player.Player, cfg *config.Config, logger *log.Logger) error {
	rt, err := audio.NewRealtimeOutput(p, int(cfg.AudioRate), cfg.BlockFrames)
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("playing live", "duration", cfg.Duration)

	deadline := time.After(time.Duration(cfg.Duration * float64(time.Second)))
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return nil
		case <-ticker.C:
			if p.HasStopped() {
				return nil
			}
		}
	}
}
