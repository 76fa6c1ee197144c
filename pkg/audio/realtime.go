package audio

import (
	"encoding/binary"

	"github.com/ebitengine/oto/v3"

	"github.com/kunquat/kunquat-go/pkg/player"
)

// RealtimeOutput drives live stereo audio playback for a sequencer player
// through an oto context.
type RealtimeOutput struct {
	player    *player.Player
	audioRate int
	blockSize int
	otoCtx    *oto.Context
	otoPlayer *oto.Player
	running   bool
}

// NewRealtimeOutput creates a new real-time audio output for p, rendering
// at audioRate with blockSize frames per fill.
func NewRealtimeOutput(p *player.Player, audioRate, blockSize int) (*RealtimeOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   audioRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	rt := &RealtimeOutput{
		player:    p,
		audioRate: audioRate,
		blockSize: blockSize,
		otoCtx:    otoCtx,
		running:   true,
	}

	rt.otoPlayer = otoCtx.NewPlayer(&audioStream{rt: rt})
	rt.otoPlayer.SetBufferSize(audioRate / 10 * 4) // 100ms, stereo 16-bit
	rt.otoPlayer.Play()

	return rt, nil
}

// Close stops the audio output.
func (rt *RealtimeOutput) Close() {
	rt.running = false
	if rt.otoPlayer != nil {
		rt.otoPlayer.Close()
	}
}

// audioStream implements io.Reader for oto, rendering sequencer blocks on
// demand.
type audioStream struct {
	rt      *RealtimeOutput
	samples []float32
	pos     int
}

func (s *audioStream) Read(buf []byte) (int, error) {
	if !s.rt.running {
		for i := range buf {
			buf[i] = 0
		}
		return len(buf), nil
	}

	n := 0
	for n+2 <= len(buf) {
		if s.pos >= len(s.samples) {
			if s.rt.player.HasStopped() {
				break
			}
			if err := s.rt.player.Play(s.rt.blockSize); err != nil {
				return n, err
			}
			s.samples = s.rt.player.GetAudio()
			s.pos = 0
			if len(s.samples) == 0 {
				break
			}
		}
		binary.LittleEndian.PutUint16(buf[n:], uint16(toPCM16(s.samples[s.pos])))
		s.pos++
		n += 2
	}

	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return len(buf), nil
}
