package voiceproc

import (
	"math"

	"github.com/kunquat/kunquat-go/pkg/signalplan"
)

// Oscillator is one instrument's waveform generator node: one instance is
// shared across every voice group ever allocated against the instrument,
// with each group's own phase carried in its Voice.DSPState block rather
// than in the processor itself, so concurrently sounding notes of the same
// instrument don't share phase.
type Oscillator struct {
	Wave      Waveform
	Duty      float64 // square-wave duty cycle, 0..1
	RefPitch  float64 // Hz at pitch 0
	AudioRate float64
	Pitch     PitchSource

	// ProcIndex is this node's position in its instrument's VoicePlan,
	// used to find this processor's own voice (and thus its own phase
	// state) within ctx.Group.Voices.
	ProcIndex int
}

// NewOscillator creates an oscillator node. duty is clamped to [0,1] and
// only matters for Square.
func NewOscillator(wave Waveform, duty, refPitch, audioRate float64, pitch PitchSource, procIndex int) *Oscillator {
	if duty < 0 {
		duty = 0
	}
	if duty > 1 {
		duty = 1
	}
	return &Oscillator{Wave: wave, Duty: duty, RefPitch: refPitch, AudioRate: audioRate, Pitch: pitch, ProcIndex: procIndex}
}

func (o *Oscillator) sample(phase float64) float64 {
	switch o.Wave {
	case Triangle:
		if phase < 0.5 {
			return 4.0*phase - 1.0
		}
		return 3.0 - 4.0*phase
	case Sawtooth:
		return 2.0*phase - 1.0
	case Square:
		if phase < o.Duty {
			return 1.0
		}
		return -1.0
	case SawBig:
		val := int(phase*2048) & 2047
		return float64(val)/1024.0 - 1.0
	case Noise:
		seed := uint32(phase * 1000000)
		seed = seed*1103515245 + 12345
		return float64(int32(seed)) / float64(math.MaxInt32)
	default:
		return 0
	}
}

// Process writes raw (unenveloped) waveform samples into scratch ports 0
// and 1, mono, for the slice [ctx.FrameOffset, ctx.FrameOffset+ctx.FrameCount).
// It never reports silence on its own; an oscillator keeps producing signal
// for as long as its group exists, and it is the downstream Envelope node's
// job to report when the group has actually quieted down.
func (o *Oscillator) Process(ctx *signalplan.ProcessContext) int {
	if ctx.Group == nil || o.ProcIndex >= len(ctx.Group.Voices) || o.AudioRate <= 0 {
		return ctx.TotalFrameCount
	}
	v := ctx.Group.Voices[o.ProcIndex]
	phase := readPhase(v.DSPState)

	freq := o.RefPitch
	if o.Pitch != nil {
		freq = noteFreq(o.RefPitch, o.Pitch(v.Channel))
	}
	inc := freq / o.AudioRate

	end := ctx.FrameOffset + ctx.FrameCount
	for i := 0; i < ctx.Buffers.Len() && i < 2; i++ {
		buf := ctx.Buffers.At(i)
		data := buf.ContentsMut()
		p := phase
		for f := ctx.FrameOffset; f < end && f < len(data); f++ {
			data[f] = float32(o.sample(p))
			p += inc
			if p >= 1.0 {
				p -= 1.0
			}
		}
		buf.SetValid(true)
		if i == 0 {
			phase = p
		}
	}
	writePhase(v.DSPState, phase)
	return ctx.TotalFrameCount
}
