package voiceproc

import "github.com/kunquat/kunquat-go/pkg/signalplan"

// ForceSource resolves a channel's current carried force (volume) value,
// the note's target amplitude before the envelope shapes it.
type ForceSource func(ch int) float64

type envPhase int

const (
	envAttack envPhase = iota
	envDecay
	envSustain
	envRelease
)

// Envelope is an ADSR gain node applied in place to the oscillator node
// ahead of it in the same voice plan. AttackFrames/DecayFrames/ReleaseFrames
// are expressed directly in audio frames; SustainLevel is the sustain
// plateau as a fraction (0..1) of the note's target volume. A group
// entering the background (note-off) moves the envelope to its release
// phase regardless of which attack/decay phase it was in.
type Envelope struct {
	AttackFrames  float64
	DecayFrames   float64
	SustainLevel  float64
	ReleaseFrames float64
	Force         ForceSource

	// ProcIndex is this node's position in its instrument's VoicePlan,
	// mirroring Oscillator.ProcIndex.
	ProcIndex int
}

// NewEnvelope creates an envelope node.
func NewEnvelope(attackFrames, decayFrames, sustainLevel, releaseFrames float64, force ForceSource, procIndex int) *Envelope {
	return &Envelope{
		AttackFrames:  attackFrames,
		DecayFrames:   decayFrames,
		SustainLevel:  sustainLevel,
		ReleaseFrames: releaseFrames,
		Force:         force,
		ProcIndex:     procIndex,
	}
}

// envState packs phase/pos/volume into 24 bytes of a voice's DSPState.
func readEnvState(state []byte) (envPhase, float64, float64) {
	if len(state) < 24 {
		return envAttack, 0, 0
	}
	return envPhase(readPhase(state[0:8])), readPhase(state[8:16]), readPhase(state[16:24])
}

func writeEnvState(state []byte, phase envPhase, pos, vol float64) {
	if len(state) < 24 {
		return
	}
	writePhase(state[0:8], float64(phase))
	writePhase(state[8:16], pos)
	writePhase(state[16:24], vol)
}

// Process multiplies the raw waveform already sitting in scratch ports 0
// and 1 by the envelope's current gain, frame by frame, and reports the
// first frame at which the voice has finished its release (and so stays
// silent for the rest of the block), or ctx.TotalFrameCount if it hasn't.
func (e *Envelope) Process(ctx *signalplan.ProcessContext) int {
	if ctx.Group == nil || e.ProcIndex >= len(ctx.Group.Voices) {
		return ctx.TotalFrameCount
	}
	v := ctx.Group.Voices[e.ProcIndex]
	phase, pos, vol := readEnvState(v.DSPState)

	target := 1.0
	if e.Force != nil {
		target = e.Force(v.Channel)
	}
	if ctx.Group.IsBackground() && phase != envRelease {
		phase = envRelease
		pos = 0
	}

	end := ctx.FrameOffset + ctx.FrameCount
	silentFrom := ctx.TotalFrameCount

	for f := ctx.FrameOffset; f < end; f++ {
		switch phase {
		case envAttack:
			if e.AttackFrames <= 0 {
				vol = target
				phase = envDecay
				pos = 0
			} else {
				pos++
				vol = target * (pos / e.AttackFrames)
				if pos >= e.AttackFrames {
					vol = target
					phase = envDecay
					pos = 0
				}
			}
		case envDecay:
			sustainVol := target * e.SustainLevel
			if e.DecayFrames <= 0 {
				vol = sustainVol
				phase = envSustain
			} else {
				pos++
				vol = target - (target-sustainVol)*(pos/e.DecayFrames)
				if pos >= e.DecayFrames {
					vol = sustainVol
					phase = envSustain
					pos = 0
				}
			}
		case envSustain:
			vol = target * e.SustainLevel
		case envRelease:
			if e.ReleaseFrames <= 0 {
				vol = 0
			} else {
				pos++
				vol *= 1 - 1/e.ReleaseFrames
				if vol <= 0.0001 {
					vol = 0
				}
			}
		}

		for i := 0; i < ctx.Buffers.Len() && i < 2; i++ {
			buf := ctx.Buffers.At(i)
			data := buf.ContentsMut()
			if f < len(data) {
				data[f] *= float32(vol)
			}
		}

		if silentFrom == ctx.TotalFrameCount && phase == envRelease && vol <= 0.0001 {
			silentFrom = f
		}
	}

	writeEnvState(v.DSPState, phase, pos, vol)
	return silentFrom
}
