package channel

// SliderMode is whether a Slider is actively ramping.
type SliderMode int

const (
	// SliderOff: not ramping; Current is authoritative.
	SliderOff SliderMode = iota
	// SliderLinear: ramping linearly from its starting value to Target.
	SliderLinear
)

// Slider is a linear ramp to a target over a musical duration, rescaled on
// tempo change so that it still completes at the same musical time.
type Slider struct {
	Mode         SliderMode
	Current      float64
	Target       float64
	LengthFrames float64
	FramesDone   float64

	start       float64
	lengthBeats float64
	tempo       float64
	rate        float64
}

// NewSlider creates a slider parked at value with no ramp in progress.
func NewSlider(value float64) Slider {
	return Slider{Current: value, Target: value}
}

// SetTarget starts (or retargets) a ramp to target over lengthBeats beats
// at the given tempo (BPM) and sample rate.
func (s *Slider) SetTarget(target, lengthBeats, tempo, rate float64) {
	s.start = s.Current
	s.Target = target
	s.lengthBeats = lengthBeats
	s.tempo = tempo
	s.rate = rate
	s.FramesDone = 0

	if lengthBeats <= 0 || tempo <= 0 {
		s.Current = target
		s.Mode = SliderOff
		s.LengthFrames = 0
		return
	}
	s.LengthFrames = lengthBeats * 60.0 / tempo * rate
	s.Mode = SliderLinear
}

// SetImmediate sets the slider's value with no ramp.
func (s *Slider) SetImmediate(value float64) {
	s.Mode = SliderOff
	s.Current = value
	s.Target = value
	s.FramesDone = 0
	s.LengthFrames = 0
}

// SetTempo rescales the remaining ramp length so the slider still
// completes after covering the same remaining fraction of its musical
// length, per the Slider tempo-parameterisation invariant.
func (s *Slider) SetTempo(tempo, rate float64) {
	if s.Mode == SliderOff || s.tempo == 0 {
		s.tempo = tempo
		s.rate = rate
		return
	}
	remainingFrac := 1.0
	if s.LengthFrames > 0 {
		remainingFrac = 1 - s.FramesDone/s.LengthFrames
		if remainingFrac < 0 {
			remainingFrac = 0
		}
	}
	s.tempo = tempo
	s.rate = rate
	newLength := s.lengthBeats * 60.0 / tempo * rate
	s.LengthFrames = newLength
	s.FramesDone = newLength * (1 - remainingFrac)
}

// Advance moves the slider forward by frames audio frames and returns its
// resulting value.
func (s *Slider) Advance(frames int) float64 {
	if s.Mode == SliderOff || s.LengthFrames <= 0 {
		return s.Current
	}
	s.FramesDone += float64(frames)
	if s.FramesDone >= s.LengthFrames {
		s.FramesDone = s.LengthFrames
		s.Current = s.Target
		s.Mode = SliderOff
		return s.Current
	}
	frac := s.FramesDone / s.LengthFrames
	s.Current = s.start + (s.Target-s.start)*frac
	return s.Current
}

// Value returns the slider's current value without advancing it.
func (s *Slider) Value() float64 { return s.Current }

// FramesRemaining returns how many more frames are needed to reach target.
func (s *Slider) FramesRemaining() float64 {
	if s.Mode == SliderOff {
		return 0
	}
	r := s.LengthFrames - s.FramesDone
	if r < 0 {
		return 0
	}
	return r
}
