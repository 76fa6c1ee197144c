// Package channel implements per-channel carried playback state: force and
// pitch control chains (slider + LFO), the channel's foreground voice-group
// identity, its event-applicability cache, and its bounded queue of
// intra-block local events.
package channel

// CarriedControl is a slider-plus-LFO pair for one carried control (force
// or pitch).
type CarriedControl struct {
	Slider Slider
	LFO    LFO
}

// Advance moves both the slider and the LFO forward by frames frames and
// returns their combined value (slider plus LFO offset).
func (c *CarriedControl) Advance(frames int, rate float64) float64 {
	v := c.Slider.Advance(frames)
	return v + c.LFO.Advance(frames, rate)
}

// Value returns the control's current combined value (slider plus LFO
// offset) without advancing either.
func (c *CarriedControl) Value() float64 {
	return c.Slider.Value() + c.LFO.Value()
}

// LocalEvent is one intra-block event queued on a channel: it is processed
// after audio for frames [..., FrameOffset-1] and before audio for frames
// [FrameOffset, ...].
type LocalEvent struct {
	FrameOffset int
	EventType   string
	Arg         any
}

// maxLocalEvents bounds the per-block local event FIFO.
const maxLocalEvents = 256

// Channel is one playback channel's carried state.
type Channel struct {
	Index       int
	FGGroupID   uint64
	FGGroupTemp uint64

	Force CarriedControl
	Pitch CarriedControl

	EventCache  map[string]bool
	LocalEvents []LocalEvent

	RandState uint64
	Muted     bool

	audioRate float64
	tempo     float64
}

// New creates a channel at the given index with default carried controls.
func New(index int) *Channel {
	c := &Channel{
		Index:      index,
		Force:      CarriedControl{Slider: NewSlider(1.0)},
		Pitch:      CarriedControl{Slider: NewSlider(0.0)},
		EventCache: make(map[string]bool),
		RandState:  uint64(index)*2654435761 + 1,
		audioRate:  44100,
		tempo:      120,
	}
	return c
}

// Reset returns the channel to its power-on state: controls parked, voice
// group identity cleared, event queue drained.
func (c *Channel) Reset() {
	c.FGGroupID = 0
	c.FGGroupTemp = 0
	c.Force = CarriedControl{Slider: NewSlider(1.0)}
	c.Pitch = CarriedControl{Slider: NewSlider(0.0)}
	c.LocalEvents = nil
	c.EventCache = make(map[string]bool)
}

// ApplyDefaults resets carried controls to module-specified defaults for
// this channel. Recognized keys: "force", "pitch".
func (c *Channel) ApplyDefaults(defaults map[string]float64) {
	if v, ok := defaults["force"]; ok {
		c.Force.Slider.SetImmediate(v)
	}
	if v, ok := defaults["pitch"]; ok {
		c.Pitch.Slider.SetImmediate(v)
	}
}

// SetAudioRate updates sliders and LFOs when the audio rate changes.
func (c *Channel) SetAudioRate(rate float64) {
	c.audioRate = rate
	c.Force.Slider.SetTempo(c.tempo, rate)
	c.Pitch.Slider.SetTempo(c.tempo, rate)
}

// SetTempo updates sliders and LFOs when the tempo changes.
func (c *Channel) SetTempo(tempo float64) {
	c.tempo = tempo
	c.Force.Slider.SetTempo(tempo, c.audioRate)
	c.Pitch.Slider.SetTempo(tempo, c.audioRate)
}

// SetMuted sets the mute flag. Muted channels still process voices (state
// still evolves) and still fire events; only additive mixing to the master
// output is suppressed by the caller.
func (c *Channel) SetMuted(muted bool) { c.Muted = muted }

// QueueLocalEvent appends an intra-block event, preserving FrameOffset
// order (local events are queued in dispatch order, which is already
// non-decreasing in FrameOffset per the render pipeline's sub-slicing).
// Returns false if the bounded FIFO is full.
func (c *Channel) QueueLocalEvent(ev LocalEvent) bool {
	if len(c.LocalEvents) >= maxLocalEvents {
		return false
	}
	c.LocalEvents = append(c.LocalEvents, ev)
	return true
}

// ClearLocalEvents empties the local event queue; called at the start of
// processing each render call.
func (c *Channel) ClearLocalEvents() { c.LocalEvents = nil }

// AdvanceControls advances both carried controls by frames frames without
// reading their combined value; the player calls it once per rendered span
// for every channel.
func (c *Channel) AdvanceControls(frames int) {
	c.Force.Advance(frames, c.audioRate)
	c.Pitch.Advance(frames, c.audioRate)
}

// NextRandom advances the channel's deterministic random state (xorshift64)
// and returns the new value, for the expression evaluator's rand() support.
func (c *Channel) NextRandom() uint64 {
	x := c.RandState
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	c.RandState = x
	return x
}
