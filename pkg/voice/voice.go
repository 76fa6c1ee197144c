// Package voice implements voice and voice-group allocation: the fixed-size
// pool of voice slots partitioned by owning channel, and the group identity
// that ties together voices co-triggered by a multi-processor instrument.
package voice

// Lifestate is a voice's place in its lifecycle.
type Lifestate int

const (
	// Inactive: the slot is free.
	Inactive Lifestate = iota
	// Foreground: representing the owning channel's current note-on.
	Foreground
	// Background: released from foreground, rendering a release tail.
	Background
)

// Voice is one activation record for one processor inside one audio unit.
type Voice struct {
	Channel     int
	GroupID     uint64
	ProcIndex   int
	State       Lifestate
	DSPState    []byte
	FrameOffset int
	TestOutput  bool

	// deactivated is set once the voice's signal plan has reported its
	// subtree silent, or it was forcibly released.
	deactivated bool
	slot        int // index into Pool.voices
}

// Deactivate marks the voice finished; it is returned to the pool at the
// end of the current render call.
func (v *Voice) Deactivate() { v.deactivated = true }

// IsDeactivated reports whether the voice has finished.
func (v *Voice) IsDeactivated() bool { return v.deactivated }

// Group is a transient view over all live voices sharing one group id.
// Voices in a group are processed together because they share one
// instrument's internal routing graph.
type Group struct {
	ID          uint64
	Channel     int
	Voices      []*Voice
	FrameOffset int
	background  bool
}

// AllDeactivated reports whether every voice in the group has finished.
func (g *Group) AllDeactivated() bool {
	for _, v := range g.Voices {
		if !v.IsDeactivated() {
			return false
		}
	}
	return true
}

// IsBackground reports whether the group is currently a background group.
func (g *Group) IsBackground() bool { return g.background }

// IsTestOutput reports whether this group's voices are routed to the
// per-thread test-output buffers instead of their normal audio-unit
// outputs. A group is test-output if any of its voices were allocated as
// such; they are always allocated together, so checking the first voice is
// representative of the whole group.
func (g *Group) IsTestOutput() bool {
	return len(g.Voices) > 0 && g.Voices[0].TestOutput
}
