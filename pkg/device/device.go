// Package device implements per-audio-unit device state and the per-thread
// working copies used during concurrent voice processing.
package device

import "github.com/kunquat/kunquat-go/pkg/workbuf"

// State is the mutable state owned by one device (instrument or effect
// audio unit): its port buffers, the tempo/sample rate it was last told
// about, and an opaque custom DSP state block reserved at connection-build
// time.
type State struct {
	audioRate  int32
	tempo      float64
	ports      *workbuf.Set
	portCount  int
	bufSize    int
	custom     []byte
}

// NewState allocates a device state with portCount ports, each sized for
// bufSize frames, and a custom DSP state block of customSize bytes.
func NewState(portCount, bufSize, customSize int) *State {
	return &State{
		ports:     workbuf.NewSet(portCount, bufSize),
		portCount: portCount,
		bufSize:   bufSize,
		custom:    make([]byte, customSize),
	}
}

// Port returns the work buffer for port i.
func (s *State) Port(i int) *workbuf.Buffer { return s.ports.At(i) }

// PortCount returns the number of ports.
func (s *State) PortCount() int { return s.portCount }

// Custom returns the device's custom DSP state block for read/write.
func (s *State) Custom() []byte { return s.custom }

// SetAudioRate updates the sample rate the device should assume downstream
// of a reallocation.
func (s *State) SetAudioRate(rate int32) { s.audioRate = rate }

// AudioRate returns the device's current sample rate.
func (s *State) AudioRate() int32 { return s.audioRate }

// SetTempo updates the tempo the device should assume for any
// tempo-relative custom state (e.g. a tempo-synced delay line).
func (s *State) SetTempo(tempo float64) { s.tempo = tempo }

// Tempo returns the device's current tempo.
func (s *State) Tempo() float64 { return s.tempo }

// ReallocatePorts resizes every port buffer to hold bufSize frames. Called
// on audio-buffer-size or thread-count change per the Device state
// lifecycle.
func (s *State) ReallocatePorts(bufSize int) {
	s.bufSize = bufSize
	s.ports.Resize(bufSize)
}

// Reset clears custom state and invalidates all ports; called on playback
// restart.
func (s *State) Reset() {
	for i := range s.custom {
		s.custom[i] = 0
	}
	s.ports.InvalidateAll()
}

// ThreadState is a per-(device, thread) working copy used by threaded voice
// processing so that threads never contend on a device's shared ports.
type ThreadState struct {
	State
	ThreadID int
}

// NewThreadStates builds n disjoint thread-local copies of base's shape
// (same port/custom sizing, independent storage).
func NewThreadStates(base *State, n int) []*ThreadState {
	out := make([]*ThreadState, n)
	for i := range out {
		out[i] = &ThreadState{
			State:    *NewState(base.portCount, base.bufSize, len(base.custom)),
			ThreadID: i,
		}
		out[i].audioRate = base.audioRate
		out[i].tempo = base.tempo
	}
	return out
}

// MixThreadStates additively combines threads[1:] into threads[0], leaving
// thread 0 holding the block's full result as required by §4.11 ("only
// thread 0's state is read during mixed processing").
func MixThreadStates(threads []*ThreadState) {
	if len(threads) == 0 {
		return
	}
	dst := &threads[0].State
	for _, ts := range threads[1:] {
		for p := 0; p < dst.portCount && p < ts.PortCount(); p++ {
			src := ts.Port(p)
			if !src.IsValid() {
				continue
			}
			dstPort := dst.Port(p)
			dstPort.Mix(src, 0, src.Len())
			dstPort.SetValid(true)
		}
	}
}
