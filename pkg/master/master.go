// Package master implements global playback state shared across channels:
// the current position, tempo and tempo-slide stepping, jump/goto targets,
// the active-jump-context cache, and the master output's DC blocker and
// volume slider.
package master

import (
	"github.com/kunquat/kunquat-go/pkg/channel"
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// PlaybackState is the coarse playback mode.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	PlayingModule
	PlayingSong
	PlayingPattern
)

// TempoSlideSliceLen is the musical duration stepped per tempo-slide update.
var TempoSlideSliceLen = tstamp.New(0, tstamp.BeatUnits/16)

// JumpContext represents a jump trigger that has armed itself.
type JumpContext struct {
	SourcePIRef module.PatternInstRef
	SourceRow   tstamp.Tstamp
	ChNum       int
	OrderInRow  int

	TargetPIRef module.PatternInstRef
	TargetRow   tstamp.Tstamp
	Counter     int
}

// key identifies a jump context by its source location, per the invariant
// that at most one context exists per (source_piref, source_row, ch_num,
// order_in_row) tuple.
type key struct {
	piref      module.PatternInstRef
	row        tstamp.Tstamp
	ch         int
	orderInRow int
}

func keyOf(jc JumpContext) key {
	return key{jc.SourcePIRef, jc.SourceRow, jc.ChNum, jc.OrderInRow}
}

// Params is the global playback state.
type Params struct {
	CurPos         module.Position
	PlaybackState  PlaybackState
	Tempo          float64
	VolumeSlider   channel.Slider

	tempoSlideActive    bool
	TempoSlideTarget    float64
	TempoSlideStep      float64 // signed per-slice tempo delta
	TempoSlideSliceLeft tstamp.Tstamp
	TempoSlideLeft      tstamp.Tstamp
	TempoSettingsChanged bool

	DCBlocker [2]DCBlocker

	DelayLeft tstamp.Tstamp

	DoGoto         bool
	GotoTargetPIRef module.PatternInstRef
	GotoTargetRow   tstamp.Tstamp

	DoJump          bool
	JumpTargetPIRef module.PatternInstRef
	JumpTargetRow   tstamp.Tstamp

	PatternPlaybackFlag bool

	activeJumps map[key]JumpContext

	CurCh      int
	CurTrigger int

	IsInfinite bool

	ActiveVoices  int
	ActiveVGroups int

	Pause bool
}

// New creates playback state at the given starting tempo.
func New(tempo float64) *Params {
	return &Params{
		Tempo:        tempo,
		VolumeSlider: channel.NewSlider(1.0),
		activeJumps:  make(map[key]JumpContext),
	}
}

// StartTempoSlide arms a tempo slide toward target over musicalLength,
// taking effect in slices of TempoSlideSliceLen.
func (p *Params) StartTempoSlide(target float64, musicalLength tstamp.Tstamp) {
	if musicalLength.IsZero() || musicalLength.IsNegative() {
		p.Tempo = target
		p.TempoSettingsChanged = true
		p.tempoSlideActive = false
		return
	}
	p.tempoSlideActive = true
	p.TempoSlideTarget = target
	p.TempoSlideLeft = musicalLength
	p.TempoSlideSliceLeft = tstamp.Zero

	slices := musicalLength.Float() / TempoSlideSliceLen.Float()
	if slices <= 0 {
		slices = 1
	}
	p.TempoSlideStep = (target - p.Tempo) / slices
}

// StepTempoSlide applies one tempo-slide update if a slide is active and
// its current slice has been fully consumed. Called once per
// move_forwards iteration, before the next limit is computed.
func (p *Params) StepTempoSlide() {
	if !p.tempoSlideActive {
		return
	}
	if tstamp.Less(tstamp.Zero, p.TempoSlideSliceLeft) {
		return
	}

	p.Tempo += p.TempoSlideStep
	overshotUp := p.TempoSlideStep > 0 && p.Tempo >= p.TempoSlideTarget
	overshotDown := p.TempoSlideStep < 0 && p.Tempo <= p.TempoSlideTarget
	p.TempoSettingsChanged = true

	if overshotUp || overshotDown || p.TempoSlideLeft.IsZero() || p.TempoSlideLeft.IsNegative() {
		p.Tempo = p.TempoSlideTarget
		p.tempoSlideActive = false
		p.TempoSlideSliceLeft = tstamp.Zero
		p.TempoSlideLeft = tstamp.Zero
		return
	}

	slice := tstamp.Min(TempoSlideSliceLen, p.TempoSlideLeft)
	p.TempoSlideSliceLeft = slice
	p.TempoSlideLeft = tstamp.Sub(p.TempoSlideLeft, slice)
}

// TempoSlideActive reports whether a tempo slide is currently in progress.
func (p *Params) TempoSlideActive() bool { return p.tempoSlideActive }

// ConsumeSliceLeft subtracts dist from the remaining tempo-slide slice,
// clamping at zero. Called as musical time is actually consumed by
// move_forwards.
func (p *Params) ConsumeSliceLeft(dist tstamp.Tstamp) {
	if !p.tempoSlideActive {
		return
	}
	p.TempoSlideSliceLeft = tstamp.Sub(p.TempoSlideSliceLeft, dist)
	if p.TempoSlideSliceLeft.IsNegative() {
		p.TempoSlideSliceLeft = tstamp.Zero
	}
}

// ArmJump records a newly encountered jump trigger with a nonzero counter.
func (p *Params) ArmJump(jc JumpContext) {
	p.activeJumps[keyOf(jc)] = jc
}

// FindJump looks up the active jump context at the given source location.
func (p *Params) FindJump(piref module.PatternInstRef, row tstamp.Tstamp, ch, orderInRow int) (JumpContext, bool) {
	jc, ok := p.activeJumps[key{piref, row, ch, orderInRow}]
	return jc, ok
}

// FireJump decrements the context's counter. Once the counter reaches
// zero the context is kept in the active set, spent (Counter == 0), so a
// later re-encounter of the same source location (FindJump still finds
// it) is recognized as already used up rather than armed afresh. Returns
// the (possibly now-spent) context and whether it still has fires left.
func (p *Params) FireJump(piref module.PatternInstRef, row tstamp.Tstamp, ch, orderInRow int) (JumpContext, bool) {
	k := key{piref, row, ch, orderInRow}
	jc, ok := p.activeJumps[k]
	if !ok {
		return JumpContext{}, false
	}
	jc.Counter--
	if jc.Counter < 0 {
		jc.Counter = 0
	}
	p.activeJumps[k] = jc
	return jc, jc.Counter > 0
}

// ReleaseJumpsBefore releases any active jump context whose source row
// lies at or after the given position, used when playback moves to a
// location before the source row (the context can no longer legally fire).
func (p *Params) ReleaseJumpsBefore(piref module.PatternInstRef, row tstamp.Tstamp) {
	for k, jc := range p.activeJumps {
		if jc.SourcePIRef == piref && !tstamp.Less(jc.SourceRow, row) {
			delete(p.activeJumps, k)
		}
	}
}

// ActiveJumpCount reports how many jump contexts are currently armed.
func (p *Params) ActiveJumpCount() int { return len(p.activeJumps) }

// ReleaseJumpAt removes a single jump context by its exact source location,
// called once process_cgiters' next-active-jump lookup finds a context at
// the current trigger with no fires left (Counter == 0).
func (p *Params) ReleaseJumpAt(piref module.PatternInstRef, row tstamp.Tstamp, ch, orderInRow int) {
	delete(p.activeJumps, key{piref, row, ch, orderInRow})
}

// NextActiveJumpAtOrAfter scans the active jump set for the one whose
// source location is lexicographically earliest at or after the given
// cursor location, per process_cgiters' "find the next active jump"
// lookup. Returns false if none qualifies.
func (p *Params) NextActiveJumpAtOrAfter(piref module.PatternInstRef, row tstamp.Tstamp, ch, orderInRow int) (JumpContext, bool) {
	var best JumpContext
	found := false
	for _, jc := range p.activeJumps {
		if jc.SourcePIRef != piref {
			continue
		}
		if tstamp.Less(jc.SourceRow, row) {
			continue
		}
		if tstamp.Compare(jc.SourceRow, row) == 0 {
			if jc.ChNum < ch || (jc.ChNum == ch && jc.OrderInRow < orderInRow) {
				continue
			}
		}
		if !found || tstamp.Less(jc.SourceRow, best.SourceRow) ||
			(tstamp.Compare(jc.SourceRow, best.SourceRow) == 0 && jc.ChNum < best.ChNum) ||
			(tstamp.Compare(jc.SourceRow, best.SourceRow) == 0 && jc.ChNum == best.ChNum && jc.OrderInRow < best.OrderInRow) {
			best = jc
			found = true
		}
	}
	return best, found
}
