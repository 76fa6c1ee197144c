package player

import (
	"github.com/kunquat/kunquat-go/pkg/event"
	"github.com/kunquat/kunquat-go/pkg/master"
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// moveForwards advances playback by at most framesLeft frames, processing
// every trigger row crossed along the way, and returns the number of
// frames actually advanced this call. It stops early when the module (or
// subsong, outside infinite mode) ends. Once the event buffer fills, skip
// is forced on for the remainder of the call: triggers still take effect,
// they are just no longer recorded. Per §4.9's render pipeline, each
// inter-event span of frames is rendered (renderIncrement, which runs
// Process Voices and, if produceAudio, appends to the output buffer)
// immediately after it is consumed, before the next trigger row is
// dispatched — so a note_on/note_off/slider-retarget/tempo-change
// mid-block always renders from its own precise frame boundary instead of
// being folded into one aggregate pass over the whole call.
func (p *Player) moveForwards(framesLeft int, skip bool, produceAudio bool) int {
	advanced := 0

	for framesLeft > 0 {
		if p.master.PlaybackState == master.Stopped {
			break
		}
		if p.suspended() {
			skip = true
		}

		p.master.StepTempoSlide()
		p.propagateTempo()

		if tstamp.Less(tstamp.Zero, p.master.DelayLeft) {
			limit := tstamp.FromFrames(float64(framesLeft), p.master.Tempo, float64(p.audioRate))
			dist := tstamp.Min(limit, p.master.DelayLeft)
			frames := p.advanceDelay(dist)
			advanced += frames
			framesLeft -= frames
			p.renderIncrement(frames, produceAudio)
			if frames == 0 {
				break
			}
			continue
		}

		p.processCgiters(skip)

		if p.master.DoGoto {
			p.performGoto()
			if p.bumpGotoSafety() {
				p.master.PlaybackState = master.Stopped
				break
			}
			continue
		}
		if p.master.DoJump {
			p.performJump()
			if p.bumpGotoSafety() {
				p.master.PlaybackState = master.Stopped
				break
			}
			continue
		}
		if p.master.PatternPlaybackFlag {
			p.startPatternPlaybackMode()
			continue
		}

		if p.allCgitersFinished() {
			if p.master.IsInfinite {
				p.wrapToStart()
				continue
			}
			p.master.PlaybackState = master.Stopped
			break
		}

		limit := tstamp.FromFrames(float64(framesLeft), p.master.Tempo, float64(p.audioRate))
		dist := p.nextEventDistance(limit)

		frames := p.advanceMusicalTime(dist)
		advanced += frames
		framesLeft -= frames
		p.gotoSafetyCounter = 0
		p.renderIncrement(frames, produceAudio)

		if frames == 0 {
			// No musical time could be consumed at the current tempo and
			// frame budget (e.g. the remaining slice rounds to zero
			// frames); stop rather than spin.
			break
		}
	}

	return advanced
}

// processCgiters implements one scan of process_event over every channel
// sitting on an unreturned trigger row: it dispatches each trigger in
// source order, tracking the (ch, trigger index) cursor in Master so a
// jump trigger re-encountered from a previous arming (rather than freshly
// armed by its own handler) can be recognized and fired directly.
func (p *Player) processCgiters(skip bool) {
	for ch := 0; ch < len(p.cgiters); ch++ {
		cg := p.cgiters[ch]
		if cg.HasFinished() {
			continue
		}
		row, ok := cg.GetTriggerRow()
		if !ok {
			continue
		}

		p.master.CurCh = ch
		for i, trig := range row.Triggers {
			p.master.CurTrigger = i
			p.curTriggerPIRef = cg.Pos.PIRef
			p.curTriggerRow = cg.Pos.Pat

			if trig.EventName == "jump" {
				jc, found := p.master.NextActiveJumpAtOrAfter(cg.Pos.PIRef, cg.Pos.Pat, ch, i)
				atThisTrigger := found && jc.SourcePIRef == cg.Pos.PIRef &&
					tstamp.Compare(jc.SourceRow, cg.Pos.Pat) == 0 && jc.ChNum == ch && jc.OrderInRow == i
				if atThisTrigger {
					if jc.Counter <= 0 {
						// Spent: release it so it doesn't linger in the
						// active set, and let playback continue past it.
						p.master.ReleaseJumpAt(jc.SourcePIRef, jc.SourceRow, jc.ChNum, jc.OrderInRow)
						continue
					}
					fired, _ := p.master.FireJump(jc.SourcePIRef, jc.SourceRow, jc.ChNum, jc.OrderInRow)
					p.master.DoJump = true
					p.master.JumpTargetPIRef = fired.TargetPIRef
					p.master.JumpTargetRow = fired.TargetRow
					if !skip {
						p.emit(ch, "jump", event.Null())
					}
					if p.master.DoGoto || p.master.DoJump || p.master.PatternPlaybackFlag {
						return
					}
					continue
				}
			}

			ctx := &event.HandlerContext{Channels: p.channels, Master: p.master, Ch: ch}
			if err := event.ProcessExpr(p.table, p.eval, ctx, trig.EventName, trig.Expr, event.Null(), skip, p.emit, &p.channels[ch].RandState); err != nil {
				p.emitError(ch, err)
				continue
			}

			if p.master.DoGoto || p.master.DoJump || p.master.PatternPlaybackFlag {
				return
			}
		}
	}
}

// nextEventDistance finds the musical distance to the closest upcoming
// trigger row (or pattern end) across every live channel, capped at limit.
func (p *Player) nextEventDistance(limit tstamp.Tstamp) tstamp.Tstamp {
	dist := limit
	for _, cg := range p.cgiters {
		if cg.HasFinished() {
			continue
		}
		cg.Peek(&dist)
	}
	return dist
}

// advanceMusicalTime moves every channel cursor forward by dist, converts
// dist to a (possibly fractional, carried via frameRemainder) frame count,
// and returns the whole frames consumed.
func (p *Player) advanceMusicalTime(dist tstamp.Tstamp) int {
	exact := tstamp.ToFrames(dist, p.master.Tempo, float64(p.audioRate)) + p.frameRemainder
	frames := int(exact)
	p.frameRemainder = exact - float64(frames)

	for _, cg := range p.cgiters {
		cg.Move(dist)
	}
	p.master.ConsumeSliceLeft(dist)
	return frames
}

// advanceDelay consumes dist of a pending pattern delay without moving any
// channel cursor: playback position is frozen while the delay runs out.
func (p *Player) advanceDelay(dist tstamp.Tstamp) int {
	exact := tstamp.ToFrames(dist, p.master.Tempo, float64(p.audioRate)) + p.frameRemainder
	frames := int(exact)
	p.frameRemainder = exact - float64(frames)

	p.master.DelayLeft = tstamp.Sub(p.master.DelayLeft, dist)
	if p.master.DelayLeft.IsNegative() {
		p.master.DelayLeft = tstamp.Zero
	}
	p.master.ConsumeSliceLeft(dist)
	return frames
}

func (p *Player) allCgitersFinished() bool {
	for _, cg := range p.cgiters {
		if !cg.HasFinished() {
			return false
		}
	}
	return true
}

// performGoto relocates every channel cursor to the armed goto target.
func (p *Player) performGoto() {
	p.master.DoGoto = false
	p.setNewPlaybackPosition(p.master.GotoTargetPIRef, p.master.GotoTargetRow)
}

// performJump relocates every channel cursor to the armed jump target. The
// firing context's own exhaustion (FireJump's spent-but-retained entry) is
// what stops it from re-arming on the next revisit, where processCgiters
// finds it spent and releases it; jumping backward over its source row
// must not also delete it, since that row is exactly what gets revisited.
func (p *Player) performJump() {
	p.master.DoJump = false
	p.setNewPlaybackPosition(p.master.JumpTargetPIRef, p.master.JumpTargetRow)
}

// setNewPlaybackPosition repositions every channel cursor at (piref, row).
// A negative Pattern in piref (the "current pattern" sentinel handleJump
// uses for a jump with no explicit target pattern) keeps the current
// pattern instance and only changes the row.
func (p *Player) setNewPlaybackPosition(piref module.PatternInstRef, row tstamp.Tstamp) {
	if piref.Pattern < 0 {
		piref = p.master.CurPos.PIRef
	}
	pos := module.Position{Track: p.master.CurPos.Track, System: p.master.CurPos.System, Pat: row, PIRef: piref}
	for _, cg := range p.cgiters {
		cg.Reset(pos)
	}
	p.master.CurPos = pos
}

// startPatternPlaybackMode switches every channel cursor into looping
// playback of its current pattern instance.
func (p *Player) startPatternPlaybackMode() {
	p.master.PatternPlaybackFlag = false
	p.master.PlaybackState = master.PlayingPattern
	for _, cg := range p.cgiters {
		cg.PatternPlayback = true
	}
}

// wrapToStart returns every channel cursor to the position Reset last
// established, for infinite (whole-module) playback.
func (p *Player) wrapToStart() {
	for _, cg := range p.cgiters {
		cg.Reset(p.startPos)
	}
	p.master.CurPos = p.startPos
}

// propagateTempo pushes a changed tempo out to every carried control and
// device state once per settling, rather than on every StepTempoSlide
// call.
func (p *Player) propagateTempo() {
	if !p.master.TempoSettingsChanged {
		return
	}
	for _, ch := range p.channels {
		ch.SetTempo(p.master.Tempo)
	}
	p.master.VolumeSlider.SetTempo(p.master.Tempo, float64(p.audioRate))
	p.deviceState.SetTempo(p.master.Tempo)
	for _, ts := range p.threadStates {
		ts.SetTempo(p.master.Tempo)
	}
	p.master.TempoSettingsChanged = false
}

// bumpGotoSafety increments the consecutive-zero-advance goto/jump
// counter and reports whether the safety ceiling has been exceeded,
// guarding against an infinite loop of jumps/gotos that never consume any
// musical time.
func (p *Player) bumpGotoSafety() bool {
	p.gotoSafetyCounter++
	return p.gotoSafetyCounter > gotoSafetyCeiling
}
