package player

import (
	"github.com/kunquat/kunquat-go/pkg/event"
	"github.com/kunquat/kunquat-go/pkg/master"
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// buildEventTable registers the engine's built-in event set: note
// triggering, carried-control sliders and LFOs, tempo and tempo-slide,
// pattern delay, jump and goto (each split into a "set target" primitive
// plus the firing trigger, since the external Value protocol carries one
// typed argument per event rather than a tuple), pattern-playback mode, and
// the query events. Each handler closes over p to reach pool/master/plan
// state the narrow HandlerContext doesn't carry.
func buildEventTable(p *Player) *event.Table {
	t := event.NewTable()

	t.Register(&event.EventDef{
		Name:    "note_on",
		ArgKind: event.KindFloat,
		Handler: p.handleNoteOn,
	})
	t.Register(&event.EventDef{
		Name:    "note_off",
		ArgKind: event.KindNull,
		Handler: p.handleNoteOff,
	})
	t.Register(&event.EventDef{
		Name:    "set_instrument",
		ArgKind: event.KindInt,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.channelInstrument[ctx.Ch] = int(arg.I)
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "set_force",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Force.Slider.SetImmediate(f)
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "slide_force_length",
		ArgKind: event.KindTstamp,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			ch := ctx.Self()
			ch.Force.Slider.SetTarget(ch.Force.Slider.Value(), arg.T.Float(), p.master.Tempo, float64(p.audioRate))
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "slide_force",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ch := ctx.Self()
			ch.Force.Slider.SetTarget(f, 0, p.master.Tempo, float64(p.audioRate))
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "set_tremolo_speed",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Force.LFO.SetSpeed(f)
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "set_tremolo_depth",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Force.LFO.SetDepth(f)
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "set_pitch",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Pitch.Slider.SetImmediate(f)
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "slide_pitch_length",
		ArgKind: event.KindTstamp,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			ch := ctx.Self()
			ch.Pitch.Slider.SetTarget(ch.Pitch.Slider.Value(), arg.T.Float(), p.master.Tempo, float64(p.audioRate))
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "slide_pitch",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ch := ctx.Self()
			ch.Pitch.Slider.SetTarget(f, 0, p.master.Tempo, float64(p.audioRate))
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "set_vibrato_speed",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Pitch.LFO.SetSpeed(f)
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "set_vibrato_depth",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Pitch.LFO.SetDepth(f)
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "set_tempo",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			p.master.StartTempoSlide(f, tstamp.Zero)
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "tempo_slide_length",
		ArgKind: event.KindTstamp,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.pendingTempoSlideLength = arg.T
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "tempo_slide",
		ArgKind: event.KindFloat,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			f, _ := arg.AsFloat()
			p.master.StartTempoSlide(f, p.pendingTempoSlideLength)
			p.pendingTempoSlideLength = tstamp.Zero
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "pattern_delay",
		ArgKind: event.KindTstamp,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.master.DelayLeft = arg.T
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "pattern_playback",
		ArgKind: event.KindNull,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.master.PatternPlaybackFlag = true
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "jump_counter",
		ArgKind: event.KindInt,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.pendingJumpCounter = int(arg.I)
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "jump_target_row",
		ArgKind: event.KindTstamp,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.pendingJumpTargetRow = arg.T
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "jump_target_pattern",
		ArgKind: event.KindPIRef,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.pendingJumpTargetPIRef = arg.PIRef
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "jump",
		ArgKind: event.KindNull,
		Handler: p.handleJump,
	})

	t.Register(&event.EventDef{
		Name:    "goto_target_row",
		ArgKind: event.KindTstamp,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.master.GotoTargetRow = arg.T
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "goto_target_pattern",
		ArgKind: event.KindPIRef,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.master.GotoTargetPIRef = arg.PIRef
			return event.Null(), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "goto",
		ArgKind: event.KindNull,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			p.master.DoGoto = true
			return event.Null(), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "query_location",
		ArgKind: event.KindNull,
		IsQuery: true,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			return event.FromTstamp(p.master.CurPos.Pat), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "query_voice_count",
		ArgKind: event.KindNull,
		IsQuery: true,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			return event.FromInt(int64(p.voicePool.ActiveVoiceCount())), nil
		},
	})
	t.Register(&event.EventDef{
		Name:    "query_actual_force",
		ArgKind: event.KindNull,
		IsQuery: true,
		Handler: func(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
			return event.FromFloat(ctx.Self().Force.Slider.Value()), nil
		},
	})

	t.Register(&event.EventDef{
		Name:    "error",
		ArgKind: event.KindString,
		IsAuto:  true,
	})
	t.Register(&event.EventDef{
		Name:    "notify",
		ArgKind: event.KindString,
		IsAuto:  true,
	})

	return t
}

// handleNoteOn sets the channel's pitch and allocates a new foreground
// voice group from the channel's currently selected instrument, moving any
// previous foreground group of this channel to background.
func (p *Player) handleNoteOn(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
	f, _ := arg.AsFloat()
	ch := ctx.Self()
	ch.Pitch.Slider.SetImmediate(f)

	instIdx := p.channelInstrument[ctx.Ch]
	numProcs := 1
	if inst, ok := p.instruments[instIdx]; ok && inst.Plan != nil && len(inst.Plan.Nodes) > 0 {
		numProcs = len(inst.Plan.Nodes)
	}

	g, err := p.voicePool.AllocateGroup(ctx.Ch, numProcs)
	if err != nil {
		// Resource exhaustion: the triggering event still dispatched (and
		// was already recorded by Dispatch); no voices are allocated.
		p.logger.Debug("voice pool exhausted, dropping note_on", "channel", ctx.Ch, "error", err)
		return event.Null(), nil
	}
	p.voicePool.MoveToBackgroundAt(ctx.Ch, g.ID, false, p.localFrameOffset)
	ch.FGGroupID = g.ID
	p.groupInstrument[g.ID] = instIdx

	if ctx.Ch < len(p.channelTestOutput) && p.channelTestOutput[ctx.Ch] {
		for _, v := range g.Voices {
			v.TestOutput = true
		}
	}

	return event.Null(), nil
}

// handleNoteOff releases the channel's foreground group to the background,
// where it continues rendering its release tail.
func (p *Player) handleNoteOff(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
	ch := ctx.Self()
	p.voicePool.MoveToBackgroundAt(ctx.Ch, 0, true, p.localFrameOffset)
	ch.FGGroupID = 0
	return event.Null(), nil
}

// handleJump implements the jump trigger's first-encounter behavior: arm a
// new context with the pending counter/target, immediately consume one use
// of it (matching the source's "arm, then fall through to the common
// decrement" control flow), and set do_jump for process_cgiters' shared
// post-dispatch handling. Subsequent encounters of the same source location
// are detected by process_cgiters itself before ever reaching this handler.
func (p *Player) handleJump(ctx *event.HandlerContext, arg event.Value) (event.Value, error) {
	if p.pendingJumpCounter <= 0 {
		return event.Null(), nil
	}

	target := p.pendingJumpTargetPIRef
	if target == (module.PatternInstRef{}) {
		target = module.PatternInstRef{Pattern: -1}
	}

	jc := master.JumpContext{
		SourcePIRef: p.curTriggerPIRef,
		SourceRow:   p.curTriggerRow,
		ChNum:       ctx.Ch,
		OrderInRow:  p.master.CurTrigger,
		TargetPIRef: target,
		TargetRow:   p.pendingJumpTargetRow,
		Counter:     p.pendingJumpCounter,
	}
	p.master.ArmJump(jc)
	fired, _ := p.master.FireJump(jc.SourcePIRef, jc.SourceRow, jc.ChNum, jc.OrderInRow)

	p.master.DoJump = true
	p.master.JumpTargetPIRef = fired.TargetPIRef
	p.master.JumpTargetRow = fired.TargetRow

	p.pendingJumpCounter = 0
	p.pendingJumpTargetPIRef = module.PatternInstRef{}
	p.pendingJumpTargetRow = tstamp.Zero

	return event.Null(), nil
}
