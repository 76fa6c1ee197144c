package player

import (
	"github.com/kunquat/kunquat-go/pkg/channel"
	"github.com/kunquat/kunquat-go/pkg/device"
	"github.com/kunquat/kunquat-go/pkg/event"
	"github.com/kunquat/kunquat-go/pkg/signalplan"
	"github.com/kunquat/kunquat-go/pkg/voice"
	"github.com/kunquat/kunquat-go/pkg/voicework"
	"github.com/kunquat/kunquat-go/pkg/workbuf"
)

// processVoices renders frameCount frames of every live voice group into
// the master buffers: each worker thread advances its own round-robin
// share of channels' foreground groups, then drains background groups
// from the shared synced cursor until none remain, after which thread 0's
// ports hold the additive mix (MixThreadStates) that feeds the mixed
// signal plan.
func (p *Player) processVoices(frameCount int) {
	p.voicePool.StartGroupIteration()
	defer p.voicePool.FinishGroupIteration()

	for _, ts := range p.threadStates {
		for i := 0; i < ts.PortCount(); i++ {
			ts.Port(i).Clear(0, frameCount)
		}
	}
	for _, ts := range p.testThreadStates {
		for i := 0; i < ts.PortCount(); i++ {
			ts.Port(i).Clear(0, frameCount)
		}
	}
	for _, s := range p.voiceScratch {
		s.InvalidateAll()
	}

	p.pool.Run(func(threadID int) {
		p.processThread(threadID, frameCount)
	})

	device.MixThreadStates(p.threadStates)
	device.MixThreadStates(p.testThreadStates)
	p.voicePool.CleanUpFGVoices()
	p.voicePool.DrainEndOfRender()

	master0 := &p.threadStates[0].State
	for i := 0; i < p.masterBuffers.Len() && i < master0.PortCount(); i++ {
		dst := p.masterBuffers.At(i)
		dst.Clear(0, frameCount)
		src := master0.Port(i)
		if src.IsValid() {
			dst.Mix(src, 0, frameCount)
		}
	}

	if p.mixedPlan != nil {
		ctx := &signalplan.ProcessContext{
			Device:          p.threadStates[0],
			Buffers:         p.masterBuffers,
			FrameOffset:     0,
			FrameCount:      frameCount,
			TotalFrameCount: frameCount,
			Tempo:           p.master.Tempo,
		}
		p.mixedPlan.ResetLevelCursors()
		p.mixedPlan.ExecuteAllTasks(ctx)
	}

	p.mixTestOutput(frameCount)
}

// processThread is the body one worker (or the calling goroutine, in
// single-thread mode) runs for one render block: its static share of
// channels' foreground groups, then as many background groups as it can
// claim from the shared cursor.
func (p *Player) processThread(threadID int, frameCount int) {
	ts := p.threadStates[threadID]
	scratch := p.voiceScratch[threadID]

	for _, ch := range voicework.ChannelsForThread(p.threadCount, threadID, len(p.channels)) {
		p.processChannel(ch, ts, scratch, frameCount)
	}

	for {
		g := p.voicePool.GetNextBGGroupSynced()
		if g == nil {
			break
		}
		p.executeGroup(g, ts, scratch, frameCount)
	}
}

// processChannel advances one channel's carried controls, then drains its
// queued local events (§4.8's fire()-sourced events, each already stamped
// with the in-block frame offset at which it takes effect) and renders the
// channel's foreground voice group in the spans those offsets cut the
// block into, dispatching each event exactly at the boundary between the
// span that precedes it and the one that follows — matching §4.10's "process
// at the boundary between sub-slice [..., k-1] and [k, ...]" rather than
// collapsing every local event onto one render pass over the whole block.
func (p *Player) processChannel(ch int, ts *device.ThreadState, scratch *workbuf.Set, frameCount int) {
	c := p.channels[ch]
	c.AdvanceControls(frameCount)

	events := c.LocalEvents
	c.ClearLocalEvents()

	cursor := 0
	for _, lev := range events {
		offset := lev.FrameOffset
		if offset < cursor {
			offset = cursor
		}
		if offset > frameCount {
			offset = frameCount
		}

		p.renderChannelSpan(ch, ts, scratch, cursor, offset, frameCount)
		cursor = offset

		p.dispatchLocalEvent(ch, offset, lev)
	}

	p.renderChannelSpan(ch, ts, scratch, cursor, frameCount, frameCount)
}

// dispatchLocalEvent fires one drained local event at its frame offset,
// recording the offset in p.localFrameOffset so handleNoteOn/handleNoteOff
// can stamp a group they background mid-span with it.
func (p *Player) dispatchLocalEvent(ch, offset int, lev channel.LocalEvent) {
	arg, _ := lev.Arg.(event.Value)
	p.localFrameOffset = offset
	ctx := &event.HandlerContext{Channels: p.channels, Master: p.master, Ch: ch}
	if err := event.Dispatch(p.table, p.eval, ctx, lev.EventType, arg, false, p.emit, &p.channels[ch].RandState); err != nil {
		p.emitError(ch, err)
	}
	p.localFrameOffset = 0
}

// renderChannelSpan renders channel ch's current foreground voice group
// (if any) over the block-relative span [start, end), a no-op if the span
// is empty or the channel has no live foreground group.
func (p *Player) renderChannelSpan(ch int, ts *device.ThreadState, scratch *workbuf.Set, start, end, frameCount int) {
	if end <= start {
		return
	}
	c := p.channels[ch]
	if c.FGGroupID == 0 {
		return
	}
	g := p.voicePool.GetFGGroup(ch, c.FGGroupID)
	if g == nil {
		return
	}
	p.executeGroupMixedSpan(g, ts, scratch, start, end, frameCount, !c.Muted)
}

// executeGroup runs one voice group's signal plan for this block and mixes
// its output into the thread's ports unless the group's channel is muted.
func (p *Player) executeGroup(g *voice.Group, ts *device.ThreadState, scratch *workbuf.Set, frameCount int) {
	mix := g.Channel < 0 || g.Channel >= len(p.channels) || !p.channels[g.Channel].Muted
	p.executeGroupMixed(g, ts, scratch, frameCount, mix)
}

// executeGroupMixed runs a group over the whole block; it is used for
// background groups, which are never split by local events. Foreground
// groups go through renderChannelSpan and executeGroupMixedSpan.
func (p *Player) executeGroupMixed(g *voice.Group, ts *device.ThreadState, scratch *workbuf.Set, frameCount int, mix bool) {
	p.executeGroupMixedSpan(g, ts, scratch, 0, frameCount, frameCount, mix)
}

// executeGroupMixedSpan is executeGroupMixed generalized to an arbitrary
// block-relative span [start, end), so a channel's local events can split
// one processChannel call's frameCount into several independently rendered
// pieces. A muted channel's voices still run their full signal plan (DSP
// state, e.g. envelopes, keeps evolving exactly as if audible) and still
// deactivate normally; only the final additive mix into the output ports
// is skipped. A group that just entered the background mid-span (its
// FrameOffset was set by the triggering note_on/note_off before this call)
// only renders from that offset onward, clamped into [start, end); every
// later call starts it fresh. A group whose plan reports silence before
// end is deactivated, which CleanUpFGVoices/DrainEndOfRender will reclaim
// at the end of this processVoices call. Test-output groups (§4.9's
// additive-mix-to-test-buffers routing) mix into the calling thread's
// test-output thread state instead of its normal one.
func (p *Player) executeGroupMixedSpan(g *voice.Group, ts *device.ThreadState, scratch *workbuf.Set, start, end, frameCount int, mix bool) {
	instIdx := p.groupInstrument[g.ID]
	inst, ok := p.instruments[instIdx]
	if !ok || inst.Plan == nil || len(inst.Plan.Nodes) == 0 {
		for _, v := range g.Voices {
			v.Deactivate()
		}
		return
	}

	offset := start
	if g.FrameOffset > offset {
		offset = g.FrameOffset
	}
	if offset > end {
		offset = end
	}

	ctx := &signalplan.ProcessContext{
		Device:          ts,
		Group:           g,
		Buffers:         scratch,
		FrameOffset:     offset,
		FrameCount:      end - offset,
		TotalFrameCount: frameCount,
		Tempo:           p.master.Tempo,
	}
	stop := inst.Plan.Execute(ctx, true)
	g.FrameOffset = 0

	if stop < end {
		for _, v := range g.Voices {
			v.Deactivate()
		}
	}

	if !mix {
		return
	}

	dest := ts
	if g.IsTestOutput() && ts.ThreadID < len(p.testThreadStates) {
		dest = p.testThreadStates[ts.ThreadID]
	}

	for i := 0; i < dest.PortCount() && i < scratch.Len(); i++ {
		src := scratch.At(i)
		if !src.IsValid() {
			continue
		}
		dest.Port(i).Mix(src, offset, end)
		dest.Port(i).SetValid(true)
	}
}
