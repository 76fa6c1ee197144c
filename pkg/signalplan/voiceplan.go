package signalplan

// VoicePlan is a per-instrument, topologically ordered list of processor
// nodes over the instrument's internal connection graph.
type VoicePlan struct {
	Nodes []Node
}

// NewVoicePlan wraps an already topologically sorted node list and runs it
// in the given order; the list is not sorted or checked for cycles here
// (Build in graph.go does that for a MixedPlan only).
func NewVoicePlan(nodes []Node) *VoicePlan {
	return &VoicePlan{Nodes: nodes}
}

// Execute processes every node in the group for [ctx.FrameOffset,
// ctx.FrameOffset+ctx.FrameCount) within a block of ctx.TotalFrameCount
// frames. It returns the first frame at which the whole group's output
// became silent, clamped to the sub-slice end ctx.FrameOffset+ctx.FrameCount
// (so a group still sounding at the end of the sub-slice returns that
// end). If enableMixing is true and the returned stop
// frame is before ctx.FrameOffset+ctx.FrameCount, the caller should
// schedule the voice group for deactivation at the end of the block.
func (p *VoicePlan) Execute(ctx *ProcessContext, enableMixing bool) (processStop int) {
	sliceEnd := ctx.FrameOffset + ctx.FrameCount
	groupStop := ctx.FrameOffset
	first := true

	for _, n := range p.Nodes {
		s := n.Proc.Process(ctx)
		if s > ctx.TotalFrameCount {
			s = ctx.TotalFrameCount
		}
		if s < ctx.FrameOffset {
			s = ctx.FrameOffset
		}
		// The group is silent only once every processor in it is: it
		// stays alive through whichever processor quiets down last.
		if first || s > groupStop {
			groupStop = s
		}
		first = false
	}

	if groupStop > sliceEnd {
		groupStop = sliceEnd
	}
	_ = enableMixing // deactivation scheduling is the caller's responsibility
	return groupStop
}
