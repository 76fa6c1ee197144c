// Package signalplan implements the two topologically-ordered execution
// plans described in the spec: the per-instrument voice signal plan, and
// the global mixed signal plan over the module's audio-unit routing graph.
// The individual DSP algorithms a plan executes (sine, sampler, filters,
// envelopes) are external collaborators; this package only orders and
// drives them through the narrow Processor contract.
package signalplan

import (
	"github.com/kunquat/kunquat-go/pkg/device"
	"github.com/kunquat/kunquat-go/pkg/voice"
	"github.com/kunquat/kunquat-go/pkg/workbuf"
)

// ProcessContext is the state a Processor sees for one sub-slice of one
// render block.
type ProcessContext struct {
	Device          *device.ThreadState
	Group           *voice.Group
	Buffers         *workbuf.Set
	FrameOffset     int
	FrameCount      int
	TotalFrameCount int
	Tempo           float64
}

// Processor is one node of a signal plan: a generator or effect algorithm.
// Process handles frames [ctx.FrameOffset, ctx.FrameOffset+ctx.FrameCount)
// and returns the first frame index (relative to the block, i.e. absolute
// within [0, TotalFrameCount)) at which its output became silent, or
// ctx.TotalFrameCount if it produced signal through the end of the block.
type Processor interface {
	Process(ctx *ProcessContext) (silentFrom int)
}

// Node is one processor in a topologically ordered plan.
type Node struct {
	Proc    Processor
	Inputs  []int
	Outputs []int
}
