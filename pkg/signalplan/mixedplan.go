package signalplan

// MixedPlan is a layered topological sort of the module's audio-unit
// graph. Layer 0 is the master output; higher-numbered layers are
// upstream.
type MixedPlan struct {
	Procs       []Processor
	NodeLayer   []int
	LayersNodes [][]int // LayersNodes[0] = sink(s), LayersNodes[max] = most upstream

	// levelCursor is the work-stealing cursor for ExecuteNextTask, reset by
	// ResetLevelCursors at the start of each render call.
	levelCursor []int
}

// GetLevelCount returns the number of layers.
func (p *MixedPlan) GetLevelCount() int { return len(p.LayersNodes) }

// ResetLevelCursors rearms ExecuteNextTask's per-level work-stealing
// cursors. Call once per render call before using ExecuteNextTask.
func (p *MixedPlan) ResetLevelCursors() {
	p.levelCursor = make([]int, len(p.LayersNodes))
}

// ExecuteNextTask executes the next not-yet-claimed node at the given
// level and reports whether a task was found. Levels must be driven
// most-upstream (GetLevelCount()-1) down to 0, since a level's nodes may
// read buffers a higher level wrote. Reserved for future multi-threaded
// mixed execution; single-threaded callers can just call ExecuteAllTasks.
func (p *MixedPlan) ExecuteNextTask(level int, ctx *ProcessContext) bool {
	if level < 0 || level >= len(p.LayersNodes) {
		return false
	}
	if p.levelCursor == nil {
		p.ResetLevelCursors()
	}
	nodes := p.LayersNodes[level]
	idx := p.levelCursor[level]
	if idx >= len(nodes) {
		return false
	}
	p.levelCursor[level]++
	p.Procs[nodes[idx]].Process(ctx)
	return true
}

// ExecuteAllTasks runs every node, most-upstream layer first, down to the
// master output at layer 0 — a single-threaded full execution of the plan.
func (p *MixedPlan) ExecuteAllTasks(ctx *ProcessContext) {
	for lvl := len(p.LayersNodes) - 1; lvl >= 0; lvl-- {
		for _, n := range p.LayersNodes[lvl] {
			p.Procs[n].Process(ctx)
		}
	}
}
