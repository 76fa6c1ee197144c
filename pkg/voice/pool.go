package voice

import (
	"sync"
	"sync/atomic"

	"github.com/kunquat/kunquat-go/pkg/kqerr"
)

// stateSizeLimit is the implementation ceiling on reserved per-voice DSP
// state; reserving past it is a configuration-time memory error.
const stateSizeLimit = 1 << 20

// Pool is a fixed-size bank of voice slots, allocated and iterated as
// voice groups.
type Pool struct {
	mu sync.Mutex

	voices []Voice
	free   []int // indices into voices that are Inactive

	stateSize   int
	workBufSize int

	nextGroupID uint64
	groups      map[uint64]*Group
	fgByChannel map[int][]*Group
	bgGroups    []*Group

	// iteration cursors
	bgCursor     int   // used by get_next_bg_group (single-threaded)
	bgCursorSync int32 // used by get_next_bg_group_synced (atomic)
}

// NewPool allocates a pool with voiceCount slots.
func NewPool(voiceCount int) *Pool {
	p := &Pool{
		voices:      make([]Voice, voiceCount),
		free:        make([]int, voiceCount),
		groups:      make(map[uint64]*Group),
		fgByChannel: make(map[int][]*Group),
		// Group id 0 is reserved as the "no group" sentinel used by
		// Channel.FGGroupID, so real groups are numbered from 1.
		nextGroupID: 1,
	}
	for i := range p.free {
		p.free[i] = voiceCount - 1 - i
		p.voices[i].slot = i
	}
	return p
}

// Capacity returns the total number of voice slots.
func (p *Pool) Capacity() int { return len(p.voices) }

// ReserveStateSpace reserves per-voice DSP state size; monotonic, only
// grows. Fails if size exceeds the implementation limit.
func (p *Pool) ReserveStateSpace(size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if size > stateSizeLimit {
		return kqerr.New(kqerr.KindMemory, "voice DSP state size exceeds implementation limit")
	}
	if size > p.stateSize {
		p.stateSize = size
	}
	return nil
}

// ReserveWorkBufferSpace reserves per-voice audio scratch space; monotonic.
func (p *Pool) ReserveWorkBufferSpace(size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if size > p.workBufSize {
		p.workBufSize = size
	}
	return nil
}

// AllocateGroup allocates a new voice group of numProcs voices for channel
// ch. On insufficient free slots it fails without mutating pool state (the
// caller's triggering event should proceed without audio effect).
func (p *Pool) AllocateGroup(ch, numProcs int) (*Group, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) < numProcs {
		return nil, kqerr.New(kqerr.KindResource, "no free voice slots for new group")
	}

	id := p.nextGroupID
	p.nextGroupID++

	g := &Group{ID: id, Channel: ch}
	for i := 0; i < numProcs; i++ {
		idx := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		v := &p.voices[idx]
		*v = Voice{
			Channel:   ch,
			GroupID:   id,
			ProcIndex: i,
			State:     Foreground,
			DSPState:  make([]byte, p.stateSize),
			slot:      idx,
		}
		g.Voices = append(g.Voices, v)
	}

	p.groups[id] = g
	p.fgByChannel[ch] = append(p.fgByChannel[ch], g)
	return g, nil
}

// FGIter is a cursor over one channel's foreground groups, in group-id
// order (groups are always appended in allocation order, i.e. id order).
type FGIter struct {
	groups []*Group
	idx    int
}

// StartFGChIteration begins an iteration over channel ch's foreground
// groups.
func (p *Pool) StartFGChIteration(ch int) *FGIter {
	p.mu.Lock()
	defer p.mu.Unlock()
	groups := make([]*Group, len(p.fgByChannel[ch]))
	copy(groups, p.fgByChannel[ch])
	return &FGIter{groups: groups}
}

// GetNextFGGroup returns the next foreground group in the iteration, or nil
// when exhausted.
func (p *Pool) GetNextFGGroup(it *FGIter) *Group {
	if it.idx >= len(it.groups) {
		return nil
	}
	g := it.groups[it.idx]
	it.idx++
	return g
}

// GetFGGroup looks up a specific foreground group of channel ch by id.
func (p *Pool) GetFGGroup(ch int, groupID uint64) *Group {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.fgByChannel[ch] {
		if g.ID == groupID {
			return g
		}
	}
	return nil
}

// MoveToBackground moves every foreground group of ch other than keepID
// (pass 0 with keepNone=true to move them all) into the background set.
func (p *Pool) MoveToBackground(ch int, keepID uint64, keepNone bool) {
	p.MoveToBackgroundAt(ch, keepID, keepNone, 0)
}

// MoveToBackgroundAt is MoveToBackground with an explicit intra-block frame
// offset: each moved group's FrameOffset is set to frameOffset, so that if
// the background sweep for this same render call still reaches it, it
// renders only from frameOffset onward rather than re-rendering audio the
// group already produced while it was still foreground.
func (p *Pool) MoveToBackgroundAt(ch int, keepID uint64, keepNone bool, frameOffset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.fgByChannel[ch][:0]
	for _, g := range p.fgByChannel[ch] {
		if !keepNone && g.ID == keepID {
			kept = append(kept, g)
			continue
		}
		g.background = true
		g.FrameOffset = frameOffset
		p.bgGroups = append(p.bgGroups, g)
	}
	p.fgByChannel[ch] = kept
}

// StartGroupIteration resets both background iteration cursors; brackets a
// thread-coordinated iteration per §4.2.
func (p *Pool) StartGroupIteration() {
	p.mu.Lock()
	p.bgCursor = 0
	p.mu.Unlock()
	atomic.StoreInt32(&p.bgCursorSync, 0)
}

// FinishGroupIteration closes a bracketed iteration. Present for symmetry
// with StartGroupIteration; no state needs releasing beyond the cursors
// StartGroupIteration already owns.
func (p *Pool) FinishGroupIteration() {}

// GetNextBGGroup returns the next background group for single-threaded
// iteration. Each group is visited exactly once per bracket.
func (p *Pool) GetNextBGGroup() *Group {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bgCursor >= len(p.bgGroups) {
		return nil
	}
	g := p.bgGroups[p.bgCursor]
	p.bgCursor++
	return g
}

// GetNextBGGroupSynced atomically dequeues the next unclaimed background
// group; safe for concurrent callers from multiple worker threads.
func (p *Pool) GetNextBGGroupSynced() *Group {
	for {
		i := atomic.AddInt32(&p.bgCursorSync, 1) - 1
		p.mu.Lock()
		n := len(p.bgGroups)
		var g *Group
		if int(i) < n {
			g = p.bgGroups[i]
		}
		p.mu.Unlock()
		if int(i) >= n {
			return nil
		}
		return g
	}
}

// CleanUpFGVoices releases foreground slots whose voices have deactivated,
// across all channels.
func (p *Pool) CleanUpFGVoices() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch, groups := range p.fgByChannel {
		kept := groups[:0]
		for _, g := range groups {
			if g.AllDeactivated() {
				p.releaseGroupLocked(g)
				continue
			}
			kept = append(kept, g)
		}
		p.fgByChannel[ch] = kept
	}
}

// DrainEndOfRender releases every background group that has fully
// deactivated, returning its voices to the pool. Called at the end of each
// render call.
func (p *Pool) DrainEndOfRender() {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.bgGroups[:0]
	for _, g := range p.bgGroups {
		if g.AllDeactivated() {
			p.releaseGroupLocked(g)
			continue
		}
		kept = append(kept, g)
	}
	p.bgGroups = kept
}

func (p *Pool) releaseGroupLocked(g *Group) {
	for _, v := range g.Voices {
		idx := v.slot
		*v = Voice{slot: idx}
		p.free = append(p.free, idx)
	}
	delete(p.groups, g.ID)
}

// ActiveVoiceCount returns the number of live (non-inactive) voices.
func (p *Pool) ActiveVoiceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.voices) - len(p.free)
}

// ActiveGroupCount returns the number of live groups (foreground and
// background combined).
func (p *Pool) ActiveGroupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.groups)
}
