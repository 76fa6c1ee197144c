package voice

import (
	"sync"
	"testing"
)

func TestAllocateGroupFailsWhenExhausted(t *testing.T) {
	p := NewPool(2)
	g1, err := p.AllocateGroup(0, 2)
	if err != nil || g1 == nil {
		t.Fatalf("expected first allocation to succeed, err=%v", err)
	}
	g2, err := p.AllocateGroup(1, 1)
	if err == nil || g2 != nil {
		t.Fatalf("expected allocation to fail on exhaustion, got %+v err=%v", g2, err)
	}
	if p.ActiveVoiceCount() != 2 {
		t.Fatalf("failed allocation must not mutate pool state, active=%d", p.ActiveVoiceCount())
	}
}

func TestForegroundGroupsVisitedInIDOrder(t *testing.T) {
	p := NewPool(10)
	var ids []uint64
	for i := 0; i < 3; i++ {
		g, err := p.AllocateGroup(0, 1)
		if err != nil {
			t.Fatalf("allocate: %v", err)
		}
		ids = append(ids, g.ID)
	}

	it := p.StartFGChIteration(0)
	var seen []uint64
	for {
		g := p.GetNextFGGroup(it)
		if g == nil {
			break
		}
		seen = append(seen, g.ID)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(seen))
	}
	for i := range ids {
		if ids[i] != seen[i] {
			t.Fatalf("groups not visited in id order: %v vs %v", ids, seen)
		}
	}
}

func TestMoveToBackgroundThenDrain(t *testing.T) {
	p := NewPool(4)
	g, _ := p.AllocateGroup(0, 2)
	p.MoveToBackground(0, 0, true)

	it := p.StartFGChIteration(0)
	if p.GetNextFGGroup(it) != nil {
		t.Fatalf("expected no foreground groups after MoveToBackground")
	}

	p.StartGroupIteration()
	bg := p.GetNextBGGroup()
	if bg == nil || bg.ID != g.ID {
		t.Fatalf("expected to find the moved group in background iteration")
	}
	if p.GetNextBGGroup() != nil {
		t.Fatalf("each background group must be visited exactly once per bracket")
	}

	for _, v := range g.Voices {
		v.Deactivate()
	}
	p.DrainEndOfRender()
	if p.ActiveVoiceCount() != 0 {
		t.Fatalf("expected drained group's voices freed, active=%d", p.ActiveVoiceCount())
	}
}

func TestGetNextBGGroupSyncedVisitsEachGroupOnce(t *testing.T) {
	p := NewPool(20)
	const n = 8
	for i := 0; i < n; i++ {
		p.AllocateGroup(i, 1)
		p.MoveToBackground(i, 0, true)
	}
	p.StartGroupIteration()

	seen := make(map[uint64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				g := p.GetNextBGGroupSynced()
				if g == nil {
					return
				}
				mu.Lock()
				if seen[g.ID] {
					t.Errorf("group %d visited twice", g.ID)
				}
				seen[g.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != n {
		t.Fatalf("expected %d groups visited, got %d", n, len(seen))
	}
}
