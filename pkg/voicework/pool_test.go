package voicework

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRunExecutesEveryThread(t *testing.T) {
	p := NewPool(4)
	p.Start()
	defer p.Stop()

	var seen [4]int32
	p.Run(func(threadID int) {
		atomic.AddInt32(&seen[threadID], 1)
	})

	for i, v := range seen {
		if v != 1 {
			t.Fatalf("expected thread %d to run exactly once, got %d", i, v)
		}
	}
}

func TestRunBlocksUntilAllThreadsFinish(t *testing.T) {
	p := NewPool(3)
	p.Start()
	defer p.Stop()

	var done int32
	p.Run(func(threadID int) {
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&done, 1)
	})

	if done != 3 {
		t.Fatalf("expected Run to block until all 3 workers finished, got %d", done)
	}
}

func TestRunCanBeCalledRepeatedly(t *testing.T) {
	p := NewPool(2)
	p.Start()
	defer p.Stop()

	for round := 0; round < 5; round++ {
		var count int32
		p.Run(func(threadID int) { atomic.AddInt32(&count, 1) })
		if count != 2 {
			t.Fatalf("round %d: expected 2 completions, got %d", round, count)
		}
	}
}

func TestSingleThreadPoolRunsInline(t *testing.T) {
	p := NewPool(1)
	p.Start()
	defer p.Stop()

	var ran bool
	var threadID int
	p.Run(func(id int) { ran = true; threadID = id })

	if !ran || threadID != 0 {
		t.Fatalf("expected inline execution with threadID 0, got ran=%v id=%d", ran, threadID)
	}
}

func TestStopJoinsWorkers(t *testing.T) {
	p := NewPool(4)
	p.Start()
	p.Run(func(threadID int) {})
	p.Stop() // must return; if workers don't join this test hangs
}

func TestEarlyExitJoinsWithoutRunningTask(t *testing.T) {
	p := NewPool(4)
	p.Start()
	p.EarlyExit() // must return promptly without any Run call
}

func TestChannelsForThreadPartitionsRoundRobin(t *testing.T) {
	got := ChannelsForThread(3, 1, 10)
	want := []int{1, 4, 7}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
