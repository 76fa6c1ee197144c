package cgiter

import (
	"testing"

	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

func twoPatternModule() *module.Module {
	m := module.New(2)
	patA := module.NewPattern(tstamp.New(4, 0))
	patA.Columns[0].Insert(tstamp.New(0, 0), module.Trigger{EventName: "note_on", Expr: "0"})
	patA.Columns[0].Insert(tstamp.New(2, 0), module.Trigger{EventName: "note_off"})
	patB := module.NewPattern(tstamp.New(2, 0))
	patB.Columns[0].Insert(tstamp.New(0, 0), module.Trigger{EventName: "note_on", Expr: "1"})
	m.Patterns = []*module.Pattern{patA, patB}
	m.Subsongs = []module.Subsong{
		{
			Tracks: [][]module.OrderEntry{
				{
					{PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}},
					{PIRef: module.PatternInstRef{Pattern: 1, Instance: 0}},
				},
			},
		},
	}
	return m
}

func TestGetTriggerRowReturnsOnceUntilCleared(t *testing.T) {
	m := twoPatternModule()
	c := New(m, 0)
	c.Subsong = 0
	c.Reset(module.Position{Track: 0, System: 0, PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}})

	row, ok := c.GetTriggerRow()
	if !ok || row.Triggers[0].EventName != "note_on" {
		t.Fatalf("expected note_on row, got %v ok=%v", row, ok)
	}

	if _, ok := c.GetTriggerRow(); ok {
		t.Fatalf("expected second call to return nothing before ClearReturnedStatus")
	}

	c.ClearReturnedStatus()
	if _, ok := c.GetTriggerRow(); !ok {
		t.Fatalf("expected row to be returnable again after ClearReturnedStatus")
	}
}

func TestPeekFindsNextRowWithinPattern(t *testing.T) {
	m := twoPatternModule()
	c := New(m, 0)
	c.Subsong = 0
	c.Reset(module.Position{Track: 0, System: 0, PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}})
	c.GetTriggerRow()

	dist := tstamp.New(10, 0)
	found := c.Peek(&dist)
	if !found {
		t.Fatalf("expected a next row to be found")
	}
	if tstamp.Compare(dist, tstamp.New(2, 0)) != 0 {
		t.Fatalf("expected dist shrunk to 2 beats, got %v", dist)
	}
}

func TestPeekClampsToEndOfPatternWhenNoMoreRows(t *testing.T) {
	m := twoPatternModule()
	c := New(m, 0)
	c.Subsong = 0
	c.Reset(module.Position{Track: 0, System: 0, PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}})
	c.Move(tstamp.New(2, 0)) // consume the note_off row

	dist := tstamp.New(10, 0)
	found := c.Peek(&dist)
	if found {
		t.Fatalf("expected no more rows in pattern A")
	}
	if tstamp.Compare(dist, tstamp.New(2, 0)) != 0 {
		t.Fatalf("expected dist clamped to remaining pattern length 2, got %v", dist)
	}
}

func TestMoveCrossesToNextOrderEntry(t *testing.T) {
	m := twoPatternModule()
	c := New(m, 0)
	c.Subsong = 0
	c.Reset(module.Position{Track: 0, System: 0, PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}})

	c.Move(tstamp.New(4, 0)) // exactly consumes pattern A's length

	if c.Pos.System != 1 {
		t.Fatalf("expected system advanced to 1, got %d", c.Pos.System)
	}
	if c.Pos.PIRef.Pattern != 1 {
		t.Fatalf("expected pattern B, got pattern %d", c.Pos.PIRef.Pattern)
	}
	if !c.Pos.Pat.IsZero() {
		t.Fatalf("expected pattern-local position reset to zero, got %v", c.Pos.Pat)
	}
}

func TestMoveFinishesPastEndOfOrderList(t *testing.T) {
	m := twoPatternModule()
	c := New(m, 0)
	c.Subsong = 0
	c.Reset(module.Position{Track: 0, System: 1, PIRef: module.PatternInstRef{Pattern: 1, Instance: 0}})

	c.Move(tstamp.New(2, 0))

	if !c.HasFinished() {
		t.Fatalf("expected cursor finished past end of order list")
	}
}

func TestPatternPlaybackLoopsWithinInstance(t *testing.T) {
	m := twoPatternModule()
	c := New(m, 0)
	c.Subsong = 0
	c.PatternPlayback = true
	c.Reset(module.Position{Track: 0, System: 0, PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}})

	c.Move(tstamp.New(4, 0))

	if c.HasFinished() {
		t.Fatalf("expected pattern-playback mode to loop, not finish")
	}
	if c.Pos.PIRef.Pattern != 0 {
		t.Fatalf("expected to stay on pattern 0, got %d", c.Pos.PIRef.Pattern)
	}
	if !c.Pos.Pat.IsZero() {
		t.Fatalf("expected looped position reset to zero, got %v", c.Pos.Pat)
	}
}

func TestGlobalColumnChannel(t *testing.T) {
	m := twoPatternModule()
	m.Patterns[0].Global.Insert(tstamp.New(0, 0), module.Trigger{EventName: "tempo", Expr: "100"})
	c := New(m, -1)
	c.Subsong = 0
	c.Reset(module.Position{Track: 0, System: 0, PIRef: module.PatternInstRef{Pattern: 0, Instance: 0}})

	row, ok := c.GetTriggerRow()
	if !ok || row.Triggers[0].EventName != "tempo" {
		t.Fatalf("expected global tempo row, got %v ok=%v", row, ok)
	}
}
