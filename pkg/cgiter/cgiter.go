// Package cgiter implements the per-channel cursor ("channel-grid iterator")
// that advances one channel's position through patterns, the track/system
// order of a subsong, and pattern-instance boundaries.
package cgiter

import (
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// Cgiter is one channel's cursor over the composition.
type Cgiter struct {
	Mod     *module.Module
	Channel int // -1 selects the pattern's global column

	Subsong int // index into Mod.Subsongs; negative: no order list, the cursor finishes at the end of its pattern
	Pos     module.Position

	// PatternPlayback restricts movement to looping within a single
	// pattern instance instead of following the order list.
	PatternPlayback bool

	returnedStatus bool
	finished       bool
}

// New creates a cursor for the given channel (-1 for the global column)
// over mod, initially unpositioned; call Reset before use.
func New(mod *module.Module, channel int) *Cgiter {
	return &Cgiter{Mod: mod, Channel: channel}
}

// Reset jumps to pos and clears returned-row status.
func (c *Cgiter) Reset(pos module.Position) {
	c.Pos = pos
	c.returnedStatus = false
	c.finished = false
}

// ClearReturnedStatus makes the current row eligible for GetTriggerRow
// again; used when the event buffer fills mid-row and processing must
// resume from the same row on the next call.
func (c *Cgiter) ClearReturnedStatus() { c.returnedStatus = false }

func (c *Cgiter) column(pat *module.Pattern) *module.Column {
	if c.Channel < 0 {
		return &pat.Global
	}
	if c.Channel >= module.MaxColumns {
		return nil
	}
	return &pat.Columns[c.Channel]
}

// currentPattern resolves the pattern at the cursor's current position.
func (c *Cgiter) currentPattern() (*module.Pattern, bool) {
	if c.Mod == nil {
		return nil, false
	}
	return c.Mod.PatternAt(c.Pos.PIRef)
}

// GetTriggerRow returns the row at the current position if the cursor sits
// exactly on a trigger row that has not yet been returned; otherwise it
// returns (nil, false). A returned row will not be returned again until
// ClearReturnedStatus or Move changes the position.
func (c *Cgiter) GetTriggerRow() (*module.TriggerRow, bool) {
	if c.returnedStatus {
		return nil, false
	}
	pat, ok := c.currentPattern()
	if !ok {
		return nil, false
	}
	col := c.column(pat)
	if col == nil {
		return nil, false
	}
	row, ok := col.RowAt(c.Pos.Pat)
	if !ok {
		return nil, false
	}
	c.returnedStatus = true
	return row, true
}

// Peek reduces *dist to the musical time remaining to the next trigger row
// or to end-of-pattern (whichever is closer) and reports whether a next
// row exists within the shortened distance.
func (c *Cgiter) Peek(dist *tstamp.Tstamp) bool {
	pat, ok := c.currentPattern()
	if !ok {
		return false
	}
	col := c.column(pat)
	if col == nil {
		return false
	}

	toEnd := tstamp.Sub(pat.Length, c.Pos.Pat)
	if tstamp.Less(toEnd, *dist) {
		*dist = toEnd
	}

	row, found := col.NextRowStrictlyAfter(c.Pos.Pat)
	if !found {
		return false
	}
	toRow := tstamp.Sub(row.Pos, c.Pos.Pat)
	if tstamp.Less(toRow, *dist) {
		*dist = toRow
		return true
	}
	return tstamp.Compare(toRow, *dist) == 0
}

// Move advances musical time by dist, crossing pattern/system/track
// boundaries according to the subsong's order list. In pattern-playback
// mode it loops within the current pattern instance instead.
func (c *Cgiter) Move(dist tstamp.Tstamp) {
	if c.finished {
		return
	}
	c.Pos.Pat = tstamp.Add(c.Pos.Pat, dist)
	c.returnedStatus = false

	pat, ok := c.currentPattern()
	if !ok {
		c.finished = true
		return
	}
	if tstamp.Less(c.Pos.Pat, pat.Length) {
		return
	}

	if c.PatternPlayback {
		c.Pos.Pat = tstamp.New(0, 0)
		return
	}

	c.advanceOrder()
}

// advanceOrder crosses to the next (track, system) slot in the subsong's
// order list, or marks the cursor finished when the list is exhausted.
func (c *Cgiter) advanceOrder() {
	c.Pos.Pat = tstamp.New(0, 0)

	if c.Subsong < 0 || c.Mod == nil {
		c.finished = true
		return
	}

	track := c.Pos.Track
	system := c.Pos.System + 1
	if system >= c.Mod.SystemCount(c.Subsong, track) {
		system = 0
		track++
	}
	if track >= c.Mod.TrackCount(c.Subsong) {
		c.finished = true
		return
	}

	entry, ok := c.Mod.OrderEntryAt(c.Subsong, track, system)
	if !ok {
		c.finished = true
		return
	}
	c.Pos.Track = track
	c.Pos.System = system
	c.Pos.PIRef = entry.PIRef
}

// HasFinished reports whether the cursor has advanced past the end of the
// module (or subsong) and is not in an infinite-play mode.
func (c *Cgiter) HasFinished() bool { return c.finished }
