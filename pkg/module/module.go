// Package module implements the in-memory composition data model: patterns
// of timestamped trigger events, the subsong/track/system order hierarchy,
// and the position type that locates playback within it. Parsing a module
// from a file format is explicitly out of scope here (see pkg/format for
// the demo binary's own minimal loader); this package only models the
// decoded result.
package module

import "github.com/kunquat/kunquat-go/pkg/tstamp"

// MaxColumns is the number of note columns a pattern may hold, plus one
// implicit global column addressed separately.
const MaxColumns = 64

// Trigger is a symbolic event with a deferred argument expression.
type Trigger struct {
	EventName string
	Expr      string
}

// TriggerRow is the set of triggers at one Tstamp within a column.
type TriggerRow struct {
	Pos      tstamp.Tstamp
	Triggers []Trigger
}

// Column holds a time-ordered sequence of trigger rows.
type Column struct {
	Rows []TriggerRow
}

// Insert adds a trigger at pos, creating a new row if needed, keeping Rows
// sorted by Pos.
func (c *Column) Insert(pos tstamp.Tstamp, t Trigger) {
	for i := range c.Rows {
		switch tstamp.Compare(c.Rows[i].Pos, pos) {
		case 0:
			c.Rows[i].Triggers = append(c.Rows[i].Triggers, t)
			return
		case 1:
			row := TriggerRow{Pos: pos, Triggers: []Trigger{t}}
			c.Rows = append(c.Rows, TriggerRow{})
			copy(c.Rows[i+1:], c.Rows[i:])
			c.Rows[i] = row
			return
		}
	}
	c.Rows = append(c.Rows, TriggerRow{Pos: pos, Triggers: []Trigger{t}})
}

// RowAt returns the row exactly at pos, if any.
func (c *Column) RowAt(pos tstamp.Tstamp) (*TriggerRow, bool) {
	for i := range c.Rows {
		if tstamp.Compare(c.Rows[i].Pos, pos) == 0 {
			return &c.Rows[i], true
		}
	}
	return nil, false
}

// NextRowAfter returns the first row at or after pos.
func (c *Column) NextRowAfter(pos tstamp.Tstamp) (*TriggerRow, bool) {
	for i := range c.Rows {
		if !tstamp.Less(c.Rows[i].Pos, pos) {
			return &c.Rows[i], true
		}
	}
	return nil, false
}

// NextRowStrictlyAfter returns the first row whose position is strictly
// later than pos, skipping any row sitting exactly at pos.
func (c *Column) NextRowStrictlyAfter(pos tstamp.Tstamp) (*TriggerRow, bool) {
	for i := range c.Rows {
		if tstamp.Less(pos, c.Rows[i].Pos) {
			return &c.Rows[i], true
		}
	}
	return nil, false
}

// Pattern owns up to MaxColumns note columns plus one global column, and a
// length expressed in musical time.
type Pattern struct {
	Length  tstamp.Tstamp
	Columns [MaxColumns]Column
	Global  Column
}

// NewPattern creates an empty pattern of the given length.
func NewPattern(length tstamp.Tstamp) *Pattern {
	return &Pattern{Length: length}
}

// PatternInstRef names one concrete use of a shared pattern body.
type PatternInstRef struct {
	Pattern  int
	Instance int
}

// Position locates playback within the composition hierarchy.
type Position struct {
	Track   int
	System  int
	Pat     tstamp.Tstamp
	PIRef   PatternInstRef
}

// OrderEntry is one entry of a subsong's order list: a pattern instance
// played at a particular (track, system) slot.
type OrderEntry struct {
	PIRef PatternInstRef
}

// Subsong is one entry in the module's track list: an order list of pattern
// instances, organized as systems within tracks.
type Subsong struct {
	// Tracks[track][system] is the order entry played at that slot.
	Tracks [][]OrderEntry
}

// Module is the whole composition: its shared pattern bodies, the subsongs
// that sequence them, per-channel defaults, and channel count.
type Module struct {
	NumChannels     int
	Patterns        []*Pattern
	Subsongs        []Subsong
	ChannelDefaults []map[string]float64
}

// New creates an empty module for the given channel count.
func New(numChannels int) *Module {
	m := &Module{
		NumChannels:     numChannels,
		ChannelDefaults: make([]map[string]float64, numChannels),
	}
	for i := range m.ChannelDefaults {
		m.ChannelDefaults[i] = map[string]float64{}
	}
	return m
}

// PatternAt resolves a PatternInstRef to its shared Pattern body.
func (m *Module) PatternAt(ref PatternInstRef) (*Pattern, bool) {
	if ref.Pattern < 0 || ref.Pattern >= len(m.Patterns) {
		return nil, false
	}
	p := m.Patterns[ref.Pattern]
	if p == nil {
		return nil, false
	}
	return p, true
}

// OrderEntryAt resolves (track, system) within a subsong to its order
// entry.
func (m *Module) OrderEntryAt(subsong, track, system int) (OrderEntry, bool) {
	if subsong < 0 || subsong >= len(m.Subsongs) {
		return OrderEntry{}, false
	}
	ss := m.Subsongs[subsong]
	if track < 0 || track >= len(ss.Tracks) {
		return OrderEntry{}, false
	}
	sys := ss.Tracks[track]
	if system < 0 || system >= len(sys) {
		return OrderEntry{}, false
	}
	return sys[system], true
}

// TrackCount returns the number of tracks in a subsong.
func (m *Module) TrackCount(subsong int) int {
	if subsong < 0 || subsong >= len(m.Subsongs) {
		return 0
	}
	return len(m.Subsongs[subsong].Tracks)
}

// SystemCount returns the number of systems within one track of a subsong.
func (m *Module) SystemCount(subsong, track int) int {
	if subsong < 0 || subsong >= len(m.Subsongs) {
		return 0
	}
	ss := m.Subsongs[subsong]
	if track < 0 || track >= len(ss.Tracks) {
		return 0
	}
	return len(ss.Tracks[track])
}
