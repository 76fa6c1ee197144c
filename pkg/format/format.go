// Package format implements the demo binary's own minimal song description
// loader: a YAML document decoded straight into a module.Module plus the
// small amount of extra per-instrument/per-channel configuration the player
// itself doesn't model (waveform, envelope shape, channel-to-instrument
// routing). Parsing a "real" module file format is out of scope; this is
// just enough to drive cmd/kqplay from a checked-in song file.
package format

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kunquat/kunquat-go/pkg/kqerr"
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// TriggerDoc is one trigger within a column, positioned in beats.
type TriggerDoc struct {
	Pos   float64 `yaml:"pos"`
	Event string  `yaml:"event"`
	Arg   string  `yaml:"arg"`
}

// PatternDoc is one shared pattern body: a length in beats and, per
// column, a flat list of triggers (sorted by the loader, not required to
// already be sorted in the file).
type PatternDoc struct {
	Length  float64        `yaml:"length"`
	Columns [][]TriggerDoc `yaml:"columns"`
	Global  []TriggerDoc   `yaml:"global"`
}

// InstrumentDoc names an instrument's waveform and envelope shape for
// cmd/kqplay to build a voiceproc.Oscillator/Envelope pair from. Times are
// in seconds; the binary converts to frames once it knows the audio rate.
type InstrumentDoc struct {
	Name         string  `yaml:"name"`
	Wave         string  `yaml:"wave"` // triangle|sawtooth|square|sawbig|noise
	Duty         float64 `yaml:"duty"`
	RefPitch     float64 `yaml:"ref_pitch"`
	AttackSecs   float64 `yaml:"attack"`
	DecaySecs    float64 `yaml:"decay"`
	SustainLevel float64 `yaml:"sustain"`
	ReleaseSecs  float64 `yaml:"release"`
}

// OrderDoc is one entry of the single subsong's single track: which
// pattern body plays at that slot.
type OrderDoc struct {
	Pattern int `yaml:"pattern"`
}

// SongDoc is the whole decoded file.
type SongDoc struct {
	Channels    int             `yaml:"channels"`
	Instruments []InstrumentDoc `yaml:"instruments"`
	// ChannelInstrument[ch] is the index into Instruments that channel ch
	// is routed to at start. Channels beyond the length of this list (or
	// with a negative/out-of-range entry) are left unassigned.
	ChannelInstrument []int        `yaml:"channel_instrument"`
	Patterns          []PatternDoc `yaml:"patterns"`
	Order             []OrderDoc   `yaml:"order"`
}

// Song is the decoded document plus its realization as a module.Module,
// ready to be passed to player.NewPlayer.
type Song struct {
	Doc         SongDoc
	Module      *module.Module
	Instruments []InstrumentDoc
	// ChannelInstrument mirrors SongDoc.ChannelInstrument, normalized to
	// exactly Module.NumChannels entries (-1 where unassigned).
	ChannelInstrument []int
}

// Load decodes a song document from r and builds its module.Module.
func Load(r io.Reader) (*Song, error) {
	var doc SongDoc
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, kqerr.Wrap(kqerr.KindFormat, "decoding song document", err)
	}
	return build(doc)
}

// LoadFile opens path and decodes it as a song document.
func LoadFile(path string) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kqerr.Wrap(kqerr.KindFormat, "opening song file", err)
	}
	defer f.Close()
	return Load(f)
}

func build(doc SongDoc) (*Song, error) {
	if doc.Channels <= 0 {
		return nil, kqerr.New(kqerr.KindFormat, "song must declare at least one channel")
	}

	mod := module.New(doc.Channels)

	mod.Patterns = make([]*module.Pattern, len(doc.Patterns))
	for i, pd := range doc.Patterns {
		if pd.Length <= 0 {
			return nil, kqerr.New(kqerr.KindFormat, "pattern length must be positive")
		}
		pat := module.NewPattern(tstamp.FromFloat(pd.Length))
		for ci, col := range pd.Columns {
			if ci >= module.MaxColumns {
				return nil, kqerr.New(kqerr.KindFormat, "pattern declares more columns than the engine supports")
			}
			for _, td := range col {
				pat.Columns[ci].Insert(tstamp.FromFloat(td.Pos), module.Trigger{
					EventName: td.Event,
					Expr:      td.Arg,
				})
			}
		}
		for _, td := range pd.Global {
			pat.Global.Insert(tstamp.FromFloat(td.Pos), module.Trigger{
				EventName: td.Event,
				Expr:      td.Arg,
			})
		}
		mod.Patterns[i] = pat
	}

	order := make([]module.OrderEntry, len(doc.Order))
	for i, od := range doc.Order {
		if od.Pattern < 0 || od.Pattern >= len(mod.Patterns) {
			return nil, kqerr.New(kqerr.KindFormat, "order entry references an undefined pattern")
		}
		order[i] = module.OrderEntry{PIRef: module.PatternInstRef{Pattern: od.Pattern}}
	}
	mod.Subsongs = []module.Subsong{{Tracks: [][]module.OrderEntry{order}}}

	chanInst := make([]int, doc.Channels)
	for i := range chanInst {
		chanInst[i] = -1
	}
	for i, inst := range doc.ChannelInstrument {
		if i >= doc.Channels {
			break
		}
		if inst >= 0 && inst < len(doc.Instruments) {
			chanInst[i] = inst
		}
	}

	return &Song{
		Doc:               doc,
		Module:            mod,
		Instruments:       doc.Instruments,
		ChannelInstrument: chanInst,
	}, nil
}
