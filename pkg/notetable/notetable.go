// Package notetable implements the narrow microtonal pitch contract the
// player depends on: pitch_of(note, mod, octave). The note-table's own
// construction (tuning systems, retuning rules beyond simple per-entry
// offsets) is an external collaborator's concern; this package models only
// the query surface the player needs.
package notetable

import "math"

// CentralOctave is the octave number whose ratios are taken as written,
// matching the source's convention of an un-shifted middle octave.
const CentralOctave = 5

// Entry is one note's tuning within one modification (microtonal variant).
type Entry struct {
	// Ratio is the as-written ratio to the reference pitch.
	Ratio float64
	// RetuneCents is applied (in cents) on top of Ratio to produce the
	// retuned ratio; zero if the table carries no retuning for this entry.
	RetuneCents float64
}

// NoteTable resolves (note, mod, octave) triples to a frequency.
type NoteTable struct {
	refPitch float64
	// entries[mod][note]
	entries [][]Entry
}

// New creates a note table with the given reference pitch (Hz) at note 0,
// mod 0, CentralOctave.
func New(refPitch float64) *NoteTable {
	return &NoteTable{refPitch: refPitch}
}

// RefPitch returns the table's reference pitch in Hz.
func (nt *NoteTable) RefPitch() float64 { return nt.refPitch }

// SetEntry installs the tuning for one (mod, note) pair.
func (nt *NoteTable) SetEntry(mod, note int, e Entry) {
	for len(nt.entries) <= mod {
		nt.entries = append(nt.entries, nil)
	}
	row := nt.entries[mod]
	for len(row) <= note {
		row = append(row, Entry{Ratio: 1})
	}
	row[note] = e
	nt.entries[mod] = row
}

func (nt *NoteTable) entry(note, mod int) Entry {
	if mod < 0 || mod >= len(nt.entries) {
		return Entry{Ratio: 1}
	}
	row := nt.entries[mod]
	if note < 0 || note >= len(row) {
		return Entry{Ratio: 1}
	}
	return row[note]
}

func octaveShift(octave int) float64 {
	return math.Pow(2, float64(octave-CentralOctave))
}

// Ratio returns the as-written ratio (ignoring retuning) for (note, mod,
// octave), matching "ratio" in the source's Listener_note_table.
func (nt *NoteTable) Ratio(note, mod, octave int) float64 {
	return nt.entry(note, mod).Ratio * octaveShift(octave)
}

// RatioRetuned returns the retuned ratio for (note, mod, octave), matching
// "ratio_retuned" in the source.
func (nt *NoteTable) RatioRetuned(note, mod, octave int) float64 {
	e := nt.entry(note, mod)
	cents := e.RetuneCents
	retuned := e.Ratio * math.Pow(2, cents/1200.0)
	return retuned * octaveShift(octave)
}

// PitchOf is the pitch_of(note, mod, octave) contract: the frequency (Hz) a
// voice should actually sound at. Per the spec's resolution of the source's
// ambiguity between "ratio" and "ratio_retuned", the retuned ratio is
// authoritative here; callers that specifically need the as-written ratio
// should call Ratio directly.
func (nt *NoteTable) PitchOf(note, mod, octave int) float64 {
	return nt.refPitch * nt.RatioRetuned(note, mod, octave)
}
