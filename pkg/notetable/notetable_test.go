package notetable

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPitchOfUsesRetunedRatio(t *testing.T) {
	nt := New(440.0)
	nt.SetEntry(0, 0, Entry{Ratio: 1.0, RetuneCents: 0})
	nt.SetEntry(0, 9, Entry{Ratio: 2.0, RetuneCents: 100}) // an octave up, retuned +100c

	gotPlain := nt.Ratio(9, 0, CentralOctave)
	if gotPlain != 2.0 {
		t.Fatalf("Ratio = %v, want 2.0", gotPlain)
	}

	wantRetuned := 2.0 * math.Pow(2, 100.0/1200.0)
	gotRetuned := nt.RatioRetuned(9, 0, CentralOctave)
	if !almostEqual(gotRetuned, wantRetuned) {
		t.Fatalf("RatioRetuned = %v, want %v", gotRetuned, wantRetuned)
	}

	pitch := nt.PitchOf(9, 0, CentralOctave)
	if !almostEqual(pitch, 440.0*wantRetuned) {
		t.Fatalf("PitchOf should use the retuned ratio, got %v", pitch)
	}
}

func TestOctaveShift(t *testing.T) {
	nt := New(440.0)
	nt.SetEntry(0, 0, Entry{Ratio: 1.0})
	below := nt.Ratio(0, 0, CentralOctave-1)
	above := nt.Ratio(0, 0, CentralOctave+1)
	if !almostEqual(below*4, above) {
		t.Fatalf("two octaves apart should differ by 4x, got below=%v above=%v", below, above)
	}
}
