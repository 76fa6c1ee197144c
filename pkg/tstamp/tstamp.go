// Package tstamp implements musical time as a (beats, remainder) pair and its
// conversion to and from audio frame counts.
package tstamp

import "math"

// BeatUnits is the number of remainder subdivisions per beat. A Tstamp's
// Rem field is always in [0, BeatUnits).
const BeatUnits int32 = 1 << 20

// Tstamp is a point in musical time, ordered lexicographically by
// (Beats, Rem).
type Tstamp struct {
	Beats int64
	Rem   int32
}

// Zero is the origin of musical time.
var Zero = Tstamp{}

// New builds a Tstamp, normalizing rem into [0, BeatUnits).
func New(beats int64, rem int32) Tstamp {
	return Tstamp{Beats: beats, Rem: rem}.normalize()
}

func (t Tstamp) normalize() Tstamp {
	for t.Rem < 0 {
		t.Rem += BeatUnits
		t.Beats--
	}
	for t.Rem >= BeatUnits {
		t.Rem -= BeatUnits
		t.Beats++
	}
	return t
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b Tstamp) int {
	switch {
	case a.Beats < b.Beats:
		return -1
	case a.Beats > b.Beats:
		return 1
	case a.Rem < b.Rem:
		return -1
	case a.Rem > b.Rem:
		return 1
	default:
		return 0
	}
}

// Less reports whether a comes strictly before b.
func Less(a, b Tstamp) bool { return Compare(a, b) < 0 }

// Add returns a + b.
func Add(a, b Tstamp) Tstamp {
	return New(a.Beats+b.Beats, a.Rem+b.Rem)
}

// Sub returns a - b.
func Sub(a, b Tstamp) Tstamp {
	return New(a.Beats-b.Beats, a.Rem-b.Rem)
}

// Min returns the lexicographically smaller of a and b.
func Min(a, b Tstamp) Tstamp {
	if Less(b, a) {
		return b
	}
	return a
}

// IsZero reports whether t is the zero Tstamp.
func (t Tstamp) IsZero() bool { return t.Beats == 0 && t.Rem == 0 }

// IsNegative reports whether t is strictly less than zero.
func (t Tstamp) IsNegative() bool { return t.Beats < 0 }

// Float returns t expressed as a number of beats.
func (t Tstamp) Float() float64 {
	return float64(t.Beats) + float64(t.Rem)/float64(BeatUnits)
}

// FromFloat builds a Tstamp from a number of beats, rounding the remainder
// down to the nearest subdivision.
func FromFloat(beats float64) Tstamp {
	whole := math.Floor(beats)
	frac := beats - whole
	return New(int64(whole), int32(frac*float64(BeatUnits)))
}

// ToFrames converts a Tstamp to an exact (fractional) frame count at the
// given tempo (beats per minute) and sample rate.
func ToFrames(t Tstamp, tempo, rate float64) float64 {
	if tempo <= 0 {
		return 0
	}
	secondsPerBeat := 60.0 / tempo
	return t.Float() * secondsPerBeat * rate
}

// FromFrames converts a frame count back to a Tstamp at the given tempo and
// sample rate.
func FromFrames(frames, tempo, rate float64) Tstamp {
	if tempo <= 0 || rate <= 0 {
		return Zero
	}
	secondsPerBeat := 60.0 / tempo
	beats := frames / (secondsPerBeat * rate)
	return FromFloat(beats)
}
