// Package event implements the event-name-to-effect dispatch table, the
// bind-expansion layer that turns one fired event into a sequence of
// others, and the small expression evaluator used to resolve a trigger's
// deferred argument expression.
package event

import (
	"fmt"

	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindTstamp
	KindString
	KindPIRef
	KindRealtime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTstamp:
		return "tstamp"
	case KindString:
		return "string"
	case KindPIRef:
		return "pattern_inst_ref"
	case KindRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// Value is the external event-protocol's typed argument: null, bool, int,
// float, Tstamp, string, a pattern-instance ref, or a realtime value.
type Value struct {
	Kind   Kind
	B      bool
	I      int64
	F      float64
	T      tstamp.Tstamp
	S      string
	PIRef  module.PatternInstRef
}

func Null() Value              { return Value{Kind: KindNull} }
func FromBool(b bool) Value    { return Value{Kind: KindBool, B: b} }
func FromInt(i int64) Value    { return Value{Kind: KindInt, I: i} }
func FromFloat(f float64) Value { return Value{Kind: KindFloat, F: f} }
func FromTstamp(t tstamp.Tstamp) Value { return Value{Kind: KindTstamp, T: t} }
func FromString(s string) Value { return Value{Kind: KindString, S: s} }
func FromPIRef(p module.PatternInstRef) Value { return Value{Kind: KindPIRef, PIRef: p} }
func FromRealtime(f float64) Value { return Value{Kind: KindRealtime, F: f} }

// AsFloat coerces int/float/bool/realtime values to a float64, for
// arithmetic and for handlers that accept either numeric representation.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindFloat, KindRealtime:
		return v.F, true
	case KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.B)
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat, KindRealtime:
		return fmt.Sprintf("%g", v.F)
	case KindTstamp:
		return fmt.Sprintf("[%d, %d]", v.T.Beats, v.T.Rem)
	case KindString:
		return v.S
	case KindPIRef:
		return fmt.Sprintf("[%d, %d]", v.PIRef.Pattern, v.PIRef.Instance)
	default:
		return "?"
	}
}
