package event

import (
	"testing"

	"github.com/kunquat/kunquat-go/pkg/channel"
	"github.com/kunquat/kunquat-go/pkg/master"
)

func TestEvaluatorArithmeticAndPrecedence(t *testing.T) {
	ev := NewEvaluator()
	var rs uint64
	v, err := ev.Eval("2 + 3 * 4", Null(), nil, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := v.AsFloat()
	if f != 14 {
		t.Fatalf("expected 14, got %v", f)
	}
}

func TestEvaluatorMetaBinding(t *testing.T) {
	ev := NewEvaluator()
	var rs uint64
	v, err := ev.Eval("m * 2", FromFloat(3), nil, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := v.AsFloat()
	if f != 6 {
		t.Fatalf("expected 6, got %v", f)
	}
}

func TestEvaluatorEnvLookup(t *testing.T) {
	ev := NewEvaluator()
	var rs uint64
	env := MapEnv{"tempo": FromFloat(120)}
	v, err := ev.Eval("tempo / 2", Null(), env, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, _ := v.AsFloat()
	if f != 60 {
		t.Fatalf("expected 60, got %v", f)
	}
}

func TestEvaluatorRandAdvancesState(t *testing.T) {
	ev := NewEvaluator()
	var rs uint64 = 12345
	before := rs
	_, err := ev.Eval("rand()", Null(), nil, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs == before {
		t.Fatalf("expected rand() to advance the random state")
	}
}

func TestEvaluatorUndefinedVariableErrors(t *testing.T) {
	ev := NewEvaluator()
	var rs uint64
	_, err := ev.Eval("nosuch", Null(), nil, &rs)
	if err == nil {
		t.Fatalf("expected error for undefined variable")
	}
}

func newTestTable() (*Table, []*channel.Channel, *master.Params) {
	t0 := channel.New(0)
	t1 := channel.New(1)
	chans := []*channel.Channel{t0, t1}
	m := master.New(120)

	tbl := NewTable()
	tbl.Register(&EventDef{
		Name:    "set_force",
		ArgKind: KindFloat,
		Handler: func(ctx *HandlerContext, arg Value) (Value, error) {
			f, _ := arg.AsFloat()
			ctx.Self().Force.Slider.SetImmediate(f)
			return Null(), nil
		},
	})
	tbl.Register(&EventDef{
		Name:    "query_force",
		ArgKind: KindNull,
		IsQuery: true,
		Handler: func(ctx *HandlerContext, arg Value) (Value, error) {
			return FromFloat(ctx.Self().Force.Slider.Value()), nil
		},
	})
	return tbl, chans, m
}

func TestDispatchInvokesHandler(t *testing.T) {
	tbl, chans, m := newTestTable()
	ev := NewEvaluator()
	var rs uint64
	ctx := &HandlerContext{Channels: chans, Master: m, Ch: 0}

	var emitted []Value
	emit := func(ch int, name string, arg Value) bool {
		emitted = append(emitted, arg)
		return true
	}

	err := Dispatch(tbl, ev, ctx, "set_force", FromFloat(0.7), false, emit, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chans[0].Force.Slider.Value() != 0.7 {
		t.Fatalf("expected force set to 0.7, got %v", chans[0].Force.Slider.Value())
	}
	if len(emitted) != 1 {
		t.Fatalf("expected one emitted event, got %d", len(emitted))
	}
}

func TestDispatchSkipSuppressesEmit(t *testing.T) {
	tbl, chans, m := newTestTable()
	ev := NewEvaluator()
	var rs uint64
	ctx := &HandlerContext{Channels: chans, Master: m, Ch: 0}

	var emitted int
	emit := func(ch int, name string, arg Value) bool { emitted++; return true }

	err := Dispatch(tbl, ev, ctx, "set_force", FromFloat(0.5), true, emit, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitted != 0 {
		t.Fatalf("expected no emission while skipping, got %d", emitted)
	}
	if chans[0].Force.Slider.Value() != 0.5 {
		t.Fatalf("expected side effect to still apply while skipping")
	}
}

func TestDispatchQueryEmitsComputedValue(t *testing.T) {
	tbl, chans, m := newTestTable()
	ev := NewEvaluator()
	var rs uint64
	chans[0].Force.Slider.SetImmediate(0.42)
	ctx := &HandlerContext{Channels: chans, Master: m, Ch: 0}

	var emitted []Value
	emit := func(ch int, name string, arg Value) bool {
		emitted = append(emitted, arg)
		return true
	}

	err := Dispatch(tbl, ev, ctx, "query_force", Null(), false, emit, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected the event itself plus its computed auto-event, got %d", len(emitted))
	}
	f, _ := emitted[1].AsFloat()
	if f != 0.42 {
		t.Fatalf("expected auto-event to carry queried force 0.42, got %v", f)
	}
}

func TestDispatchExpandsBindToOtherChannel(t *testing.T) {
	tbl, chans, m := newTestTable()
	ev := NewEvaluator()
	var rs uint64
	tbl.AddBind("set_force", BindEntry{ChOffset: 1, EventName: "set_force", Expr: "m * 0.5"})
	ctx := &HandlerContext{Channels: chans, Master: m, Ch: 0}

	emit := func(ch int, name string, arg Value) bool { return true }

	err := Dispatch(tbl, ev, ctx, "set_force", FromFloat(1.0), false, emit, &rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chans[0].Force.Slider.Value() != 1.0 {
		t.Fatalf("expected channel 0 force 1.0, got %v", chans[0].Force.Slider.Value())
	}
	if chans[1].Force.Slider.Value() != 0.5 {
		t.Fatalf("expected bound channel 1 force 0.5, got %v", chans[1].Force.Slider.Value())
	}
}

func TestDispatchUnknownEventErrors(t *testing.T) {
	tbl, chans, m := newTestTable()
	ev := NewEvaluator()
	var rs uint64
	ctx := &HandlerContext{Channels: chans, Master: m, Ch: 0}
	emit := func(ch int, name string, arg Value) bool { return true }

	err := Dispatch(tbl, ev, ctx, "nope", Null(), false, emit, &rs)
	if err == nil {
		t.Fatalf("expected error for unknown event")
	}
}

func TestProcessExprTypeChecksArgument(t *testing.T) {
	tbl, chans, m := newTestTable()
	ev := NewEvaluator()
	var rs uint64
	ctx := &HandlerContext{Channels: chans, Master: m, Ch: 0}
	emit := func(ch int, name string, arg Value) bool { return true }

	err := ProcessExpr(tbl, ev, ctx, "set_force", `"oops"`, Null(), false, emit, &rs)
	if err == nil {
		t.Fatalf("expected type mismatch error for string argument to a float event")
	}
}
