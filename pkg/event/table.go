package event

import (
	"fmt"

	"github.com/kunquat/kunquat-go/pkg/channel"
	"github.com/kunquat/kunquat-go/pkg/kqerr"
	"github.com/kunquat/kunquat-go/pkg/master"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// HandlerContext is what an event handler needs to mutate channel or
// master state, or to read sibling channels for a bind's ch_offset.
type HandlerContext struct {
	Channels []*channel.Channel
	Master   *master.Params
	Ch       int
}

// Self returns the channel the event was dispatched to.
func (c *HandlerContext) Self() *channel.Channel { return c.Channels[c.Ch] }

// EventDef is one entry of the event dispatch table.
type EventDef struct {
	Name    string
	ArgKind Kind
	IsQuery bool
	IsAuto  bool
	// Handler performs the event's side effect (for non-query events) or
	// computes the query's result (for query events). It may be nil for
	// auto-events that only exist as the target of a query's emission.
	Handler func(ctx *HandlerContext, arg Value) (Value, error)
}

// BindEntry is one binding-table row: firing the bound event expands into
// evaluating Expr (with the firing event's argument available as "m") and
// recursively dispatching EventName on channel (ch + ChOffset) mod N.
type BindEntry struct {
	ChOffset  int
	EventName string
	Expr      string
}

// Table is the dispatch table from event name to handler, plus the bind
// table that expands one event into a sequence of others.
type Table struct {
	defs  map[string]*EventDef
	binds map[string][]BindEntry
}

// NewTable creates an empty event/bind table.
func NewTable() *Table {
	return &Table{defs: make(map[string]*EventDef), binds: make(map[string][]BindEntry)}
}

// Register adds or replaces an event definition.
func (t *Table) Register(def *EventDef) { t.defs[def.Name] = def }

// Lookup resolves an event name to its definition.
func (t *Table) Lookup(name string) (*EventDef, bool) {
	d, ok := t.defs[name]
	return d, ok
}

// AddBind registers a binding: whenever eventName fires, entry also fires.
func (t *Table) AddBind(eventName string, entry BindEntry) {
	t.binds[eventName] = append(t.binds[eventName], entry)
}

// Binds returns the bindings registered for eventName.
func (t *Table) Binds(eventName string) []BindEntry { return t.binds[eventName] }

// EmitFunc records a dispatched (channel, event name, argument) triple
// into the caller's event buffer. It returns false once the buffer is
// full, at which point the caller enters skipping mode; Dispatch does not
// itself stop recursing on a false return, matching the engine's
// record-what-fits policy.
type EmitFunc func(ch int, eventName string, arg Value) bool

// Dispatch implements process_event: resolve the event, invoke its
// handler's side effect, record it (unless skip is set), expand any
// bindings, and for query events emit the computed result as an
// auto-event. randState is the firing channel's deterministic random
// cursor, advanced by expression evaluation. An event reached again through
// its own chain of bindings runs its handler and is recorded, but its
// bindings are not expanded a second time, so a cyclic bind terminates.
func Dispatch(t *Table, ev *Evaluator, ctx *HandlerContext, name string, arg Value, skip bool, emit EmitFunc, randState *uint64) error {
	return dispatch(t, ev, ctx, name, arg, skip, emit, randState, nil)
}

// dispatch is Dispatch carrying the names of the events whose bindings are
// being expanded further up the call chain.
func dispatch(t *Table, ev *Evaluator, ctx *HandlerContext, name string, arg Value, skip bool, emit EmitFunc, randState *uint64, expanding []string) error {
	def, ok := t.Lookup(name)
	if !ok {
		return kqerr.New(kqerr.KindFormat, fmt.Sprintf("unknown event %q", name))
	}

	var result Value
	var err error
	if def.Handler != nil && !def.IsAuto {
		result, err = def.Handler(ctx, arg)
		if err != nil {
			return kqerr.Wrap(kqerr.KindFormat, fmt.Sprintf("event %q handler failed", name), err)
		}
	}

	if !skip {
		emit(ctx.Ch, name, arg)
	}

	binds := t.Binds(name)
	for _, n := range expanding {
		if n == name {
			binds = nil
			break
		}
	}
	chain := append(expanding[:len(expanding):len(expanding)], name)
	for _, b := range binds {
		env := MapEnv{}
		v, evalErr := ev.Eval(b.Expr, arg, env, randState)
		if evalErr != nil {
			return evalErr
		}
		targetCh := mod(ctx.Ch+b.ChOffset, len(ctx.Channels))
		boundCtx := &HandlerContext{Channels: ctx.Channels, Master: ctx.Master, Ch: targetCh}
		if dispErr := dispatch(t, ev, boundCtx, b.EventName, v, skip, emit, randState, chain); dispErr != nil {
			return dispErr
		}
	}

	if def.IsQuery && !skip {
		emit(ctx.Ch, name, result)
	}

	return nil
}

// ProcessExpr parses a trigger's [event_name, expression] form, evaluates
// the expression, and dispatches the resulting event. meta is the
// enclosing bind's argument (Null for a top-level trigger).
func ProcessExpr(t *Table, ev *Evaluator, ctx *HandlerContext, eventName, expr string, meta Value, skip bool, emit EmitFunc, randState *uint64) error {
	def, ok := t.Lookup(eventName)
	if !ok {
		return kqerr.New(kqerr.KindFormat, fmt.Sprintf("unknown event %q", eventName))
	}
	env := MapEnv{}
	v, err := ev.Eval(expr, meta, env, randState)
	if err != nil {
		return err
	}
	// The expression language only ever produces numbers, strings, bools
	// and null; Tstamp- and int-typed events accept a bare number in their
	// natural unit (beats, or a plain count) rather than requiring a
	// dedicated literal syntax.
	if v.Kind == KindFloat {
		switch def.ArgKind {
		case KindTstamp:
			v = FromTstamp(tstamp.FromFloat(v.F))
		case KindInt:
			v = FromInt(int64(v.F))
		}
	}
	if def.ArgKind != KindNull && v.Kind != KindNull && v.Kind != def.ArgKind {
		return kqerr.New(kqerr.KindFormat, fmt.Sprintf("event %q expects %s argument, got %s", eventName, def.ArgKind, v.Kind))
	}
	return Dispatch(t, ev, ctx, eventName, v, skip, emit, randState)
}

func mod(a, n int) int {
	if n <= 0 {
		return 0
	}
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
