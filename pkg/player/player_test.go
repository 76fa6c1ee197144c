package player

import (
	"testing"

	"github.com/kunquat/kunquat-go/pkg/event"
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/signalplan"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
)

// constProc is a signal plan processor that fills every output port with a
// fixed value and never reports silence, for exercising note_on/note_off
// and mixing without a real DSP algorithm.
type constProc struct {
	val float32
}

func (c constProc) Process(ctx *signalplan.ProcessContext) int {
	for i := 0; i < ctx.Buffers.Len(); i++ {
		buf := ctx.Buffers.At(i)
		data := buf.ContentsMut()
		for f := ctx.FrameOffset; f < ctx.FrameOffset+ctx.FrameCount; f++ {
			data[f] = c.val
		}
		buf.SetValid(true)
	}
	return ctx.TotalFrameCount
}

// newOneChannelModule builds a single-channel, single-pattern, single-track
// module of the given pattern length with the given column 0 triggers.
func newOneChannelModule(length tstamp.Tstamp, triggers []module.TriggerRow) *module.Module {
	mod := module.New(1)
	pat := module.NewPattern(length)
	for _, row := range triggers {
		for _, trig := range row.Triggers {
			pat.Columns[0].Insert(row.Pos, trig)
		}
	}
	mod.Patterns = []*module.Pattern{pat}
	mod.Subsongs = []module.Subsong{{
		Tracks: [][]module.OrderEntry{{{PIRef: module.PatternInstRef{Pattern: 0}}}},
	}}
	return mod
}

func newTestPlayer(t *testing.T, mod *module.Module) *Player {
	t.Helper()
	p, err := NewPlayer(mod, 44100, 4096, 256, 16)
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	p.RegisterInstrument(0, signalplan.NewVoicePlan([]signalplan.Node{{Proc: constProc{val: 0.25}}}))
	p.SetChannelInstrument(0, 0)
	if err := p.Reset(0); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	return p
}

func TestResetRejectsOutOfRangeTrack(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)
	if err := p.Reset(TracksMax); err == nil {
		t.Fatalf("expected an error for an out-of-range track number")
	}
}

func TestPlaySingleNoteProducesAudio(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), []module.TriggerRow{
		{Pos: tstamp.Zero, Triggers: []module.Trigger{{EventName: "note_on", Expr: "0"}}},
	})
	p := newTestPlayer(t, mod)

	if err := p.Play(2048); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	audio := p.GetAudio()
	if len(audio) == 0 {
		t.Fatalf("expected some audio frames to be produced")
	}

	nonZero := false
	for _, s := range audio {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("expected non-silent output after a note_on, got all zeros")
	}
}

func TestChannelMuteSuppressesOutput(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), []module.TriggerRow{
		{Pos: tstamp.Zero, Triggers: []module.Trigger{{EventName: "note_on", Expr: "0"}}},
	})
	p := newTestPlayer(t, mod)
	p.SetChannelMute(0, true)

	if err := p.Play(2048); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	audio := p.GetAudio()
	for i, s := range audio {
		if s != 0 {
			t.Fatalf("expected silence on a muted channel, got nonzero sample %g at index %d", s, i)
		}
	}
}

func TestPlayStopsAtEndOfSingleSystemModule(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), []module.TriggerRow{
		{Pos: tstamp.Zero, Triggers: []module.Trigger{{EventName: "note_on", Expr: "0"}}},
	})
	p := newTestPlayer(t, mod)

	// 4 beats at 120 BPM and 44100 Hz is 88200 frames; ask for well more
	// than that so playback has to reach the end of the module.
	if err := p.Play(200000); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if !p.HasStopped() {
		t.Fatalf("expected playback to have stopped at the end of the only system")
	}
	if got := p.GetFramesAvailable(); got <= 0 || got >= 200000 {
		t.Fatalf("expected a partial block strictly less than requested, got %d", got)
	}
}

func TestJumpCounterFiresPatternThreeTimesTotal(t *testing.T) {
	// A jump trigger armed with counter 2 fires twice, replaying the
	// pattern from its start each time, then lets playback continue past
	// it: the pattern plays three times total.
	mod := newOneChannelModule(tstamp.New(4, 0), []module.TriggerRow{
		{Pos: tstamp.Zero, Triggers: []module.Trigger{{EventName: "note_on", Expr: "0"}}},
		{Pos: tstamp.New(2, 0), Triggers: []module.Trigger{
			{EventName: "jump_counter", Expr: "2"},
			{EventName: "jump", Expr: "null"},
		}},
	})
	p := newTestPlayer(t, mod)

	noteOnCount := 0
	for i := 0; i < 16; i++ {
		if err := p.Play(44100); err != nil {
			t.Fatalf("Play failed: %v", err)
		}
		for _, ev := range p.GetEvents() {
			if ev.Name == "note_on" {
				noteOnCount++
			}
		}
		if p.HasStopped() {
			break
		}
	}

	if !p.HasStopped() {
		t.Fatalf("expected playback to have stopped after the jump sequence finished")
	}
	if noteOnCount != 3 {
		t.Fatalf("expected the pattern to play 3 times (1 original + 2 jumps), got %d note_on events", noteOnCount)
	}
}

func TestFireInjectsEventWithoutPatternDispatch(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)

	if err := p.Fire(0, "note_on", event.FromFloat(0), 0); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if p.channels[0].FGGroupID != 0 {
		t.Fatalf("expected Fire to queue the event rather than apply it immediately")
	}

	if err := p.Play(64); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if p.channels[0].FGGroupID == 0 {
		t.Fatalf("expected the queued Fire(note_on) to have allocated a foreground voice group by the next render call")
	}
}

func TestFireAppliesAtItsFrameOffset(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)

	const offset = 32
	if err := p.Fire(0, "note_on", event.FromFloat(0), offset); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if len(p.channels[0].LocalEvents) != 1 || p.channels[0].LocalEvents[0].FrameOffset != offset {
		t.Fatalf("expected the queued local event to carry the requested frame offset, got %+v", p.channels[0].LocalEvents)
	}

	if err := p.Play(64); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if p.channels[0].FGGroupID == 0 {
		t.Fatalf("expected the queued Fire(note_on) to have fired by the end of the render call")
	}
}

func TestFireRejectsOutOfRangeChannel(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)

	if err := p.Fire(5, "note_on", event.FromFloat(0), 0); err == nil {
		t.Fatalf("expected an error for an out-of-range channel")
	}
}

func TestStatsTracksRenderCallsAndActiveVoices(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), []module.TriggerRow{
		{Pos: tstamp.Zero, Triggers: []module.Trigger{{EventName: "note_on", Expr: "0"}}},
	})
	p := newTestPlayer(t, mod)

	if stats := p.Stats(); stats.RenderCalls != 0 {
		t.Fatalf("expected zero render calls before any Play, got %d", stats.RenderCalls)
	}

	if err := p.Play(1024); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := p.Skip(512); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}

	stats := p.Stats()
	if stats.RenderCalls != 2 {
		t.Fatalf("expected 2 render calls after one Play and one Skip, got %d", stats.RenderCalls)
	}
	if stats.ActiveVoices == 0 {
		t.Fatalf("expected at least one active voice after a note_on")
	}
}

func TestVibratoModulatesChannelPitch(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)

	if err := p.Fire(0, "set_pitch", event.FromFloat(0), 0); err != nil {
		t.Fatalf("Fire(set_pitch) failed: %v", err)
	}
	if err := p.Fire(0, "set_vibrato_speed", event.FromFloat(5), 0); err != nil {
		t.Fatalf("Fire(set_vibrato_speed) failed: %v", err)
	}
	if err := p.Fire(0, "set_vibrato_depth", event.FromFloat(2), 0); err != nil {
		t.Fatalf("Fire(set_vibrato_depth) failed: %v", err)
	}

	seen := map[float64]bool{}
	for i := 0; i < 20; i++ {
		if err := p.Play(256); err != nil {
			t.Fatalf("Play failed: %v", err)
		}
		seen[p.ChannelPitch(0)] = true
	}

	if len(seen) < 2 {
		t.Fatalf("expected a vibrato-driven channel's carried pitch to oscillate across render calls, got a single constant value: %v", seen)
	}
}

func TestTremoloModulatesChannelForce(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)

	if err := p.Fire(0, "set_force", event.FromFloat(1), 0); err != nil {
		t.Fatalf("Fire(set_force) failed: %v", err)
	}
	if err := p.Fire(0, "set_tremolo_speed", event.FromFloat(5), 0); err != nil {
		t.Fatalf("Fire(set_tremolo_speed) failed: %v", err)
	}
	if err := p.Fire(0, "set_tremolo_depth", event.FromFloat(0.5), 0); err != nil {
		t.Fatalf("Fire(set_tremolo_depth) failed: %v", err)
	}

	seen := map[float64]bool{}
	for i := 0; i < 20; i++ {
		if err := p.Play(256); err != nil {
			t.Fatalf("Play failed: %v", err)
		}
		seen[p.ChannelForce(0)] = true
	}

	if len(seen) < 2 {
		t.Fatalf("expected a tremolo-driven channel's carried force to oscillate across render calls, got a single constant value: %v", seen)
	}
}

func TestChannelTestOutputBypassesNormalAudio(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), []module.TriggerRow{
		{Pos: tstamp.Zero, Triggers: []module.Trigger{{EventName: "note_on", Expr: "0"}}},
	})
	p := newTestPlayer(t, mod)
	p.SetChannelTestOutput(0, true)

	if err := p.Play(2048); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	audio := p.GetAudio()
	for i, s := range audio {
		if s != 0 {
			t.Fatalf("expected a test-output channel to produce no normal audio, got nonzero sample %g at index %d", s, i)
		}
	}

	testOut := p.GetTestOutput()
	if len(testOut) == 0 {
		t.Fatalf("expected the test-output channel's voice to mix into GetTestOutput instead")
	}
	nonZero := false
	for _, s := range testOut {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatalf("expected non-silent test output after a note_on on a test-output channel")
	}
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	mod := newOneChannelModule(tstamp.New(4, 0), nil)
	p := newTestPlayer(t, mod)
	original := p.logger
	p.SetLogger(nil)
	if p.logger != original {
		t.Fatalf("expected SetLogger(nil) to leave the existing logger in place")
	}
}
