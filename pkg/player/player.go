// Package player implements the outer playback loop: it owns the per-channel
// cgiters and channel state, the voice pool and worker pool, the voice and
// mixed signal plans, and the event dispatch table, and drives them through
// one render call at a time.
package player

import (
	"github.com/charmbracelet/log"

	"github.com/kunquat/kunquat-go/pkg/channel"
	"github.com/kunquat/kunquat-go/pkg/cgiter"
	"github.com/kunquat/kunquat-go/pkg/device"
	"github.com/kunquat/kunquat-go/pkg/event"
	"github.com/kunquat/kunquat-go/pkg/kqerr"
	"github.com/kunquat/kunquat-go/pkg/master"
	"github.com/kunquat/kunquat-go/pkg/module"
	"github.com/kunquat/kunquat-go/pkg/signalplan"
	"github.com/kunquat/kunquat-go/pkg/tstamp"
	"github.com/kunquat/kunquat-go/pkg/voice"
	"github.com/kunquat/kunquat-go/pkg/voicework"
	"github.com/kunquat/kunquat-go/pkg/workbuf"
)

const (
	// ThreadsMax bounds set_thread_count's valid range.
	ThreadsMax = 256
	// TracksMax bounds reset's track_num argument.
	TracksMax = 255
	// AudioBufferMax bounds set_audio_buffer_size.
	AudioBufferMax = 1 << 20
	// gotoSafetyCeiling bounds consecutive zero-advance gotos per §4.7.
	gotoSafetyCeiling = 8
	// scratchPortCount is the number of work buffers reserved per thread
	// for voice-group rendering (left/right plus a few effect-send ports).
	scratchPortCount = 8
	// masterPortCount is left/right for the mixed plan's final output.
	masterPortCount = 2
)

// Instrument is one instrument definition as seen by the player: the
// per-processor voice signal plan driving its group of voices.
type Instrument struct {
	Plan *signalplan.VoicePlan
}

// Player is the engine's public aggregate: one instance per loaded module,
// owning every mutable runtime structure described in the data model.
type Player struct {
	mod *module.Module

	audioRate   int32
	bufSize     int
	threadCount int

	channels []*channel.Channel
	cgiters  []*cgiter.Cgiter

	master *master.Params

	voicePool *voice.Pool
	pool      *voicework.Pool

	deviceState  *device.State
	threadStates []*device.ThreadState

	testDeviceState   *device.State
	testThreadStates  []*device.ThreadState
	testBuffers       *workbuf.Set
	testOutputBuf     []float32
	testFramesAvailable int
	channelTestOutput []bool

	mixedPlan       *signalplan.MixedPlan
	masterBuffers   *workbuf.Set
	voiceScratch    []*workbuf.Set
	instruments     map[int]*Instrument
	groupInstrument map[uint64]int
	channelInstrument []int

	// localFrameOffset is the in-block frame offset of the local event
	// currently being dispatched by processChannel (0 for pattern-sourced
	// dispatch via processCgiters), read by handleNoteOn/handleNoteOff so a
	// group they background mid-span starts rendering from the right place
	// if the background sweep reaches it within the same processVoices call.
	localFrameOffset int

	table *event.Table
	eval  *event.Evaluator

	eventBuf *EventBuffer

	outputBuf       []float32
	framesAvailable int
	renderVolume    float64
	dcBlockEnabled  bool

	frameRemainder    float64
	gotoSafetyCounter int

	startPos module.Position

	curTriggerPIRef module.PatternInstRef
	curTriggerRow   tstamp.Tstamp

	pendingJumpCounter     int
	pendingJumpTargetPIRef module.PatternInstRef
	pendingJumpTargetRow   tstamp.Tstamp

	pendingTempoSlideLength tstamp.Tstamp

	nanoseconds int64

	logger      *log.Logger
	renderCalls int64
}

// NewPlayer constructs a player over mod with the given audio rate, audio
// buffer size, event buffer size, and voice pool capacity. Mirrors the
// library's new_player configuration-time constructor; a nil mod or a
// non-positive audio rate, audio buffer size or voice count is a format
// error. A non-positive event buffer size is not rejected; the event
// buffer then holds one event.
func NewPlayer(mod *module.Module, audioRate int32, audioBufferSize, eventBufferSize, voiceCount int) (*Player, error) {
	if mod == nil {
		return nil, kqerr.New(kqerr.KindFormat, "module is nil")
	}
	if audioRate <= 0 || audioBufferSize <= 0 || voiceCount <= 0 {
		return nil, kqerr.New(kqerr.KindFormat, "invalid player sizing arguments")
	}

	p := &Player{
		mod:             mod,
		audioRate:       audioRate,
		bufSize:         audioBufferSize,
		threadCount:     1,
		master:          master.New(120),
		voicePool:       voice.NewPool(voiceCount),
		pool:            voicework.NewPool(1),
		deviceState:     device.NewState(masterPortCount, audioBufferSize, 0),
		testDeviceState: device.NewState(masterPortCount, audioBufferSize, 0),
		testBuffers:     workbuf.NewSet(masterPortCount, audioBufferSize),
		mixedPlan:       nil,
		masterBuffers:   workbuf.NewSet(masterPortCount, audioBufferSize),
		instruments:     make(map[int]*Instrument),
		groupInstrument: make(map[uint64]int),
		eventBuf:        NewEventBuffer(eventBufferSize),
		renderVolume:    1.0,
		dcBlockEnabled:  true,
		logger:          log.Default(),
	}

	p.channels = make([]*channel.Channel, mod.NumChannels)
	p.cgiters = make([]*cgiter.Cgiter, mod.NumChannels)
	p.channelInstrument = make([]int, mod.NumChannels)
	p.channelTestOutput = make([]bool, mod.NumChannels)
	for i := range p.channels {
		p.channels[i] = channel.New(i)
		p.channels[i].SetAudioRate(float64(audioRate))
		p.cgiters[i] = cgiter.New(mod, i)
		p.channelInstrument[i] = i
	}

	p.threadStates = device.NewThreadStates(p.deviceState, 1)
	p.testThreadStates = device.NewThreadStates(p.testDeviceState, 1)
	p.voiceScratch = []*workbuf.Set{workbuf.NewSet(scratchPortCount, audioBufferSize)}

	p.table = buildEventTable(p)
	p.eval = event.NewEvaluator()

	p.pool.Start()

	return p, nil
}

// SetThreadCount reconfigures the worker pool. On creation failure the pool
// falls back to single-thread mode per the early-exit protocol; this
// implementation's Start never itself fails (goroutine creation is not
// fallible in Go), so failure here is reserved for future resource limits.
func (p *Player) SetThreadCount(n int) error {
	if n < 1 || n > ThreadsMax {
		return kqerr.New(kqerr.KindFormat, "thread count out of range")
	}
	p.pool.Stop()
	p.pool = voicework.NewPool(n)
	p.pool.Start()
	p.threadCount = n
	p.threadStates = device.NewThreadStates(p.deviceState, n)
	p.testThreadStates = device.NewThreadStates(p.testDeviceState, n)

	scratch := make([]*workbuf.Set, n)
	for i := range scratch {
		scratch[i] = workbuf.NewSet(scratchPortCount, p.bufSize)
	}
	p.voiceScratch = scratch
	return nil
}

// SetAudioRate updates the sample rate used by every carried control,
// device state, and the sequencer's frame/Tstamp conversions.
func (p *Player) SetAudioRate(rate int32) error {
	if rate <= 0 {
		return kqerr.New(kqerr.KindFormat, "audio rate must be positive")
	}
	p.audioRate = rate
	for _, ch := range p.channels {
		ch.SetAudioRate(float64(rate))
	}
	p.master.VolumeSlider.SetTempo(p.master.Tempo, float64(rate))
	p.deviceState.SetAudioRate(rate)
	for _, ts := range p.threadStates {
		ts.SetAudioRate(rate)
	}
	return nil
}

// SetAudioBufferSize resizes every per-block scratch buffer and device port.
func (p *Player) SetAudioBufferSize(size int) error {
	if size <= 0 || size > AudioBufferMax {
		return kqerr.New(kqerr.KindFormat, "audio buffer size out of range")
	}
	p.bufSize = size
	p.deviceState.ReallocatePorts(size)
	p.masterBuffers.Resize(size)
	for _, ts := range p.threadStates {
		ts.ReallocatePorts(size)
	}
	p.testDeviceState.ReallocatePorts(size)
	p.testBuffers.Resize(size)
	for _, ts := range p.testThreadStates {
		ts.ReallocatePorts(size)
	}
	for _, s := range p.voiceScratch {
		s.Resize(size)
	}
	return nil
}

// ReserveVoiceStateSpace forwards to the voice pool's monotonic per-voice
// DSP state reservation.
func (p *Player) ReserveVoiceStateSpace(size int) error {
	return p.voicePool.ReserveStateSpace(size)
}

// ReserveVoiceWorkBufferSpace forwards to the voice pool's monotonic
// per-voice scratch reservation.
func (p *Player) ReserveVoiceWorkBufferSpace(size int) error {
	return p.voicePool.ReserveWorkBufferSpace(size)
}

// RegisterInstrument associates instrument index idx with a per-processor
// voice signal plan. Called once per loaded instrument, ahead of
// PrepareMixing, by the caller that owns the module's instrument
// definitions (out of this package's scope per the processor-contract
// boundary).
func (p *Player) RegisterInstrument(idx int, plan *signalplan.VoicePlan) {
	p.instruments[idx] = &Instrument{Plan: plan}
}

// SetChannelInstrument selects which instrument a channel's note_on
// allocates voices from.
func (p *Player) SetChannelInstrument(ch, instrumentIndex int) {
	if ch < 0 || ch >= len(p.channelInstrument) {
		return
	}
	p.channelInstrument[ch] = instrumentIndex
}

// PrepareMixing builds the mixed signal plan from the caller-supplied
// connection graph. The graph itself (audio-unit routing) is out of this
// package's scope; the caller builds it from the module's connections and
// hands over the processor list and edges.
func (p *Player) PrepareMixing(numNodes int, procs []signalplan.Processor, edges []signalplan.Edge) error {
	plan, err := signalplan.Build(numNodes, procs, edges)
	if err != nil {
		return err
	}
	p.mixedPlan = plan
	return nil
}

// Reset repositions playback at the start of subsong trackNum. -1 plays
// subsong 0 in infinite mode, returning to its start each time it ends.
func (p *Player) Reset(trackNum int) error {
	if trackNum < -1 || trackNum >= TracksMax {
		return kqerr.New(kqerr.KindFormat, "track number out of range")
	}

	p.master.IsInfinite = trackNum < 0
	subsong := trackNum
	if subsong < 0 {
		subsong = 0
	}

	entry, _ := p.mod.OrderEntryAt(subsong, 0, 0)
	pos := module.Position{Track: 0, System: 0, Pat: tstamp.Zero, PIRef: entry.PIRef}
	p.startPos = pos

	for i, ch := range p.channels {
		ch.Reset()
		if i < len(p.mod.ChannelDefaults) {
			ch.ApplyDefaults(p.mod.ChannelDefaults[i])
		}
	}
	for i, cg := range p.cgiters {
		cg.Subsong = subsong
		cg.PatternPlayback = false
		cg.Reset(pos)
		_ = i
	}

	p.master.CurPos = pos
	p.master.PlaybackState = master.PlayingModule
	p.master.CurCh = 0
	p.master.CurTrigger = 0
	p.master.DelayLeft = tstamp.Zero
	p.master.DoGoto = false
	p.master.DoJump = false
	p.master.Pause = false
	p.frameRemainder = 0
	p.gotoSafetyCounter = 0
	p.outputBuf = p.outputBuf[:0]
	p.framesAvailable = 0
	p.testOutputBuf = p.testOutputBuf[:0]
	p.testFramesAvailable = 0
	p.nanoseconds = 0
	p.groupInstrument = make(map[uint64]int)
	p.invalidateBuffers()

	return nil
}

// SetChannelMute mutes or unmutes a channel; muted channels still evolve
// state and fire events, only their contribution to the master mix is
// suppressed: the voice renderer skips the additive mix of the muted
// channel's foreground and background groups.
func (p *Player) SetChannelMute(ch int, muted bool) {
	if ch < 0 || ch >= len(p.channels) {
		return
	}
	p.channels[ch].SetMuted(muted)
}

// ChannelPitch returns channel ch's current carried pitch value (the
// block-level snapshot produced by this render call's AdvanceControls), for
// instrument processors that resolve pitch from a channel rather than from
// per-voice state. Returns 0 for an out-of-range channel.
func (p *Player) ChannelPitch(ch int) float64 {
	if ch < 0 || ch >= len(p.channels) {
		return 0
	}
	return p.channels[ch].Pitch.Value()
}

// ChannelForce returns channel ch's current carried force (volume) value.
// Returns 0 for an out-of-range channel.
func (p *Player) ChannelForce(ch int) float64 {
	if ch < 0 || ch >= len(p.channels) {
		return 0
	}
	return p.channels[ch].Force.Value()
}

// SetLogger replaces the player's internal diagnostic logger, which
// defaults to log.Default(). This is distinct from the event buffer's
// caller-visible error events: the logger is for operator-visible
// diagnostics (e.g. a dropped voice allocation still proceeds per the
// event taxonomy, but is logged at debug level).
func (p *Player) SetLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	p.logger = logger
}

// Stats is a snapshot of the player's render-time counters.
type Stats struct {
	ActiveVoices int
	ActiveGroups int
	RenderCalls  int64
}

// Stats reports the active voice count, active group count, and the
// number of Play/Skip calls made so far.
func (p *Player) Stats() Stats {
	return Stats{
		ActiveVoices: p.voicePool.ActiveVoiceCount(),
		ActiveGroups: p.voicePool.ActiveGroupCount(),
		RenderCalls:  p.renderCalls,
	}
}

// Fire queues an externally-sourced event on channel ch to take effect at
// frameOffset frames into the next render call, bypassing pattern
// dispatch. eventName/arg are already resolved (no expression to evaluate)
// since external callers supply typed arguments directly. The event sits
// in the channel's local event queue (processChannel drains it, rendering
// the channel's voice output in spans split at each queued offset) rather
// than applying synchronously, so it takes effect from its own precise
// frame boundary instead of being smeared across whatever block happens to
// be rendering when Fire is called.
func (p *Player) Fire(ch int, eventName string, arg event.Value, frameOffset int) error {
	if ch < 0 || ch >= len(p.channels) {
		return kqerr.New(kqerr.KindFormat, "channel index out of range")
	}
	if frameOffset < 0 {
		frameOffset = 0
	}
	ev := channel.LocalEvent{FrameOffset: frameOffset, EventType: eventName, Arg: arg}
	if !p.channels[ch].QueueLocalEvent(ev) {
		return kqerr.New(kqerr.KindResource, "local event queue full")
	}
	return nil
}

// GetFramesAvailable reports how many frames are queued in the output
// buffer since the last GetAudio call.
func (p *Player) GetFramesAvailable() int { return p.framesAvailable }

// SetChannelTestOutput marks whether channel ch's newly allocated voice
// groups route additively into the test-output mix (GetTestOutput) instead
// of their normal audio-unit outputs.
func (p *Player) SetChannelTestOutput(ch int, enabled bool) {
	if ch < 0 || ch >= len(p.channelTestOutput) {
		return
	}
	p.channelTestOutput[ch] = enabled
}

// GetTestFramesAvailable reports how many frames are queued in the
// test-output buffer since the last GetTestOutput call.
func (p *Player) GetTestFramesAvailable() int { return p.testFramesAvailable }

// GetTestOutput drains and returns the queued test-output mix.
func (p *Player) GetTestOutput() []float32 {
	out := p.testOutputBuf
	p.testOutputBuf = nil
	p.testFramesAvailable = 0
	return out
}

// GetAudio drains and returns the queued stereo-interleaved output.
func (p *Player) GetAudio() []float32 {
	out := p.outputBuf
	p.outputBuf = nil
	p.framesAvailable = 0
	return out
}

// GetEvents returns the events recorded since the last GetEvents call.
func (p *Player) GetEvents() []BufferedEvent {
	return p.eventBuf.Take()
}

// HasStopped reports whether playback has reached the end of the module (or
// subsong) and is not in infinite mode.
func (p *Player) HasStopped() bool {
	return p.master.PlaybackState == master.Stopped
}

// GetNanoseconds returns the playback position in nanoseconds, accumulated
// from the frames each Play/Skip call advanced divided by the audio rate in
// effect for that call.
func (p *Player) GetNanoseconds() int64 {
	return p.nanoseconds
}

func (p *Player) emit(ch int, name string, arg event.Value) bool {
	return p.eventBuf.Append(ch, name, arg)
}

func (p *Player) emitError(ch int, err error) {
	p.eventBuf.Append(ch, "error", event.FromString(err.Error()))
}

func (p *Player) suspended() bool {
	return p.eventBuf.IsFull()
}
