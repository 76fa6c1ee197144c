package player

import (
	"github.com/kunquat/kunquat-go/pkg/kqerr"
	"github.com/kunquat/kunquat-go/pkg/master"
)

// Play renders up to nframes frames: it advances the sequencer, renders
// every live voice group for the frames actually consumed, and appends the
// resulting stereo-interleaved samples to the output buffer. Fewer than
// nframes frames may be produced if playback stops partway through the
// call; GetFramesAvailable/GetAudio report exactly what was produced.
func (p *Player) Play(nframes int) error {
	if nframes < 0 {
		return kqerr.New(kqerr.KindFormat, "frame count must be non-negative")
	}

	p.eventBuf.Clear()
	p.renderCalls++

	advanced := p.moveForwards(nframes, false, true)

	p.nanoseconds += int64(float64(advanced) / float64(p.audioRate) * 1e9)

	return nil
}

// Skip advances playback by nframes frames without recording events or
// producing audio output, for fast-forwarding to a later position while
// still letting every carried control and voice lifecycle evolve exactly
// as Play would.
func (p *Player) Skip(nframes int) error {
	if nframes < 0 {
		return kqerr.New(kqerr.KindFormat, "frame count must be non-negative")
	}

	p.renderCalls++

	advanced := p.moveForwards(nframes, true, false)

	p.nanoseconds += int64(float64(advanced) / float64(p.audioRate) * 1e9)

	return nil
}

// renderIncrement processes voices for one inter-event span of frames,
// immediately following the §4.9 render pipeline's "process voices after
// each move_forwards increment" step: every trigger row's effect (a new
// note, a retargeted slider, a tempo change) must render from its own
// precise frame boundary rather than being smeared across a whole
// caller-requested block. produceAudio is false for Skip, which still
// needs every voice/control to evolve exactly as Play would but must not
// emit samples. A span longer than the audio buffer size is rendered in
// consecutive buffer-sized pieces.
func (p *Player) renderIncrement(frames int, produceAudio bool) {
	for frames > 0 {
		n := frames
		if n > p.bufSize {
			n = p.bufSize
		}
		p.processVoices(n)
		if produceAudio {
			p.applyMasterOutput(n)
		}
		frames -= n
	}
}

// applyMasterOutput converts n frames of the mixed master buffers to
// interleaved stereo float32, applying the render volume, the global
// volume slider, and (if enabled) the DC-blocking high-pass filter, and
// appends the result to the output buffer.
func (p *Player) applyMasterOutput(n int) {
	if n <= 0 {
		return
	}

	left := p.masterBuffers.At(0)
	right := p.masterBuffers.At(1)

	adapt := master.AdaptFrames(float64(p.audioRate))
	r, gain := master.Coeffs(adapt)

	vol := p.master.VolumeSlider.Advance(n)

	start := len(p.outputBuf)
	p.outputBuf = append(p.outputBuf, make([]float32, n*2)...)

	lCh := left.Contents()
	rCh := right.Contents()
	for i := 0; i < n; i++ {
		l := float64(lCh[i]) * vol * p.renderVolume
		rr := float64(rCh[i]) * vol * p.renderVolume
		if p.dcBlockEnabled {
			l = p.master.DCBlocker[0].Process(l, r, gain)
			rr = p.master.DCBlocker[1].Process(rr, r, gain)
		}
		p.outputBuf[start+i*2] = float32(l)
		p.outputBuf[start+i*2+1] = float32(rr)
	}

	p.framesAvailable += n
}

// invalidateBuffers discards the contents of every work buffer the player
// owns, used on playback restart so stale audio never leaks into a new
// render call.
func (p *Player) invalidateBuffers() {
	p.masterBuffers.InvalidateAll()
	p.testBuffers.InvalidateAll()
	for _, s := range p.voiceScratch {
		s.InvalidateAll()
	}
	p.master.DCBlocker[0].Reset()
	p.master.DCBlocker[1].Reset()
}

// mixTestOutput appends n frames of the additive test-output mix
// (GetTestOutput) to its buffer, raw: no render volume, global volume
// slider, or DC blocker, since test output bypasses applyMasterOutput's
// final master shaping entirely and exists purely to expose per-channel
// voice output for inspection.
func (p *Player) mixTestOutput(n int) {
	if n <= 0 || len(p.testThreadStates) == 0 {
		return
	}

	test0 := &p.testThreadStates[0].State
	for i := 0; i < p.testBuffers.Len() && i < test0.PortCount(); i++ {
		dst := p.testBuffers.At(i)
		dst.Clear(0, n)
		src := test0.Port(i)
		if src.IsValid() {
			dst.Mix(src, 0, n)
		}
	}

	left := p.testBuffers.At(0)
	right := p.testBuffers.At(1)
	lCh := left.Contents()
	rCh := right.Contents()

	start := len(p.testOutputBuf)
	p.testOutputBuf = append(p.testOutputBuf, make([]float32, n*2)...)
	for i := 0; i < n; i++ {
		p.testOutputBuf[start+i*2] = lCh[i]
		p.testOutputBuf[start+i*2+1] = rCh[i]
	}
	p.testFramesAvailable += n
}
