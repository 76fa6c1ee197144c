package channel

import "testing"

func TestNewChannelDefaults(t *testing.T) {
	c := New(3)
	if c.Index != 3 {
		t.Fatalf("expected index 3, got %d", c.Index)
	}
	if c.Force.Slider.Value() != 1.0 {
		t.Fatalf("expected default force 1.0, got %v", c.Force.Slider.Value())
	}
	if c.Pitch.Slider.Value() != 0.0 {
		t.Fatalf("expected default pitch 0.0, got %v", c.Pitch.Slider.Value())
	}
}

func TestApplyDefaultsSetsForceAndPitch(t *testing.T) {
	c := New(0)
	c.ApplyDefaults(map[string]float64{"force": 0.5, "pitch": 2.0})
	if c.Force.Slider.Value() != 0.5 {
		t.Fatalf("expected force 0.5, got %v", c.Force.Slider.Value())
	}
	if c.Pitch.Slider.Value() != 2.0 {
		t.Fatalf("expected pitch 2.0, got %v", c.Pitch.Slider.Value())
	}
}

func TestResetClearsVoiceGroupAndEvents(t *testing.T) {
	c := New(0)
	c.FGGroupID = 42
	c.QueueLocalEvent(LocalEvent{FrameOffset: 5, EventType: "note_on"})
	c.Force.Slider.SetTarget(0.2, 1, 120, 44100)

	c.Reset()

	if c.FGGroupID != 0 {
		t.Fatalf("expected FGGroupID cleared, got %d", c.FGGroupID)
	}
	if len(c.LocalEvents) != 0 {
		t.Fatalf("expected local events cleared, got %d", len(c.LocalEvents))
	}
	if c.Force.Slider.Mode != SliderOff {
		t.Fatalf("expected force slider off after reset")
	}
}

func TestQueueLocalEventRespectsBound(t *testing.T) {
	c := New(0)
	for i := 0; i < maxLocalEvents; i++ {
		if !c.QueueLocalEvent(LocalEvent{FrameOffset: i}) {
			t.Fatalf("unexpected rejection at %d", i)
		}
	}
	if c.QueueLocalEvent(LocalEvent{FrameOffset: maxLocalEvents}) {
		t.Fatalf("expected queue to reject beyond bound")
	}
}

func TestClearLocalEvents(t *testing.T) {
	c := New(0)
	c.QueueLocalEvent(LocalEvent{FrameOffset: 1})
	c.ClearLocalEvents()
	if len(c.LocalEvents) != 0 {
		t.Fatalf("expected empty after clear")
	}
}

func TestAdvanceControlsAdvancesBothChains(t *testing.T) {
	c := New(0)
	c.SetAudioRate(44100)
	c.SetTempo(120)
	c.Force.Slider.SetTarget(0.0, 1, 120, 44100)
	c.Pitch.LFO.Enabled = true
	c.Pitch.LFO.SetSpeed(1)
	c.Pitch.LFO.SetDepth(1)

	c.AdvanceControls(100)

	if c.Force.Slider.Value() == 1.0 {
		t.Fatalf("expected force slider to have advanced")
	}
	if c.Pitch.LFO.Phase == 0 {
		t.Fatalf("expected LFO phase to have advanced")
	}
}

func TestSetTempoRescalesForceSliderLength(t *testing.T) {
	c := New(0)
	c.SetAudioRate(44100)
	c.SetTempo(120)
	c.Force.Slider.SetTarget(0.0, 4, 120, 44100)

	before := c.Force.Slider.FramesRemaining()
	c.SetTempo(240)
	after := c.Force.Slider.FramesRemaining()

	if after >= before {
		t.Fatalf("expected remaining frames to shrink when tempo doubles: before=%v after=%v", before, after)
	}
}

func TestNextRandomIsDeterministicPerChannel(t *testing.T) {
	c1 := New(1)
	c2 := New(1)
	for i := 0; i < 10; i++ {
		a := c1.NextRandom()
		b := c2.NextRandom()
		if a != b {
			t.Fatalf("expected identical channels to produce identical sequences at step %d", i)
		}
	}
}

func TestMutedFlag(t *testing.T) {
	c := New(0)
	if c.Muted {
		t.Fatalf("expected unmuted by default")
	}
	c.SetMuted(true)
	if !c.Muted {
		t.Fatalf("expected muted after SetMuted(true)")
	}
}
