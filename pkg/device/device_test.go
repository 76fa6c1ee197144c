package device

import "testing"

func TestMixThreadStatesCombinesIntoThreadZero(t *testing.T) {
	base := NewState(1, 4, 0)
	threads := NewThreadStates(base, 3)

	copy(threads[0].Port(0).ContentsMut(), []float32{1, 1, 1, 1})
	threads[0].Port(0).SetValid(true)
	copy(threads[1].Port(0).ContentsMut(), []float32{2, 2, 2, 2})
	threads[1].Port(0).SetValid(true)
	// thread 2 left invalid/untouched: must not contribute.

	MixThreadStates(threads)

	want := []float32{3, 3, 3, 3}
	got := threads[0].Port(0).Contents()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReallocatePortsResizes(t *testing.T) {
	s := NewState(2, 4, 8)
	s.ReallocatePorts(16)
	if s.Port(0).Len() != 16 {
		t.Fatalf("expected port length 16, got %d", s.Port(0).Len())
	}
}

func TestResetClearsCustomAndInvalidatesPorts(t *testing.T) {
	s := NewState(1, 4, 4)
	copy(s.Custom(), []byte{1, 2, 3, 4})
	s.Port(0).Clear(0, 4)
	s.Reset()
	for _, b := range s.Custom() {
		if b != 0 {
			t.Fatalf("expected custom state cleared, got %v", s.Custom())
		}
	}
	if s.Port(0).IsValid() {
		t.Fatalf("expected ports invalidated after Reset")
	}
}
