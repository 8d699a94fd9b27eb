package hw

import (
	"testing"

	"github.com/arm-supervisor/vmpu/internal/region"
)

func TestSimulated_MPUSetIssuesBarrier(t *testing.T) {
	t.Parallel()

	sim := NewSimulated(4)
	r := region.Region{Start: 0x1000, End: 0x2000}

	if err := sim.MPUSet(0, r); err != nil {
		t.Fatalf("MPUSet: %s", err)
	}

	if sim.Barriers() != 1 {
		t.Errorf("Barriers() = %d, want 1", sim.Barriers())
	}

	if got := sim.MPUSlot(0); got.Start != r.Start || got.End != r.End {
		t.Errorf("MPUSlot(0) = %v, want %v", got, r)
	}
}

func TestSimulated_MPUInvalidate(t *testing.T) {
	t.Parallel()

	sim := NewSimulated(2)

	if err := sim.MPUSet(0, region.Region{Start: 1, End: 2}); err != nil {
		t.Fatalf("MPUSet: %s", err)
	}

	sim.MPUInvalidate()

	if got := sim.MPUSlot(0); got.Start != 0 || got.End != 0 {
		t.Errorf("expected slot cleared, got %v", got)
	}
}

func TestSimulated_ReadFrameWord(t *testing.T) {
	t.Parallel()

	sim := NewSimulated(4)
	sim.StageFrame(0x1000, [8]uint32{1, 2, 3, 4, 5, 6, 7, 8})

	if got := sim.ReadFrameWord(0x1000, 6); got != 7 {
		t.Errorf("ReadFrameWord(6) = %d, want 7", got)
	}

	if got := sim.ReadFrameWord(0x1000, 99); got != 0 {
		t.Errorf("ReadFrameWord(99) = %d, want 0 (sentinel)", got)
	}

	if got := sim.ReadFrameWord(0xdead, 0); got != 0 {
		t.Errorf("ReadFrameWord(missing frame) = %d, want 0", got)
	}
}

func TestSimulated_SPFor(t *testing.T) {
	t.Parallel()

	sim := NewSimulated(1)

	if got := sim.SPFor(0, 0x1000_0000); got != 0x1000_0000 {
		t.Errorf("SPFor(MSP) = %#x, want MSP value unchanged", got)
	}

	if got := sim.SPFor(ExcReturnModeBit, 0x1000_0000); got == 0x1000_0000 {
		t.Errorf("SPFor(PSP) should differ from the MSP-only value")
	}
}

func TestSimulated_SFSRLifecycle(t *testing.T) {
	t.Parallel()

	sim := NewSimulated(1)
	sim.SetSFSR(SFSRAUVIOL | SFSRSFARVALID)
	sim.SetSFAR(0x4000_0100)

	if sim.SFSR() != SFSRAUVIOL|SFSRSFARVALID {
		t.Errorf("SFSR() = %#x", sim.SFSR())
	}

	sim.ClearSFSR()

	if sim.SFSR() != 0 {
		t.Errorf("expected SFSR cleared, got %#x", sim.SFSR())
	}
}
