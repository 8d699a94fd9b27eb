package main_test

import (
	"bufio"
	"testing"

	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/log"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/supervisor"
)

var logBuffer bufio.Writer

type testHarness struct {
	*testing.T
}

func (testHarness) Make() (*supervisor.Supervisor, *hw.Simulated) {
	sim := hw.NewSimulated(8)

	sv, err := supervisor.New(
		supervisor.WithHardware(sim),
		supervisor.WithBoxes(2),
		supervisor.WithSlots(8, 4),
		supervisor.WithSRAMBase(0x2000_0000),
	)
	if err != nil {
		panic(err)
	}

	return sv, sim
}

// TestMain exercises the full init-then-fault path end to end: a box's
// stack/bss are allocated, the slot cache is locked with no static regions,
// and a SecureFault against the active box's data region is recovered.
func TestMain(tt *testing.T) {
	t := testHarness{tt}
	log.LogLevel.Set(log.Error)

	sv, sim := t.Make()

	acl := region.NewACL(true, true, false, false, false)

	if _, _, err := sv.ACLSRAM(1, 64, 128, acl, acl); err != nil {
		t.Fatalf("acl_sram: %s", err)
	}

	if err := sv.RegisterACL(1, 0x4000_0000, 0x1000, acl); err != nil {
		t.Fatalf("register_acl: %s", err)
	}

	if err := sv.ArchInit(nil); err != nil {
		t.Fatalf("arch_init: %s", err)
	}

	sv.SetActiveBox(1)

	sim.SetIPSR(int32(-9) + 16)
	sim.SetSFSR(hw.SFSRAUVIOL | hw.SFSRSFARVALID)
	sim.SetSFAR(0x4000_0100)
	sim.StageFrame(0, [8]uint32{0, 0, 0, 0, 0, 0, 0x1000_0001, 0})

	sv.SysMuxHandler(sim.ExcReturn(), 0)

	if sim.SFSR() != 0 {
		t.Errorf("expected SFSR cleared after recovery, got %#08x", sim.SFSR())
	}

	if !sim.MPUSlot(4).Contains(0x4000_0100, 4) {
		t.Errorf("expected recovered region installed in a dynamic slot")
	}
}
