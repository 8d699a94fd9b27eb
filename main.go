// vmpu is a raw smoke-test of the TrustZone memory-protection supervisor:
// build one box, stage a SecureFault, and print what got recovered. See
// cmd/vmpu-demo for the full scenario-driving CLI.
package main

import (
	"fmt"

	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/supervisor"
)

func main() {
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

	acl := region.NewACL(true, true, false, false, false)

	if _, _, err := sv.ACLSRAM(1, 64, 128, acl, acl); err != nil {
		panic(err)
	}

	if err := sv.RegisterACL(1, 0x4000_0000, 0x1000, acl); err != nil {
		panic(err)
	}

	if err := sv.ArchInit(nil); err != nil {
		panic(err)
	}

	sv.SetActiveBox(1)

	sim.SetIPSR(int32(-9) + 16) // SecureFault
	sim.SetSFSR(hw.SFSRAUVIOL | hw.SFSRSFARVALID)
	sim.SetSFAR(0x4000_0100)
	sim.StageFrame(0, [8]uint32{0, 0, 0, 0, 0, 0, 0x1000_0001, 0})

	sv.SysMuxHandler(sim.ExcReturn(), 0)

	fmt.Printf("sfsr after recovery: %#08x\n", sim.SFSR())
	fmt.Printf("slot 4: %s\n", sim.MPUSlot(4))
}
