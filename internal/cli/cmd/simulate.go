package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/arm-supervisor/vmpu/internal/cli"
	"github.com/arm-supervisor/vmpu/internal/dispatch"
	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/log"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/supervisor"
)

// Simulate drives the supervisor through a set of canned fault scenarios
// and prints a trace of what it decided.
func Simulate() cli.Command {
	return new(simulate)
}

type simulate struct {
	scenario string
}

func (simulate) Description() string {
	return "run a canned fault scenario against the supervisor"
}

func (s simulate) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `
simulate [ -scenario <name> ]

Run one of the built-in fault scenarios (box-region, scr, bitband, denied,
switch) against a simulated hardware backend and print the outcome.`)

	return err
}

func (s *simulate) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	fs.StringVar(&s.scenario, "scenario", "all", "scenario to run: box-region, scr, bitband, denied, switch, all")

	return fs
}

func (s simulate) Run(_ context.Context, _ []string, out io.Writer, logger *log.Logger) int {
	scenarios := map[string]func(io.Writer, *log.Logger) error{
		"box-region": scenarioBoxRegion,
		"scr":        scenarioSCR,
		"bitband":    scenarioBitband,
		"denied":     scenarioDenied,
		"switch":     scenarioSwitch,
	}

	run := func(name string) int {
		fmt.Fprintf(out, "=== %s ===\n", name)

		if err := scenarios[name](out, logger); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			return 1
		}

		return 0
	}

	if s.scenario != "all" {
		fn, ok := scenarios[s.scenario]
		if !ok {
			fmt.Fprintf(out, "unknown scenario %q\n", s.scenario)
			return 1
		}

		fmt.Fprintf(out, "=== %s ===\n", s.scenario)

		if err := fn(out, logger); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			return 1
		}

		return 0
	}

	rc := 0
	for _, name := range []string{"box-region", "scr", "bitband", "denied", "switch"} {
		if code := run(name); code != 0 {
			rc = code
		}
	}

	return rc
}

func newSupervisor() (*supervisor.Supervisor, *hw.Simulated, error) {
	sim := hw.NewSimulated(8)

	sv, err := supervisor.New(
		supervisor.WithHardware(sim),
		supervisor.WithBoxes(3),
		supervisor.WithSlots(8, 4),
		supervisor.WithSRAMBase(0x2000_0000),
	)

	return sv, sim, err
}

// scenarioBoxRegion reproduces a SecureFault recovered against a box-local
// region: SFAR in a region owned by the active box.
func scenarioBoxRegion(out io.Writer, _ *log.Logger) error {
	sv, sim, err := newSupervisor()
	if err != nil {
		return err
	}

	stackACL := region.NewACL(true, true, false, false, false)
	bssACL := region.NewACL(true, true, false, false, false)

	if _, _, err := sv.ACLSRAM(2, 64, 128, stackACL, bssACL); err != nil {
		return err
	}

	dataACL := region.NewACL(true, true, false, false, false)
	if err := sv.RegisterACL(2, 0x4000_0000, 0x1000, dataACL); err != nil {
		return err
	}

	if err := sv.Table.Validate(); err != nil {
		return err
	}

	sv.SetActiveBox(2)

	sim.SetIPSR(int32(-9) + 16)
	sim.SetSFSR(hw.SFSRAUVIOL | hw.SFSRSFARVALID)
	sim.SetSFAR(0x4000_0100)
	sim.StageFrame(0, [8]uint32{0, 0, 0, 0, 0, 0, 0x1000_0001, 0})

	sv.SysMuxHandler(sim.ExcReturn(), 0)

	fmt.Fprintf(out, "sfsr after recovery: %#08x\n", sim.SFSR())

	return nil
}

// scenarioSCR reproduces a SecureFault at the SCB SCR address, the special
// case fault recovery synthesizes a region for.
func scenarioSCR(out io.Writer, _ *log.Logger) error {
	sv, sim, err := newSupervisor()
	if err != nil {
		return err
	}

	sim.SetIPSR(int32(-9) + 16)
	sim.SetSFSR(hw.SFSRAUVIOL | hw.SFSRSFARVALID)
	sim.SetSFAR(hw.SCBSCRAddr)
	sim.StageFrame(0, [8]uint32{0, 0, 0, 0, 0, 0, 0x1000_0001, 0})

	sv.SysMuxHandler(sim.ExcReturn(), 0)

	fmt.Fprintf(out, "sfsr after recovery: %#08x\n", sim.SFSR())

	return nil
}

// scenarioBitband reproduces a SecureFault inside the SRAM bit-band alias
// window, which must be translated to the shadowed byte before lookup.
func scenarioBitband(out io.Writer, _ *log.Logger) error {
	sv, sim, err := newSupervisor()
	if err != nil {
		return err
	}

	dataACL := region.NewACL(true, true, false, false, false)
	if err := sv.RegisterACL(region.PublicBox, 0x2000_0000, 0x100, dataACL); err != nil {
		return err
	}

	sim.SetIPSR(int32(-9) + 16)
	sim.SetSFSR(hw.SFSRAUVIOL | hw.SFSRSFARVALID)
	sim.SetSFAR(0x2200_0040)
	sim.StageFrame(0, [8]uint32{0, 0, 0, 0, 0, 0, 0x1000_0001, 0})

	sv.SysMuxHandler(sim.ExcReturn(), 0)

	fmt.Fprintf(out, "sfsr after recovery: %#08x\n", sim.SFSR())

	return nil
}

// scenarioDenied reproduces a SecureFault with no covering region anywhere,
// which must halt rather than recover.
func scenarioDenied(out io.Writer, _ *log.Logger) error {
	sv, sim, err := newSupervisor()
	if err != nil {
		return err
	}

	sv.Dispatch.Halt = func(fd dispatch.FaultDescriptor) {
		fmt.Fprintf(out, "halted: %s\n", fd.Reason)
	}

	sim.SetIPSR(int32(-9) + 16)
	sim.SetSFSR(hw.SFSRAUVIOL | hw.SFSRSFARVALID)
	sim.SetSFAR(0x5000_0000)
	sim.StageFrame(0, [8]uint32{0, 0, 0, 0, 0, 0, 0x1000_0001, 0})

	sv.SysMuxHandler(sim.ExcReturn(), 0)

	return nil
}

// scenarioSwitch reproduces a box switch from box 1 to box 0 (the public
// box), observing the dynamic slot contents afterward.
func scenarioSwitch(out io.Writer, _ *log.Logger) error {
	sv, _, err := newSupervisor()
	if err != nil {
		return err
	}

	acl := region.NewACL(true, true, false, false, false)
	for i := 0; i < 5; i++ {
		if err := sv.RegisterACL(region.PublicBox, uint32(0x1000_0000+i*0x100), 0x100, acl); err != nil {
			return err
		}
	}

	if _, _, err := sv.ACLSRAM(1, 64, 128, acl, acl); err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		if err := sv.RegisterACL(1, uint32(0x3000_0000+i*0x100), 0x100, acl); err != nil {
			return err
		}
	}

	if err := sv.Table.Validate(); err != nil {
		return err
	}

	if err := sv.Switch(1, region.PublicBox); err != nil {
		return err
	}

	fmt.Fprintf(out, "active box after switch: %d\n", sv.ActiveBox())
	fmt.Fprintf(out, "dynamic regions installed: %d\n", len(sv.Slots.DynamicRegions()))

	return nil
}
