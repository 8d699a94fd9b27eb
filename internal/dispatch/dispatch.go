// Package dispatch is the system-exception entry point: it classifies the
// exception, extracts the faulting frame, delegates to fault recovery for
// SecureFault, and halts for everything else. There is no persistent state
// across invocations; each call is a single atomic fault-then-recover-or-halt.
package dispatch

import (
	"errors"
	"fmt"

	"github.com/arm-supervisor/vmpu/internal/fault"
	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/log"
)

// ExceptionID is the signed exception number obtained from IPSR minus the
// NVIC vector offset (CMSIS IRQn numbering: system exceptions are
// negative).
type ExceptionID int32

// System exception IDs, per the ARMv8-M vector table.
const (
	NMI          ExceptionID = -14
	HardFault    ExceptionID = -13
	MemManage    ExceptionID = -12
	BusFault     ExceptionID = -11
	UsageFault   ExceptionID = -10
	SecureFault  ExceptionID = -9
	SVCall       ExceptionID = -5
	DebugMonitor ExceptionID = -4
	PendSV       ExceptionID = -2
	SysTick      ExceptionID = -1

	nvicVectorBase int32 = 16
)

// HaltReason is why the dispatcher halted rather than resuming.
type HaltReason int

const (
	HaltFatalFault HaltReason = iota
	HaltPermissionDenied
	HaltNoHandlerRegistered
	HaltNotASystemInterrupt
	HaltReentrantFault
)

func (h HaltReason) String() string {
	switch h {
	case HaltFatalFault:
		return "fatal fault"
	case HaltPermissionDenied:
		return "permission denied"
	case HaltNoHandlerRegistered:
		return "no handler registered"
	case HaltNotASystemInterrupt:
		return "not a system interrupt"
	case HaltReentrantFault:
		return "reentrant secure fault"
	default:
		return "unknown"
	}
}

// FaultDescriptor is the structured record logged before a halt.
type FaultDescriptor struct {
	Reason HaltReason
	ID     ExceptionID
	PC     uint32
	SFAR   uint32
	SFSR   uint32
	Box    uint8

	// Denial is populated when Reason is HaltPermissionDenied: why fault
	// recovery refused to install a region.
	Denial fault.DenialReason

	// Kind and Thumb supplement the descriptor with the execute-never-
	// vs-read/write distinction and the Thumb-mode bit of the recovered
	// PC.
	Kind  fault.AccessKind
	Thumb bool
}

// ErrHalted is the sentinel error for a dispatcher halt. SysMux itself
// returns only an exc_return value and reports halts through Halt, not
// through ErrHalted.
var ErrHalted = errors.New("dispatch: halted")

// ActiveBoxFunc reads the process-wide active-box pointer, owned by the
// box-switch component and the external call-gate layer.
type ActiveBoxFunc func() uint8

// Dispatcher wires the hardware driver and fault recovery into the
// sys_mux entry point.
type Dispatcher struct {
	HW        hw.Hardware
	Recoverer *fault.Recoverer
	ActiveBox ActiveBoxFunc

	// Halt is called on any unrecoverable path with a populated
	// descriptor. NewDispatcher defaults it to DefaultHalt, which logs and
	// returns; nothing in this package stops the process. Tests substitute
	// a stub that records the call.
	Halt func(FaultDescriptor)

	inFlight bool // Reentrant-fault guard.

	log *log.Logger
}

// NewDispatcher creates a Dispatcher. If halt is nil, DefaultHalt is used.
func NewDispatcher(hardware hw.Hardware, recoverer *fault.Recoverer, activeBox ActiveBoxFunc, halt func(FaultDescriptor)) *Dispatcher {
	if halt == nil {
		halt = DefaultHalt(log.DefaultLogger())
	}

	return &Dispatcher{
		HW:        hardware,
		Recoverer: recoverer,
		ActiveBox: activeBox,
		Halt:      halt,
		log:       log.DefaultLogger(),
	}
}

// DefaultHalt logs the fault descriptor at Error level; it never returns
// in production firmware, but here it is just a log call so tests and the
// demo CLI can observe it without exiting the process.
func DefaultHalt(logger *log.Logger) func(FaultDescriptor) {
	return func(fd FaultDescriptor) {
		logger.Error("HALT",
			"reason", fd.Reason.String(),
			"id", fd.ID,
			"pc", fmt.Sprintf("%#08x", fd.PC),
			"sfar", fmt.Sprintf("%#08x", fd.SFAR),
			"sfsr", fmt.Sprintf("%#08x", fd.SFSR),
			"box", fd.Box,
			"denial", fd.Denial.String(),
			"kind", fd.Kind.String(),
			"thumb", fd.Thumb,
		)
	}
}

// SysMux is the system-exception entry point: sys_mux(exc_return, msp_s).
// It returns the exc_return value to resume from, which is always the
// excReturn it was given: after a recovered SecureFault, resuming with it
// retries the faulting instruction.
func (d *Dispatcher) SysMux(excReturn, mspS uint32) uint32 {
	if d.inFlight {
		d.Halt(FaultDescriptor{Reason: HaltReentrantFault})
		return excReturn
	}

	d.inFlight = true
	defer func() { d.inFlight = false }()

	id := ExceptionID(d.HW.IPSR()) - ExceptionID(nvicVectorBase)
	sp := d.HW.SPFor(excReturn, mspS)

	switch id {
	case NMI, HardFault, MemManage, BusFault, UsageFault, DebugMonitor:
		d.Halt(FaultDescriptor{Reason: HaltFatalFault, ID: id})
		return excReturn

	case SecureFault:
		return d.handleSecureFault(id, excReturn, sp)

	case SVCall, PendSV, SysTick:
		d.Halt(FaultDescriptor{Reason: HaltNoHandlerRegistered, ID: id})
		return excReturn

	default:
		d.Halt(FaultDescriptor{Reason: HaltNotASystemInterrupt, ID: id})
		return excReturn
	}
}

func (d *Dispatcher) handleSecureFault(id ExceptionID, excReturn, sp uint32) uint32 {
	sfsr := d.HW.SFSR()
	sfar := d.HW.SFAR()

	const required = hw.SFSRAUVIOL | hw.SFSRSFARVALID
	if sfsr&required != required {
		d.Halt(FaultDescriptor{Reason: HaltFatalFault, ID: id, SFSR: sfsr, SFAR: sfar})
		return excReturn
	}

	// sp may derive from an attacker-controlled PSP (SPFor, above); use the
	// unprivileged load so a Non-secure caller cannot trick the handler
	// into reading Secure memory through it.
	pc := d.HW.ReadFrameWordUnprivileged(sp, 6)
	thumb := pc&1 != 0
	kind := fault.DeriveAccessKind(pc, sfar)

	reg, err := d.Recoverer.Recover(sfar, 4, d.ActiveBox())
	if err != nil {
		var denied *fault.DeniedError

		reason := fault.DenialNoCoveringRegion
		if errors.As(err, &denied) {
			reason = denied.Reason
		}

		d.Halt(FaultDescriptor{
			Reason: HaltPermissionDenied,
			ID:     id,
			PC:     pc,
			SFAR:   sfar,
			SFSR:   sfsr,
			Box:    d.ActiveBox(),
			Denial: reason,
			Kind:   kind,
			Thumb:  thumb,
		})

		return excReturn
	}

	d.log.Debug("dispatch: recovered secure fault", "sfar", fmt.Sprintf("%#08x", sfar), "region", reg)

	d.HW.ClearSFSR()
	d.HW.Barrier()

	return excReturn
}
