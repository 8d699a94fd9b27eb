// Package hw is the hardware driver abstraction: masked access to MPU,
// SAU, and SCB registers, and to the faulting thread's stacked frame. It
// is a thin interface; the real target programs actual ARMv8-M registers,
// but this module ships a Simulated backend so the recovery algorithm
// above it is exercised end to end, the way a simulated memory bus stands
// in for real hardware.
package hw

import "github.com/arm-supervisor/vmpu/internal/region"

// Hardware is the register-poking surface the rest of the supervisor is
// built against. A production firmware build swaps Simulated for a real
// MMIO-backed implementation without touching any other package.
type Hardware interface {
	// MPUSet programs an MPU slot with a region. SAUSet does the same for
	// the SAU. Both insert an architectural barrier (see Barrier) as part
	// of committing the write.
	MPUSet(slot int, r region.Region) error
	SAUSet(slot int, r region.Region) error

	// MPUInvalidate disables the dynamic MPU slots in hardware. It does
	// not touch the cache's bookkeeping; that is the slot package's job.
	MPUInvalidate()

	// ReadFrameWord reads one word at the given offset (in words) from the
	// stacked exception frame at sp. A bad offset returns the sentinel
	// zero rather than an error — callers must treat a recovered PC as
	// untrusted regardless.
	ReadFrameWord(sp uint32, offset int) uint32

	// ReadFrameWordUnprivileged is the unprivileged-load variant, used so
	// the handler cannot be tricked into reading Secure memory via an
	// attacker-controlled sp.
	ReadFrameWordUnprivileged(sp uint32, offset int) uint32

	// IPSR returns the raw IPSR register (the active exception number).
	IPSR() int32

	// ExcReturn returns the EXC_RETURN value of the currently-handled
	// exception.
	ExcReturn() uint32

	// SPFor selects among the four stack pointers (secure/non-secure x
	// MSP/PSP) using the exception-return value's bits.
	SPFor(excReturn uint32, mspS uint32) uint32

	// Barrier issues the architectural barrier required after a burst of
	// slot writes and before returning from the exception dispatcher.
	Barrier()

	// SFSR, SFAR, and ClearSFSR give the dispatcher direct access to the
	// SAU fault-status and fault-address registers.
	SFSR() uint32
	SFAR() uint32
	ClearSFSR()
}

// EXC_RETURN bit layout (ARMv8-M Architecture Reference Manual, B3.19):
// bit 2 selects MSP (0) vs PSP (1); bit 6 selects Secure (0) vs Non-secure
// (1) stack, present only in EXC_RETURN values produced in the Secure
// state.
const (
	ExcReturnModeBit   uint32 = 1 << 2 // 0: Handler used MSP; 1: used PSP.
	ExcReturnSecureBit uint32 = 1 << 6 // 0: Secure stack; 1: Non-secure stack.
)

// SCB register addresses consumed by the fault-recovery special case and
// the dispatcher.
const (
	SCBAIRCRAddr uint32 = 0xE000_ED0C
	SCBSHCSRAddr uint32 = 0xE000_ED24
	SCBSCRAddr   uint32 = 0xE000_ED10
	SAUSFSRAddr  uint32 = 0xE000_EDE4
	SAUSFARAddr  uint32 = 0xE000_EDE8
)

// SFSR bits relevant to the SecureFault classification.
const (
	SFSRAUVIOL    uint32 = 1 << 0
	SFSRSFARVALID uint32 = 1 << 7
)
