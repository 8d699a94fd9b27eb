// Package fault implements the recovery algorithm: given a faulting
// address, find a covering allocator page or, failing that, a covering
// region — box-local, then public — and install it via the slot cache.
package fault

import (
	"errors"
	"fmt"

	"github.com/arm-supervisor/vmpu/internal/bitband"
	"github.com/arm-supervisor/vmpu/internal/pageheap"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/slot"
)

// ErrDenied is returned when no region covers the faulting address with
// sufficient access, or the access spills past the end of the region that
// was found.
var ErrDenied = errors.New("fault: access denied")

// DenialReason discriminates why a fault could not be recovered, for the
// halt descriptor's diagnostic dump.
type DenialReason int

const (
	DenialNone DenialReason = iota
	DenialNoCoveringRegion
	DenialSizeOverflow
	DenialInsufficientACL
)

func (d DenialReason) String() string {
	switch d {
	case DenialNoCoveringRegion:
		return "no covering region"
	case DenialSizeOverflow:
		return "access exceeds region bounds"
	case DenialInsufficientACL:
		return "insufficient access control"
	default:
		return "none"
	}
}

// DeniedError carries the reason a fault was not recovered.
type DeniedError struct {
	Reason DenialReason
	Addr   uint32
	Size   uint32
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s: addr=%#08x size=%d", ErrDenied, e.Reason, e.Addr, e.Size)
}

func (e *DeniedError) Unwrap() error { return ErrDenied }

// AccessKind discriminates an execute-never (XN) violation from a
// read/write violation, for the halt descriptor's diagnostic dump. The
// SFSR's AUVIOL bit does not carry this distinction by itself; it is
// derived by the caller from the relationship between the faulting
// address and the recovered PC (see DeriveAccessKind).
type AccessKind int

const (
	AccessReadWrite AccessKind = iota
	AccessExecute
)

func (k AccessKind) String() string {
	switch k {
	case AccessExecute:
		return "execute"
	default:
		return "read/write"
	}
}

// DeriveAccessKind classifies a SecureFault as an instruction fetch (an
// XN violation) versus a data access. A fetch from a non-executable
// region faults at the address of the instruction itself, so the
// faulting address equals the recovered PC once the Thumb bit is
// masked off; anything else is a data read or write at some other
// address.
func DeriveAccessKind(pc, faultAddr uint32) AccessKind {
	if pc&^uint32(1) == faultAddr {
		return AccessExecute
	}

	return AccessReadWrite
}

// scrACL is the permissive ACL synthesized for the SCR special case: a
// concession for a register the non-secure world legitimately pokes.
//
// FIXME: Use SECURE_ACCESS for SCR instead of this blunt read/write
// override; see DESIGN.md Open Questions.
var scrACL = region.NewACL(true, true, false, false, false)

// Recoverer implements the fault-recovery algorithm against a region
// table, a slot cache, and a page-heap adapter.
type Recoverer struct {
	Table    *region.Table
	Slots    *slot.Cache
	Pages    *pageheap.Adapter
	ScrAddr  uint32
	ScrWidth uint32
}

// NewRecoverer creates a Recoverer. scrAddr is the SCB SCR address; the
// synthesized region for it always covers a 4-byte access width.
func NewRecoverer(table *region.Table, slots *slot.Cache, pages *pageheap.Adapter, scrAddr uint32) *Recoverer {
	return &Recoverer{
		Table:    table,
		Slots:    slots,
		Pages:    pages,
		ScrAddr:  scrAddr,
		ScrWidth: 4,
	}
}

// Recover runs the recovery algorithm for a fault at [addr, addr+size)
// while activeBox is executing. It returns the region that was installed,
// or a *DeniedError wrapping ErrDenied. Each call is its own slot-cache
// batch, so its single push always lands in the next round-robin slot.
func (r *Recoverer) Recover(addr, size uint32, activeBox uint8) (region.Region, error) {
	r.Slots.BeginBatch()

	// Step 1: SCR special case.
	if addr == r.ScrAddr {
		reg := region.Region{
			Start: r.ScrAddr,
			End:   r.ScrAddr + r.ScrWidth,
			ACL:   scrACL,
		}

		r.Slots.Push(reg, slot.PriorityFaultingStatic)

		return reg, nil
	}

	// Step 2: bit-band translation.
	lookupAddr := addr
	if bitband.InWindow(addr) {
		lookupAddr = bitband.ToPhysical(addr)
	}

	// Step 3: consult the page adapter.
	if page, ok := r.Pages.Lookup(lookupAddr); ok {
		r.Pages.RegisterFault(page.PageID)

		reg := pageheap.RegionFor(page)
		r.Slots.Push(reg, slot.PriorityPage)

		return reg, nil
	}

	// Step 4: active box first (if not box 0), then box 0.
	var (
		found    region.Region
		err      error
		priority uint8
	)

	if activeBox != region.PublicBox {
		found, err = r.Table.FindForAddress(activeBox, lookupAddr)
		priority = slot.PriorityActiveBoxRegion
	}

	if err != nil || activeBox == region.PublicBox {
		found, err = r.Table.FindForAddress(region.PublicBox, lookupAddr)
		priority = slot.PriorityPublicRegion
	}

	if err != nil {
		return region.Region{}, &DeniedError{Reason: DenialNoCoveringRegion, Addr: addr, Size: size}
	}

	// Step 5: containment check.
	if !found.Contains(lookupAddr, size) {
		return region.Region{}, &DeniedError{Reason: DenialSizeOverflow, Addr: addr, Size: size}
	}

	if !found.ACL.PermitsRead() && !found.ACL.PermitsWrite() {
		return region.Region{}, &DeniedError{Reason: DenialInsufficientACL, Addr: addr, Size: size}
	}

	// Step 6: push and return recovered.
	r.Slots.Push(found, priority)

	return found, nil
}
