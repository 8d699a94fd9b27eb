// Package layout implements box SRAM allocation done at init: each box's
// stack and bss extent is carved out of the SRAM pool with guard bands.
// It does not program any slots; supervisor.ArchInit programs the static
// slots and locks the slot cache.
package layout

import (
	"fmt"

	"github.com/arm-supervisor/vmpu/internal/region"
)

// GuardBand is the reserved gap between stack/bss extents, sized to catch
// adjacent overflows.
const GuardBand uint32 = 32

// StackAlignment is the architectural alignment stack extents are rounded
// up to. MinStackFloor is the minimum stack size regardless of request.
const (
	StackAlignment uint32 = 8
	MinStackFloor  uint32 = 128
)

// Cursor is the monotonically increasing SRAM-layout cursor: it never
// decreases, so boxes added later get higher addresses. It is process-wide
// and written only during init; after init it is read-only.
type Cursor struct {
	base        uint32
	cur         uint32
	initialized bool
}

// NewCursor creates a Cursor. The base address is set on the first call to
// ACLSRAM.
func NewCursor(bssBoxesStart uint32) *Cursor {
	return &Cursor{base: bssBoxesStart}
}

// roundUp rounds v up to the next multiple of align.
func roundUp(v, align uint32) uint32 {
	if align == 0 {
		return v
	}

	rem := v % align

	if rem == 0 {
		return v
	}

	return v + (align - rem)
}

// Allocation is the full set of boundaries ACLSRAM computed for one box.
type Allocation struct {
	StackStart uint32
	StackTop   uint32
	BSSStart   uint32
	BSSEnd     uint32
}

// ACLSRAM allocates a stack and bss extent for box, returning the bss
// start address and the stack's top address. Boxes must be processed in
// ascending id order — the cursor only advances.
//
// The guard band separates consecutive boxes' allocations from each other,
// not a box's own stack from its own bss: a box's bss begins immediately
// after its own stack, and the guard is paid once, after bss, setting up
// the next box's leading guard.
func (c *Cursor) ACLSRAM(bssSize, stackSize uint32) (bssStart, stackTop uint32, err error) {
	alloc, err := c.allocate(bssSize, stackSize)
	if err != nil {
		return 0, 0, err
	}

	return alloc.BSSStart, alloc.StackTop, nil
}

func (c *Cursor) allocate(bssSize, stackSize uint32) (Allocation, error) {
	if bssSize == 0 {
		return Allocation{}, fmt.Errorf("layout: bss_size must be > 0")
	}

	if !c.initialized {
		c.cur = roundUp(c.base, StackAlignment) + GuardBand
		c.initialized = true
	}

	stackSize = roundUp(stackSize, StackAlignment)
	if stackSize < MinStackFloor {
		stackSize = MinStackFloor
	}

	stackStart := c.cur
	stackTop := stackStart + stackSize

	bssStart := stackTop
	bssSize = roundUp(bssSize, StackAlignment)
	bssEnd := bssStart + bssSize

	c.cur = bssEnd + GuardBand

	return Allocation{
		StackStart: stackStart,
		StackTop:   stackTop,
		BSSStart:   bssStart,
		BSSEnd:     bssEnd,
	}, nil
}

// Allocate is like ACLSRAM but returns the full Allocation, letting callers
// build both Region values without re-deriving the rounded stack size.
func (c *Cursor) Allocate(bssSize, stackSize uint32) (Allocation, error) {
	return c.allocate(bssSize, stackSize)
}

// RegionsFor builds the stack and bss Region values for a box from an
// Allocation, so callers can register them with the region table.
func RegionsFor(alloc Allocation, stackACL, bssACL region.ACLWord) (stack, bss region.Region) {
	stack = region.Region{Start: alloc.StackStart, End: alloc.StackTop, ACL: stackACL}
	bss = region.Region{Start: alloc.BSSStart, End: alloc.BSSEnd, ACL: bssACL}

	return stack, bss
}

// OrderBoxes returns the identity permutation, preserving box 0 at
// position 0. It is a hook for a future scheduler-like ordering of boxes;
// its real policy is left undefined — do not guess intent here.
func OrderBoxes(out []uint8, n int) {
	for i := 0; i < n && i < len(out); i++ {
		out[i] = uint8(i)
	}
}
