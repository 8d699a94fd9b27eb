// Package region holds the vMPU data model: ACL words, regions, and the
// per-box static region tables built at init.
package region

import "fmt"

// ACLWord is a packed access-control bitfield. It is opaque to every
// component except the hardware driver and this package: callers compare
// and combine it with the accessor methods below, never with raw bit
// manipulation of their own.
type ACLWord uint32

// Bit positions within an ACLWord. Bits 0-4 hold the permission flags;
// the bits from ACLAttrShift up hold a size/attributes field whose encoding is
// owned by the hardware driver (component A) and is carried here only as
// an opaque value.
const (
	aclUserRead ACLWord = 1 << iota
	aclUserWrite
	aclUserExecute
	aclSecureExecute
	aclNonSecureCallable

	// ACLAttrShift is where the opaque size/attributes field begins.
	ACLAttrShift = 8
)

// UserRead reports whether unprivileged (Non-secure or user) code may read
// the region.
func (a ACLWord) UserRead() bool { return a&aclUserRead != 0 }

// UserWrite reports whether unprivileged code may write the region.
func (a ACLWord) UserWrite() bool { return a&aclUserWrite != 0 }

// UserExecute reports whether unprivileged code may execute from the region.
func (a ACLWord) UserExecute() bool { return a&aclUserExecute != 0 }

// SecureExecute reports whether Secure-state code may execute from the
// region.
func (a ACLWord) SecureExecute() bool { return a&aclSecureExecute != 0 }

// NonSecureCallable reports whether the region is a non-secure-callable
// (NSC) veneer region.
func (a ACLWord) NonSecureCallable() bool { return a&aclNonSecureCallable != 0 }

// Attrs returns the opaque size/attributes field, meaningful only to the
// hardware driver.
func (a ACLWord) Attrs() uint32 { return uint32(a >> ACLAttrShift) }

// PermitsRead reports whether the ACL permits the read access an
// unprivileged access attempted.
func (a ACLWord) PermitsRead() bool { return a.UserRead() }

// PermitsWrite reports whether the ACL permits the write access an
// unprivileged access attempted.
func (a ACLWord) PermitsWrite() bool { return a.UserWrite() }

func (a ACLWord) String() string {
	return fmt.Sprintf("ACL(%#08x R:%t W:%t X:%t SX:%t NSC:%t)",
		uint32(a), a.UserRead(), a.UserWrite(), a.UserExecute(),
		a.SecureExecute(), a.NonSecureCallable())
}

// NewACL builds an ACLWord from individual permission flags. It exists so
// callers (the fault-recovery SCR special case, tests) don't hand-assemble
// bit patterns.
func NewACL(read, write, userExec, secureExec, nsc bool) ACLWord {
	var a ACLWord

	if read {
		a |= aclUserRead
	}

	if write {
		a |= aclUserWrite
	}

	if userExec {
		a |= aclUserExecute
	}

	if secureExec {
		a |= aclSecureExecute
	}

	if nsc {
		a |= aclNonSecureCallable
	}

	return a
}

// Region is a half-open address interval plus an ACL and an opaque
// hardware-config hint. Regions are immutable after init; identity is
// (box id, index within the box).
type Region struct {
	Start      uint32
	End        uint32
	ACL        ACLWord
	ConfigHint uint8 // Opaque to all but the hardware driver; see DESIGN.md.
}

// Contains reports whether the half-open interval [addr, addr+size) lies
// entirely within the region.
func (r Region) Contains(addr, size uint32) bool {
	if size == 0 {
		size = 1
	}

	end := addr + size

	return addr >= r.Start && end <= r.End && end > addr
}

func (r Region) String() string {
	return fmt.Sprintf("[%#08x,%#08x) %s", r.Start, r.End, r.ACL)
}

// Extent is a half-open address range with no ACL of its own; used for a
// box's stack and bss extents.
type Extent struct {
	Start uint32
	End   uint32
}

func (e Extent) String() string {
	return fmt.Sprintf("[%#08x,%#08x)", e.Start, e.End)
}

// PublicBox is the numeric id of box 0, whose regions are reachable from
// every box.
const PublicBox uint8 = 0

// Box is a numeric isolation domain: an ordered array of static regions
// plus a stack and bss extent. Box 0 (the public box) has no stack/bss
// extent of its own.
type Box struct {
	ID      uint8
	Regions []Region
	Stack   Extent
	BSS     Extent
}

func (b Box) String() string {
	return fmt.Sprintf("box[%d] (%d regions)", b.ID, len(b.Regions))
}
