package fault

import (
	"errors"
	"testing"

	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/pageheap"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/slot"
)

type fakeAllocator struct {
	pages []pageheap.PageRegion
}

func (f *fakeAllocator) GetActiveRegionForAddress(addr uint32) (pageheap.PageRegion, bool) {
	for _, p := range f.pages {
		if addr >= p.Start && addr < p.End {
			return p, true
		}
	}

	return pageheap.PageRegion{}, false
}

func (f *fakeAllocator) RegisterFault(uint32) {}

func (f *fakeAllocator) IterateActivePages(visit func(pageheap.PageRegion) bool, _ pageheap.Direction) {
	for _, p := range f.pages {
		if !visit(p) {
			return
		}
	}
}

func newRecoverer(t *testing.T, alloc pageheap.Allocator) (*Recoverer, *region.Table, *slot.Cache) {
	t.Helper()

	sim := hw.NewSimulated(8)
	tbl := region.NewTable(3)
	slots := slot.NewCache(sim, 8, 4)
	pages := pageheap.NewAdapter(alloc, slots)

	return NewRecoverer(tbl, slots, pages, hw.SCBSCRAddr), tbl, slots
}

func TestRecover_SCRSpecialCase(t *testing.T) {
	t.Parallel()

	r, _, slots := newRecoverer(t, nil)

	reg, err := r.Recover(hw.SCBSCRAddr, 4, region.PublicBox)
	if err != nil {
		t.Fatalf("Recover: %s", err)
	}

	if !reg.Contains(hw.SCBSCRAddr, 4) {
		t.Errorf("synthesized region does not cover SCR address")
	}

	if !slots.Contains(reg) {
		t.Error("expected synthesized region installed in slot cache")
	}
}

func TestRecover_PageHeap(t *testing.T) {
	t.Parallel()

	alloc := &fakeAllocator{pages: []pageheap.PageRegion{{Start: 0x1000, End: 0x2000, PageID: 1}}}
	r, _, _ := newRecoverer(t, alloc)

	reg, err := r.Recover(0x1500, 4, region.PublicBox)
	if err != nil {
		t.Fatalf("Recover: %s", err)
	}

	if reg.Start != 0x1000 {
		t.Errorf("Recover returned region start %#x, want 0x1000", reg.Start)
	}
}

func TestRecover_BitbandTranslation(t *testing.T) {
	t.Parallel()

	r, tbl, _ := newRecoverer(t, nil)

	acl := region.NewACL(true, true, false, false, false)
	if err := tbl.Register(region.Box{
		ID:      region.PublicBox,
		Regions: []region.Region{{Start: 0x2000_0000, End: 0x2000_0100, ACL: acl}},
	}); err != nil {
		t.Fatalf("Register: %s", err)
	}

	reg, err := r.Recover(0x2200_0040, 4, region.PublicBox)
	if err != nil {
		t.Fatalf("Recover: %s", err)
	}

	if reg.Start != 0x2000_0000 {
		t.Errorf("Recover returned region start %#x, want 0x2000_0000", reg.Start)
	}
}

func TestRecover_ActiveBoxThenPublic(t *testing.T) {
	t.Parallel()

	r, tbl, _ := newRecoverer(t, nil)
	acl := region.NewACL(true, true, false, false, false)

	if err := tbl.Register(region.Box{
		ID:      2,
		Regions: []region.Region{{Start: 0x4000_0000, End: 0x4000_1000, ACL: acl}},
		Stack:   region.Extent{Start: 1, End: 2},
		BSS:     region.Extent{Start: 2, End: 3},
	}); err != nil {
		t.Fatalf("Register: %s", err)
	}

	reg, err := r.Recover(0x4000_0100, 4, 2)
	if err != nil {
		t.Fatalf("Recover: %s", err)
	}

	if reg.Start != 0x4000_0000 {
		t.Errorf("Recover returned %#x, want active box region", reg.Start)
	}
}

func TestRecover_DeniedNoCoveringRegion(t *testing.T) {
	t.Parallel()

	r, _, _ := newRecoverer(t, nil)

	_, err := r.Recover(0x5000_0000, 4, region.PublicBox)

	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %v", err)
	}

	if denied.Reason != DenialNoCoveringRegion {
		t.Errorf("Reason = %v, want DenialNoCoveringRegion", denied.Reason)
	}

	if !errors.Is(err, ErrDenied) {
		t.Error("expected errors.Is(err, ErrDenied)")
	}
}

func TestRecover_DeniedSizeOverflow(t *testing.T) {
	t.Parallel()

	r, tbl, _ := newRecoverer(t, nil)
	acl := region.NewACL(true, true, false, false, false)

	if err := tbl.Register(region.Box{
		ID:      region.PublicBox,
		Regions: []region.Region{{Start: 0x1000, End: 0x1004, ACL: acl}},
	}); err != nil {
		t.Fatalf("Register: %s", err)
	}

	_, err := r.Recover(0x1002, 8, region.PublicBox)

	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != DenialSizeOverflow {
		t.Fatalf("expected DenialSizeOverflow, got %v", err)
	}
}

func TestDeriveAccessKind_Execute(t *testing.T) {
	t.Parallel()

	// A fetch from a non-executable region faults at the instruction's own
	// address; the recovered PC's Thumb bit must be masked off first.
	if got := DeriveAccessKind(0x0002_0001, 0x0002_0000); got != AccessExecute {
		t.Errorf("DeriveAccessKind = %v, want AccessExecute", got)
	}
}

func TestDeriveAccessKind_ReadWrite(t *testing.T) {
	t.Parallel()

	if got := DeriveAccessKind(0x0002_0000, 0x9000_0000); got != AccessReadWrite {
		t.Errorf("DeriveAccessKind = %v, want AccessReadWrite", got)
	}
}

func TestRecover_DeniedInsufficientACL(t *testing.T) {
	t.Parallel()

	r, tbl, _ := newRecoverer(t, nil)
	noAccess := region.NewACL(false, false, false, false, false)

	if err := tbl.Register(region.Box{
		ID:      region.PublicBox,
		Regions: []region.Region{{Start: 0x1000, End: 0x2000, ACL: noAccess}},
	}); err != nil {
		t.Fatalf("Register: %s", err)
	}

	_, err := r.Recover(0x1500, 4, region.PublicBox)

	var denied *DeniedError
	if !errors.As(err, &denied) || denied.Reason != DenialInsufficientACL {
		t.Fatalf("expected DenialInsufficientACL, got %v", err)
	}
}
