// Package pageheap adapts the external page allocator's iteration and
// fault-reporting API into pushes against the slot cache. It is the sole
// consumer of the allocator, the way internal/vm's MMIO controller is the
// sole consumer of device drivers.
package pageheap

import (
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/slot"
)

// PageConfigHint is the sentinel ConfigHint value the hardware driver
// documents for page-heap-backed regions. Its meaning beyond "not a
// static ACL region" is opaque here and deferred to the driver layer.
const PageConfigHint uint8 = 1

// ACL granted to a page-backed region: a faulted page is mapped in with
// full user read/write, matching the allocator's own access model; it is
// not executable.
var pageACL = region.NewACL(true, true, false, false, false)

// Direction controls the iteration order of IterateActivePages.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// PageRegion describes an active allocator page covering [Start, End).
type PageRegion struct {
	Start  uint32
	End    uint32
	PageID uint32
}

// Allocator is the external page-allocator collaborator consumed by this
// package. Its internal bookkeeping is out of scope; only this query
// surface is consumed.
type Allocator interface {
	// GetActiveRegionForAddress reports the active page covering addr, if
	// any.
	GetActiveRegionForAddress(addr uint32) (PageRegion, bool)

	// RegisterFault records a fault within the active page pageID.
	RegisterFault(pageID uint32)

	// IterateActivePages visits every active page in the given direction.
	// The visitor returns false to stop iteration early.
	IterateActivePages(visit func(PageRegion) bool, dir Direction)
}

// Adapter is the thin view over the allocator used by fault recovery and
// box switch.
type Adapter struct {
	alloc Allocator
	slots *slot.Cache
}

// NewAdapter creates an Adapter wrapping alloc and pushing into slots.
func NewAdapter(alloc Allocator, slots *slot.Cache) *Adapter {
	return &Adapter{alloc: alloc, slots: slots}
}

// Lookup returns the active page covering addr, if any.
func (a *Adapter) Lookup(addr uint32) (PageRegion, bool) {
	if a.alloc == nil {
		return PageRegion{}, false
	}

	return a.alloc.GetActiveRegionForAddress(addr)
}

// RegisterFault forwards a fault report to the allocator.
func (a *Adapter) RegisterFault(pageID uint32) {
	if a.alloc != nil {
		a.alloc.RegisterFault(pageID)
	}
}

// PushActivePages pushes every active allocator page into the slot cache
// at page priority, stopping as soon as the cache reports it has wrapped.
// Used by box switch.
func (a *Adapter) PushActivePages() {
	if a.alloc == nil {
		return
	}

	a.alloc.IterateActivePages(func(p PageRegion) bool {
		return a.pushPage(p)
	}, Forward)
}

func (a *Adapter) pushPage(p PageRegion) bool {
	return a.slots.Push(RegionFor(p), slot.PriorityPage)
}

// RegionFor converts an allocator page into the Region representation
// fault recovery and box switch push into the slot cache.
func RegionFor(p PageRegion) region.Region {
	return region.Region{
		Start:      p.Start,
		End:        p.End,
		ACL:        pageACL,
		ConfigHint: PageConfigHint,
	}
}
