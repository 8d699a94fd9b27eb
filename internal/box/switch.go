// Package box implements the per-box context switch: on transition
// src→dst, invalidate the dynamic slots and re-push the dst-box static
// stack/context region, the active pages, and dst-box or public ACLs, in
// that order.
package box

import (
	"github.com/arm-supervisor/vmpu/internal/log"
	"github.com/arm-supervisor/vmpu/internal/pageheap"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/slot"
)

// Switcher performs box-switch transitions. It is atomic with respect to
// box code: callers run it inside a call-gate trampoline.
type Switcher struct {
	Table *region.Table
	Slots *slot.Cache
	Pages *pageheap.Adapter

	log *log.Logger
}

// NewSwitcher creates a Switcher.
func NewSwitcher(table *region.Table, slots *slot.Cache, pages *pageheap.Adapter) *Switcher {
	return &Switcher{Table: table, Slots: slots, Pages: pages, log: log.DefaultLogger()}
}

// Switch re-programs the dynamic slots for a transition from src to dst.
// src is advisory, used only for tracing.
func (s *Switcher) Switch(src, dst uint8) error {
	s.log.Debug("box: switch", "src", src, "dst", dst)

	// Step 1: invalidate all dynamic slots.
	s.Slots.Invalidate()

	// Step 2: if dst != 0, push the stack/context region (first element of
	// the box's region slice, by convention) at the highest priority, then
	// advance past it.
	var (
		regions []region.Region
		start   int
	)

	if dst != region.PublicBox {
		dstRegions, n := s.Table.GetForBox(dst)
		regions = dstRegions

		if n > 0 {
			if !s.Slots.Push(regions[0], slot.PriorityStack) {
				return nil
			}

			start = 1
		}
	}

	// Step 3: push every currently active allocator page.
	s.Pages.PushActivePages()

	// Step 4: push the remaining dst-box regions until the cache reports
	// it has wrapped.
	for i := start; i < len(regions); i++ {
		if !s.Slots.Push(regions[i], slot.PriorityActiveBoxRegion) {
			return nil
		}
	}

	// Step 5: if dst == 0, push all box-0 regions.
	if dst == region.PublicBox {
		publicRegions, n := s.Table.GetForBox(region.PublicBox)
		for i := 0; i < n; i++ {
			if !s.Slots.Push(publicRegions[i], slot.PriorityPublicRegion) {
				return nil
			}
		}
	}

	return nil
}
