package region

// table.go owns the per-box static ACL arrays built at init and answers
// "which region covers address X in box B?".

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by FindForAddress when no region in the box
// covers the address.
var ErrNotFound = errors.New("region: not found")

// ErrOverlap is returned by Validate when two regions of the same box
// overlap. Regions are prohibited from overlapping; nothing in the
// recovery path checks this at runtime, so Validate checks it once, after
// all boxes are registered.
var ErrOverlap = errors.New("region: overlapping regions")

// Table holds the static region arrays for every box, indexed by box id.
// It does not mutate after the init sequence locks the slot cache;
// FindForAddress and GetForBox are read-only from then on.
type Table struct {
	boxes []Box
}

// NewTable creates an empty table sized for n boxes (0..n-1).
func NewTable(n int) *Table {
	return &Table{boxes: make([]Box, n)}
}

// Register installs a box's static regions and extents. It is an init-time
// operation; it does not check for overlaps by itself — call Validate once
// all boxes are registered.
func (t *Table) Register(box Box) error {
	if int(box.ID) >= len(t.boxes) {
		return fmt.Errorf("region: box id %d out of range (have %d boxes)", box.ID, len(t.boxes))
	}

	t.boxes[box.ID] = box

	return nil
}

// Validate checks that regions within each box are pairwise disjoint, and
// that every box other than box 0 has a non-empty stack and bss extent.
func (t *Table) Validate() error {
	for _, box := range t.boxes {
		for i := range box.Regions {
			for j := i + 1; j < len(box.Regions); j++ {
				if overlaps(box.Regions[i], box.Regions[j]) {
					return fmt.Errorf("%w: box %d regions %d,%d", ErrOverlap, box.ID, i, j)
				}
			}
		}

		if box.ID != PublicBox {
			if box.Stack.Start >= box.Stack.End {
				return fmt.Errorf("region: box %d: empty stack extent", box.ID)
			}

			if box.BSS.Start >= box.BSS.End {
				return fmt.Errorf("region: box %d: empty bss extent", box.ID)
			}
		}
	}

	return nil
}

func overlaps(a, b Region) bool {
	return a.Start < b.End && b.Start < a.End
}

// FindForAddress performs a linear scan of the box's static regions,
// returning the first region that covers addr. Behavior is undefined if
// regions overlap (prohibited, and checked by Validate).
func (t *Table) FindForAddress(box uint8, addr uint32) (Region, error) {
	if int(box) >= len(t.boxes) {
		return Region{}, fmt.Errorf("%w: box %d out of range", ErrNotFound, box)
	}

	for _, r := range t.boxes[box].Regions {
		if addr >= r.Start && addr < r.End {
			return r, nil
		}
	}

	return Region{}, fmt.Errorf("%w: box %d addr %#08x", ErrNotFound, box, addr)
}

// GetForBox returns the ordered region slice for a box and its length. By
// convention, for non-public boxes the first element is the stack+context
// block used by the box-switch component.
func (t *Table) GetForBox(box uint8) ([]Region, int) {
	if int(box) >= len(t.boxes) {
		return nil, 0
	}

	regions := t.boxes[box].Regions

	return regions, len(regions)
}

// Box returns the full box record, used by init and box-switch to reach
// the stack/bss extents.
func (t *Table) Box(id uint8) (Box, bool) {
	if int(id) >= len(t.boxes) {
		return Box{}, false
	}

	return t.boxes[id], true
}

// NumBoxes returns the number of boxes the table was sized for.
func (t *Table) NumBoxes() int {
	return len(t.boxes)
}

// BoxForEntryPoint resolves which box owns a given entry-point PC. It is a
// read-only query over the tables already built by init; used by the
// external call-gate layer to resolve the target box of a gate call.
func (t *Table) BoxForEntryPoint(pc uint32) (uint8, bool) {
	for _, box := range t.boxes {
		for _, r := range box.Regions {
			if pc >= r.Start && pc < r.End && (r.ACL.SecureExecute() || r.ACL.UserExecute()) {
				return box.ID, true
			}
		}
	}

	return 0, false
}
