// Package slot tracks the small, ordered set of hardware protection slots
// currently programmed. It is the sole owner of slot state; the rest of
// the supervisor only pushes regions into it or invalidates it.
package slot

import (
	"errors"
	"fmt"

	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/log"
	"github.com/arm-supervisor/vmpu/internal/region"
)

// Advisory priorities, highest first. These are documentation of intent,
// not a heap key — they never reorder an eviction; see Push.
const (
	PriorityStack           uint8 = 255
	PriorityPage            uint8 = 100
	PriorityFaultingStatic  uint8 = 3
	PriorityActiveBoxRegion uint8 = 2
	PriorityPublicRegion    uint8 = 1
)

// ErrLocked is returned by SetStatic once the static slots have been
// frozen by Lock.
var ErrLocked = errors.New("slot: static slots are locked")

// entry is one hardware slot's bookkeeping: the region it holds, the
// advisory priority it was pushed with, and whether the slot is occupied
// (false means empty).
type entry struct {
	region   region.Region
	priority uint8
	occupied bool
}

// Cache is the ordered set of hardware protection slots. Slots
// [0, numStatic) are static and only written at init, via SetStatic,
// before Lock is called. The rest form a round-robin dynamic pool written
// by Push.
type Cache struct {
	hw        hw.Hardware
	slots     []entry
	numStatic int
	cursor    int // Index of the next dynamic slot to write, relative to numStatic.
	wrapped   bool
	locked    bool

	log *log.Logger
}

// NewCache creates a Cache with numSlots total hardware slots, the first
// numStatic of which are reserved as static.
func NewCache(hardware hw.Hardware, numSlots, numStatic int) *Cache {
	return &Cache{
		hw:        hardware,
		slots:     make([]entry, numSlots),
		numStatic: numStatic,
		log:       log.DefaultLogger(),
	}
}

// SetStatic writes a region into a static slot. It is an init-only
// operation and errors once Lock has been called.
func (c *Cache) SetStatic(index int, r region.Region) error {
	if c.locked {
		return ErrLocked
	}

	if index < 0 || index >= c.numStatic {
		return fmt.Errorf("slot: static index %d out of range [0,%d)", index, c.numStatic)
	}

	if err := c.hw.MPUSet(index, r); err != nil {
		return fmt.Errorf("slot: set static %d: %w", index, err)
	}

	c.slots[index] = entry{region: r, priority: 0, occupied: true}

	return nil
}

// Lock freezes the static slots. After Lock, SetStatic always fails.
func (c *Cache) Lock() {
	c.locked = true
}

// Invalidate clears all dynamic slots (forget only; the hardware driver
// disables them). Static slots are untouched.
func (c *Cache) Invalidate() {
	c.hw.MPUInvalidate()

	for i := c.numStatic; i < len(c.slots); i++ {
		c.slots[i] = entry{}
	}

	c.cursor = 0
	c.wrapped = false

	c.log.Debug("slot: invalidated dynamic slots")
}

// BeginBatch resets the wrap-once bookkeeping for a new fault-recovery or
// box-switch batch of pushes, without touching currently-programmed slots.
// Box-switch always calls Invalidate first, which already resets this;
// fault recovery calls BeginBatch at the start of every recovery, which
// pushes into the next slot without invalidating the others.
func (c *Cache) BeginBatch() {
	c.wrapped = false
}

// Push writes region into the next dynamic slot in round-robin order. It
// returns false iff the cursor had already wrapped once during the current
// batch; it returns true otherwise, including on the wrap transition
// itself. Callers stop pushing once they see false.
func (c *Cache) Push(r region.Region, priority uint8) bool {
	if c.wrapped {
		return false
	}

	numDynamic := len(c.slots) - c.numStatic
	if numDynamic <= 0 {
		c.wrapped = true
		return false
	}

	idx := c.numStatic + c.cursor

	if err := c.hw.MPUSet(idx, r); err != nil {
		c.log.Error("slot: push failed", "slot", idx, "err", err)
		return false
	}

	c.slots[idx] = entry{region: r, priority: priority, occupied: true}

	c.cursor++
	if c.cursor >= numDynamic {
		c.cursor = 0
		c.wrapped = true
	}

	return true
}

// Contains reports whether r (compared by address range) is currently
// installed in any slot, static or dynamic.
func (c *Cache) Contains(r region.Region) bool {
	for _, e := range c.slots {
		if e.occupied && e.region.Start == r.Start && e.region.End == r.End {
			return true
		}
	}

	return false
}

// DynamicRegions returns the regions currently held in dynamic slots, in
// slot order, for tests asserting push ordering.
func (c *Cache) DynamicRegions() []region.Region {
	out := make([]region.Region, 0, len(c.slots)-c.numStatic)

	for i := c.numStatic; i < len(c.slots); i++ {
		if c.slots[i].occupied {
			out = append(out, c.slots[i].region)
		}
	}

	return out
}

// NumSlots and NumStatic expose the cache's fixed dimensions.
func (c *Cache) NumSlots() int  { return len(c.slots) }
func (c *Cache) NumStatic() int { return c.numStatic }
