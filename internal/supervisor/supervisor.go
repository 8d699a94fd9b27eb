// Package supervisor assembles the region table, slot cache, page-heap
// adapter, SRAM layout cursor, box switcher, fault recoverer, and
// exception dispatcher into the public entry points a call-gate
// trampoline and an exception vector would call.
package supervisor

import (
	"fmt"
	"sync/atomic"

	"github.com/arm-supervisor/vmpu/internal/box"
	"github.com/arm-supervisor/vmpu/internal/dispatch"
	"github.com/arm-supervisor/vmpu/internal/fault"
	"github.com/arm-supervisor/vmpu/internal/hw"
	"github.com/arm-supervisor/vmpu/internal/layout"
	"github.com/arm-supervisor/vmpu/internal/log"
	"github.com/arm-supervisor/vmpu/internal/pageheap"
	"github.com/arm-supervisor/vmpu/internal/region"
	"github.com/arm-supervisor/vmpu/internal/slot"
)

// Config controls how New sizes the underlying slot cache and SRAM
// cursor. Option functions mutate it; see the With* functions below.
type Config struct {
	NumBoxes  int
	NumSlots  int
	NumStatic int
	SRAMBase  uint32
	SCRAddr   uint32
	Allocator pageheap.Allocator
	Hardware  hw.Hardware
}

// OptionFn configures a Config via a functional-options constructor.
type OptionFn func(*Config)

// WithBoxes sets the number of boxes the supervisor is sized for.
func WithBoxes(n int) OptionFn { return func(c *Config) { c.NumBoxes = n } }

// WithSlots sets the total and static hardware protection-slot counts.
func WithSlots(total, static int) OptionFn {
	return func(c *Config) { c.NumSlots, c.NumStatic = total, static }
}

// WithSRAMBase sets the base address boxes' stack/bss extents are carved
// from.
func WithSRAMBase(base uint32) OptionFn { return func(c *Config) { c.SRAMBase = base } }

// WithSCRAddr sets the SCB SCR address used by the fault-recovery special
// case.
func WithSCRAddr(addr uint32) OptionFn { return func(c *Config) { c.SCRAddr = addr } }

// WithAllocator wires an external page allocator. Omit it and the
// supervisor runs with no page-heap-backed recovery at all.
func WithAllocator(a pageheap.Allocator) OptionFn { return func(c *Config) { c.Allocator = a } }

// WithHardware supplies the hardware backend. Tests and the demo CLI pass
// an *hw.Simulated; production firmware would pass a real MMIO-backed
// implementation.
func WithHardware(h hw.Hardware) OptionFn { return func(c *Config) { c.Hardware = h } }

func defaultConfig() Config {
	return Config{
		NumBoxes:  1,
		NumSlots:  8,
		NumStatic: 4,
		SRAMBase:  0x2000_0000,
		SCRAddr:   hw.SCBSCRAddr,
	}
}

// Supervisor is the assembled vMPU runtime: the region table, slot cache,
// page-heap adapter, layout cursor, box switcher, fault recoverer, and
// exception dispatcher, plus the active-box pointer they all read.
type Supervisor struct {
	Table     *region.Table
	Slots     *slot.Cache
	Pages     *pageheap.Adapter
	Layout    *layout.Cursor
	Switcher  *box.Switcher
	Recoverer *fault.Recoverer
	Dispatch  *dispatch.Dispatcher
	HW        hw.Hardware

	activeBox atomic.Uint32

	log *log.Logger
}

// New assembles a Supervisor from options. It does not touch hardware
// until ArchInit is called.
func New(opts ...OptionFn) (*Supervisor, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Hardware == nil {
		return nil, fmt.Errorf("supervisor: no hardware backend configured")
	}

	table := region.NewTable(cfg.NumBoxes)
	slots := slot.NewCache(cfg.Hardware, cfg.NumSlots, cfg.NumStatic)
	pages := pageheap.NewAdapter(cfg.Allocator, slots)
	cursor := layout.NewCursor(cfg.SRAMBase)
	switcher := box.NewSwitcher(table, slots, pages)
	recoverer := fault.NewRecoverer(table, slots, pages, cfg.SCRAddr)

	s := &Supervisor{
		Table:     table,
		Slots:     slots,
		Pages:     pages,
		Layout:    cursor,
		Switcher:  switcher,
		Recoverer: recoverer,
		HW:        cfg.Hardware,
		log:       log.DefaultLogger(),
	}

	s.Dispatch = dispatch.NewDispatcher(cfg.Hardware, recoverer, s.ActiveBox, nil)

	return s, nil
}

// ActiveBox returns the id of the box currently executing. It is the
// callback the dispatcher consults; the call-gate
// trampoline is the only writer, via SetActiveBox.
func (s *Supervisor) ActiveBox() uint8 { return uint8(s.activeBox.Load()) }

// SetActiveBox records which box is about to run. Called by the call-gate
// trampoline before transferring control, and by Switch after a
// successful box-switch.
func (s *Supervisor) SetActiveBox(id uint8) { s.activeBox.Store(uint32(id)) }

// ACLSRAM allocates a box's stack and bss extents, registers the
// corresponding regions with the box's entry in the region table, and
// returns the bss start and stack top addresses.
func (s *Supervisor) ACLSRAM(boxID uint8, bssSize, stackSize uint32, stackACL, bssACL region.ACLWord) (bssStart, stackTop uint32, err error) {
	alloc, err := s.Layout.Allocate(bssSize, stackSize)
	if err != nil {
		return 0, 0, fmt.Errorf("supervisor: acl_sram box %d: %w", boxID, err)
	}

	stackRegion, bssRegion := layout.RegionsFor(alloc, stackACL, bssACL)

	existing, _ := s.Table.Box(boxID)
	existing.ID = boxID
	existing.Stack = region.Extent{Start: alloc.StackStart, End: alloc.StackTop}
	existing.BSS = region.Extent{Start: alloc.BSSStart, End: alloc.BSSEnd}
	existing.Regions = append([]region.Region{stackRegion, bssRegion}, existing.Regions...)

	if err := s.Table.Register(existing); err != nil {
		return 0, 0, fmt.Errorf("supervisor: acl_sram box %d: %w", boxID, err)
	}

	return alloc.BSSStart, alloc.StackTop, nil
}

// RegisterACL adds a static region to a box's region table entry. Called
// for every ACL entry in a box's configuration blob, after ACLSRAM has
// staked out the stack/bss extents.
func (s *Supervisor) RegisterACL(boxID uint8, start, length uint32, acl region.ACLWord) error {
	existing, _ := s.Table.Box(boxID)
	existing.ID = boxID
	existing.Regions = append(existing.Regions, region.Region{Start: start, End: start + length, ACL: acl})

	return s.Table.Register(existing)
}

// ArchInit finishes init: validates the region table, programs the static
// slots from staticRegions in order, and locks the slot cache. It is the last
// call before the supervisor starts taking faults.
func (s *Supervisor) ArchInit(staticRegions []region.Region) error {
	if err := s.Table.Validate(); err != nil {
		return fmt.Errorf("supervisor: arch_init: %w", err)
	}

	for i, r := range staticRegions {
		if err := s.Slots.SetStatic(i, r); err != nil {
			return fmt.Errorf("supervisor: arch_init: %w", err)
		}
	}

	s.Slots.Lock()
	s.log.Debug("supervisor: arch_init complete", "boxes", s.Table.NumBoxes(), "static_slots", len(staticRegions))

	return nil
}

// FindACL resolves the ACL that covers [addr, addr+size) for the currently
// active box, consulting the active box then the public box — the same
// fallback condition Recoverer.Recover uses: box 0 is only consulted when
// the active box has no region covering addr at all, not merely when the
// one it has fails the containment check. It does not install anything
// into the slot cache; callers that want fault recovery's side effects
// should call Recoverer.Recover directly.
func (s *Supervisor) FindACL(addr, size uint32) (region.ACLWord, error) {
	active := s.ActiveBox()

	var (
		r   region.Region
		err error
	)

	if active != region.PublicBox {
		r, err = s.Table.FindForAddress(active, addr)
	}

	if err != nil || active == region.PublicBox {
		r, err = s.Table.FindForAddress(region.PublicBox, addr)
	}

	if err != nil {
		return 0, fmt.Errorf("supervisor: find_acl: %w", err)
	}

	if !r.Contains(addr, size) {
		return 0, fmt.Errorf("supervisor: find_acl: %w", fault.ErrDenied)
	}

	return r.ACL, nil
}

// Switch performs a box-switch from src to dst and updates the active-box
// pointer on success.
func (s *Supervisor) Switch(src, dst uint8) error {
	if err := s.Switcher.Switch(src, dst); err != nil {
		return fmt.Errorf("supervisor: switch %d->%d: %w", src, dst, err)
	}

	s.SetActiveBox(dst)

	return nil
}

// SysMuxHandler is the exception-vector entry point: sys_mux(exc_return,
// msp_s).
func (s *Supervisor) SysMuxHandler(excReturn, mspS uint32) uint32 {
	return s.Dispatch.SysMux(excReturn, mspS)
}
