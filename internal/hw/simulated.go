package hw

import (
	"github.com/arm-supervisor/vmpu/internal/log"
	"github.com/arm-supervisor/vmpu/internal/region"
)

// Simulated is an in-process stand-in for ARMv8-M MPU/SAU/SCB registers
// and the interrupted thread's stack. It is the whole hardware backend for
// this module: there is no NVIC, no clock tree, no linker-provided
// symbols — bring-up and per-SoC setup are out of scope here.
type Simulated struct {
	mpuSlots []region.Region
	sauSlots []region.Region

	// frames simulates addressable memory holding stacked exception
	// frames, keyed by stack-pointer value. Tests and cmd/vmpu-demo write
	// to it directly to stage a fault scenario.
	frames map[uint32][]uint32

	ipsr      int32
	excReturn uint32

	scr  uint32
	sfsr uint32
	sfar uint32

	barriers int // Count of Barrier calls; exercised by tests asserting write ordering.

	log *log.Logger
}

// NewSimulated creates a Simulated hardware backend with n MPU/SAU slots.
func NewSimulated(slots int) *Simulated {
	return &Simulated{
		mpuSlots: make([]region.Region, slots),
		sauSlots: make([]region.Region, slots),
		frames:   make(map[uint32][]uint32),
		log:      log.DefaultLogger(),
	}
}

func (s *Simulated) MPUSet(slot int, r region.Region) error {
	s.mpuSlots[slot] = r
	s.log.Debug("hw: mpu set", "slot", slot, "region", r)
	s.Barrier()

	return nil
}

func (s *Simulated) SAUSet(slot int, r region.Region) error {
	s.sauSlots[slot] = r
	s.log.Debug("hw: sau set", "slot", slot, "region", r)
	s.Barrier()

	return nil
}

// MPUInvalidate clears every simulated MPU slot, static ones included: the
// simulator does not track which slots the cache reserves as static.
func (s *Simulated) MPUInvalidate() {
	for i := range s.mpuSlots {
		s.mpuSlots[i] = region.Region{}
	}

	s.log.Debug("hw: mpu invalidated")
}

// StageFrame installs a simulated 8-word exception frame at sp, for tests
// and demo scenarios that want to drive the dispatcher end to end.
func (s *Simulated) StageFrame(sp uint32, words [8]uint32) {
	s.frames[sp] = words[:]
}

func (s *Simulated) ReadFrameWord(sp uint32, offset int) uint32 {
	frame, ok := s.frames[sp]
	if !ok || offset < 0 || offset >= len(frame) {
		return 0
	}

	return frame[offset]
}

// ReadFrameWordUnprivileged behaves identically to ReadFrameWord in the
// simulator: there is no privilege-tagged memory here to distinguish, but
// the call is kept distinct from ReadFrameWord so a real backend can wire
// the unprivileged load instruction without changing call sites.
func (s *Simulated) ReadFrameWordUnprivileged(sp uint32, offset int) uint32 {
	return s.ReadFrameWord(sp, offset)
}

func (s *Simulated) IPSR() int32 { return s.ipsr }

// SetIPSR stages the simulated IPSR value for the next dispatch.
func (s *Simulated) SetIPSR(v int32) { s.ipsr = v }

func (s *Simulated) ExcReturn() uint32 { return s.excReturn }

// SetExcReturn stages the simulated EXC_RETURN value for the next
// dispatch.
func (s *Simulated) SetExcReturn(v uint32) { s.excReturn = v }

// SPFor selects between the main and process stack pointers using the
// EXC_RETURN mode bit (ExcReturnModeBit). The simulator keeps a single
// flat stack-pointer namespace (mspS is handed in directly, the PSP value
// is derived arithmetically) since there is no real dual memory map to
// select between. ExcReturnSecureBit is not consulted, so the simulator
// distinguishes two stacks, not the four Secure/Non-secure x MSP/PSP ones.
func (s *Simulated) SPFor(excReturn uint32, mspS uint32) uint32 {
	if excReturn&ExcReturnModeBit == 0 {
		return mspS
	}
	// PSP was in use; the simulator stores PSP values in the same frame
	// map keyed by a derived pseudo-address so tests can stage them
	// independently of MSP.
	return mspS ^ 0x1000_0000
}

func (s *Simulated) Barrier() { s.barriers++ }

// Barriers returns the number of architectural barriers issued so far.
func (s *Simulated) Barriers() int { return s.barriers }

// SetSFSR / SetSFAR / SetSCR stage SCB/SAU register values read by the
// dispatcher and fault-recovery SCR special case.
func (s *Simulated) SetSFSR(v uint32) { s.sfsr = v }
func (s *Simulated) SetSFAR(v uint32) { s.sfar = v }
func (s *Simulated) SetSCR(v uint32)  { s.scr = v }

func (s *Simulated) SFSR() uint32 { return s.sfsr }
func (s *Simulated) SFAR() uint32 { return s.sfar }
func (s *Simulated) SCR() uint32  { return s.scr }

// ClearSFSR clears the sticky secure-fault status bits, as the dispatcher
// does on successful recovery.
func (s *Simulated) ClearSFSR() { s.sfsr = 0 }

// MPUSlot and SAUSlot let tests and supervisor assembly inspect what is
// currently programmed, mirroring the slot cache's own bookkeeping for
// cross-checking.
func (s *Simulated) MPUSlot(i int) region.Region { return s.mpuSlots[i] }
func (s *Simulated) SAUSlot(i int) region.Region { return s.sauSlots[i] }
