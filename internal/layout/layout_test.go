package layout

import (
	"testing"

	"github.com/arm-supervisor/vmpu/internal/region"
)

// TestACLSRAM_BasicAllocation checks a simple allocation against addresses
// worked out by hand: a base of 0x2000_0000, bss=200, stack=1024 yields
// bss_start=stack_top=0x2000_0420.
func TestACLSRAM_BasicAllocation(t *testing.T) {
	t.Parallel()

	c := NewCursor(0x2000_0000)

	bssStart, stackTop, err := c.ACLSRAM(200, 1024)
	if err != nil {
		t.Fatalf("ACLSRAM: %s", err)
	}

	const want = 0x2000_0420

	if bssStart != want {
		t.Errorf("bssStart = %#x, want %#x", bssStart, want)
	}

	if stackTop != want {
		t.Errorf("stackTop = %#x, want %#x", stackTop, want)
	}
}

func TestACLSRAM_MinStackFloor(t *testing.T) {
	t.Parallel()

	c := NewCursor(0x2000_0000)

	alloc, err := c.Allocate(16, 4)
	if err != nil {
		t.Fatalf("Allocate: %s", err)
	}

	if got := alloc.StackTop - alloc.StackStart; got != MinStackFloor {
		t.Errorf("stack size = %d, want floor %d", got, MinStackFloor)
	}
}

func TestACLSRAM_CursorAdvancesAcrossCalls(t *testing.T) {
	t.Parallel()

	c := NewCursor(0x2000_0000)

	first, err := c.Allocate(200, 1024)
	if err != nil {
		t.Fatalf("Allocate: %s", err)
	}

	second, err := c.Allocate(200, 1024)
	if err != nil {
		t.Fatalf("Allocate: %s", err)
	}

	if second.StackStart <= first.BSSEnd {
		t.Errorf("second allocation (%#x) does not start after first's bss end (%#x)", second.StackStart, first.BSSEnd)
	}

	if second.StackStart-first.BSSEnd < GuardBand {
		t.Errorf("gap between allocations = %d, want at least %d", second.StackStart-first.BSSEnd, GuardBand)
	}
}

func TestACLSRAM_RejectsZeroBSS(t *testing.T) {
	t.Parallel()

	c := NewCursor(0x2000_0000)

	if _, _, err := c.ACLSRAM(0, 1024); err == nil {
		t.Error("expected error for zero bss_size")
	}
}

func TestRegionsFor(t *testing.T) {
	t.Parallel()

	c := NewCursor(0x2000_0000)

	alloc, err := c.Allocate(200, 1024)
	if err != nil {
		t.Fatalf("Allocate: %s", err)
	}

	stackACL := region.NewACL(true, true, false, false, false)
	bssACL := region.NewACL(true, true, false, false, false)

	stack, bss := RegionsFor(alloc, stackACL, bssACL)

	if stack.Start != alloc.StackStart || stack.End != alloc.StackTop {
		t.Errorf("stack region = [%#x,%#x), want [%#x,%#x)", stack.Start, stack.End, alloc.StackStart, alloc.StackTop)
	}

	if bss.Start != alloc.BSSStart || bss.End != alloc.BSSEnd {
		t.Errorf("bss region = [%#x,%#x), want [%#x,%#x)", bss.Start, bss.End, alloc.BSSStart, alloc.BSSEnd)
	}
}

func TestOrderBoxes_Identity(t *testing.T) {
	t.Parallel()

	out := make([]uint8, 4)
	OrderBoxes(out, 4)

	for i, v := range out {
		if int(v) != i {
			t.Errorf("OrderBoxes[%d] = %d, want %d", i, v, i)
		}
	}
}
