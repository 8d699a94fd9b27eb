package region

import "testing"

func TestNewACL(t *testing.T) {
	t.Parallel()

	acl := NewACL(true, false, true, false, true)

	if !acl.UserRead() {
		t.Error("expected UserRead true")
	}

	if acl.UserWrite() {
		t.Error("expected UserWrite false")
	}

	if !acl.UserExecute() {
		t.Error("expected UserExecute true")
	}

	if acl.SecureExecute() {
		t.Error("expected SecureExecute false")
	}

	if !acl.NonSecureCallable() {
		t.Error("expected NonSecureCallable true")
	}
}

func TestRegion_Contains(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		region   Region
		addr     uint32
		size     uint32
		expected bool
	}{
		{"fully inside", Region{Start: 0x1000, End: 0x2000}, 0x1500, 4, true},
		{"exact start", Region{Start: 0x1000, End: 0x2000}, 0x1000, 4, true},
		{"exact end exclusive", Region{Start: 0x1000, End: 0x2000}, 0x1ffc, 4, true},
		{"overflows end", Region{Start: 0x1000, End: 0x2000}, 0x1ffe, 4, false},
		{"before start", Region{Start: 0x1000, End: 0x2000}, 0x0ffc, 4, false},
		{"zero size treated as one", Region{Start: 0x1000, End: 0x2000}, 0x1fff, 0, true},
	}

	for _, tc := range tcs {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := tc.region.Contains(tc.addr, tc.size); got != tc.expected {
				t.Errorf("Contains(%#x, %d) = %t, want %t", tc.addr, tc.size, got, tc.expected)
			}
		})
	}
}

func TestACLWord_String(t *testing.T) {
	t.Parallel()

	acl := NewACL(true, true, false, false, false)
	if s := acl.String(); s == "" {
		t.Error("expected non-empty string")
	}
}
