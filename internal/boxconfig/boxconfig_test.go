package boxconfig

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	h := Header{
		StackSize:    1024,
		ACLListPtr:   0x0800_1000,
		ACLListCount: 3,
		FnListPtr:    0x0800_2000,
		FnListCount:  1,
		Reserved:     0,
	}

	encoded := Encode(h)

	if len(encoded) != PackedSize() {
		t.Fatalf("Encode len = %d, want %d", len(encoded), PackedSize())
	}

	if len(encoded)%32 != 0 {
		t.Errorf("Encode len %d is not a multiple of 32", len(encoded))
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %s", err)
	}

	if decoded.Magic != Magic {
		t.Errorf("decoded Magic = %#x, want %#x", decoded.Magic, Magic)
	}

	if decoded.Version != Version {
		t.Errorf("decoded Version = %d, want %d", decoded.Version, Version)
	}

	if decoded.StackSize != h.StackSize {
		t.Errorf("decoded StackSize = %d, want %d", decoded.StackSize, h.StackSize)
	}

	if decoded.ACLListCount != h.ACLListCount {
		t.Errorf("decoded ACLListCount = %d, want %d", decoded.ACLListCount, h.ACLListCount)
	}
}

func TestDecode_TooShort(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte{1, 2, 3}); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestDecode_BadMagic(t *testing.T) {
	t.Parallel()

	encoded := Encode(Header{})
	encoded[0] ^= 0xff

	if _, err := Decode(encoded); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for bad magic, got %v", err)
	}
}

func TestDecode_BadVersion(t *testing.T) {
	t.Parallel()

	encoded := Encode(Header{})
	// Version is the two bytes immediately after the magic, little-endian.
	encoded[4] ^= 0xff

	if _, err := Decode(encoded); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for bad version, got %v", err)
	}
}

func TestACLListRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []ACLEntry{
		{Start: 0x4000_0000, Length: 0x1000, ACL: 0x03},
		{Start: 0x4000_1000, Length: 0x2000, ACL: 0x07},
	}

	encoded := EncodeACLList(entries)

	decoded, err := DecodeACLList(encoded, uint32(len(entries)))
	if err != nil {
		t.Fatalf("DecodeACLList: %s", err)
	}

	for i, e := range entries {
		if decoded[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, decoded[i], e)
		}
	}
}

func TestDecodeACLList_TooShort(t *testing.T) {
	t.Parallel()

	if _, err := DecodeACLList([]byte{1, 2, 3}, 5); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}
