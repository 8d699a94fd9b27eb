// Package boxconfig encodes and decodes the box-configuration blob
// persisted in flash per box. The struct is packed and 32-byte aligned;
// the 32-byte padding after the struct is part of the layout and must be
// preserved for signature parity.
package boxconfig

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic identifies a valid box-configuration blob.
const Magic uint32 = 0x42CFB66F

// Version is the only wire-format version this package understands.
const Version uint16 = 100

// headerSize is the packed, pre-padding size of Header in bytes:
// magic(4) + version(2) + reserved-align(2) + stack_size(4) +
// acl_list_ptr(4) + acl_list_count(4) + fn_list_ptr(4) + fn_list_count(4)
// + reserved(4) = 32 bytes exactly, so the documented trailing pad is a
// second, separate 32 bytes.
const (
	headerSize  = 32
	padSize     = 32
	packedSize  = headerSize + padSize
	aclEntrySize = 4 + 4 + 4 // start + length + acl
)

var (
	// ErrDecode is returned for malformed input.
	ErrDecode = errors.New("boxconfig: decode error")

	errBadMagic   = fmt.Errorf("%w: bad magic", ErrDecode)
	errBadVersion = fmt.Errorf("%w: unsupported version", ErrDecode)
	errTooShort   = fmt.Errorf("%w: buffer too short", ErrDecode)
)

// Header is the fixed-size portion of the box-configuration blob.
type Header struct {
	Magic        uint32
	Version      uint16
	_            uint16 // Alignment padding; always zero on the wire.
	StackSize    uint32
	ACLListPtr   uint32
	ACLListCount uint32
	FnListPtr    uint32
	FnListCount  uint32
	Reserved     uint32
}

// ACLEntry is one entry in the ACL list a Header points to.
type ACLEntry struct {
	Start  uint32
	Length uint32
	ACL    uint32
}

// Encode serializes h as the packed, little-endian, 32-byte-aligned wire
// format, including the documented trailing 32-byte pad.
func Encode(h Header) []byte {
	h.Magic = Magic
	h.Version = Version

	buf := new(bytes.Buffer)
	buf.Grow(packedSize)

	_ = binary.Write(buf, binary.LittleEndian, h)
	buf.Write(make([]byte, padSize))

	return buf.Bytes()
}

// Decode parses the packed wire format produced by Encode.
func Decode(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, errTooShort
	}

	var h Header

	if err := binary.Read(bytes.NewReader(b[:headerSize]), binary.LittleEndian, &h); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if h.Magic != Magic {
		return Header{}, errBadMagic
	}

	if h.Version != Version {
		return Header{}, errBadVersion
	}

	return h, nil
}

// EncodeACLList serializes a list of ACL entries in the same packed,
// little-endian convention as Encode.
func EncodeACLList(entries []ACLEntry) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(entries) * aclEntrySize)

	for _, e := range entries {
		_ = binary.Write(buf, binary.LittleEndian, e)
	}

	return buf.Bytes()
}

// DecodeACLList parses count packed ACL entries from b.
func DecodeACLList(b []byte, count uint32) ([]ACLEntry, error) {
	need := int(count) * aclEntrySize
	if len(b) < need {
		return nil, errTooShort
	}

	entries := make([]ACLEntry, count)

	if err := binary.Read(bytes.NewReader(b[:need]), binary.LittleEndian, entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return entries, nil
}

// PackedSize is the total on-wire size of an encoded Header, including the
// trailing pad. It is always a multiple of 32.
func PackedSize() int { return packedSize }
