// Package bitband implements the arithmetic translation between the
// ARMv7/v8-M bit-band alias windows and their underlying physical
// addresses. There is no precedent for this arithmetic anywhere in the
// example pack — it is architecture-documented bit manipulation, not a
// third-party library's concern, so it is plain Go arithmetic rather than
// a wrapped dependency.
package bitband

// Alias window bases and the regions they shadow, per the documented
// ARMv7/v8-M bit-banding map: the SRAM alias covers the first 1 MiB of
// SRAM, the peripheral alias covers the first 1 MiB of the peripheral
// region.
const (
	SRAMRegionBase   uint32 = 0x2000_0000
	SRAMAliasBase    uint32 = 0x2200_0000
	SRAMAliasEnd     uint32 = 0x2400_0000
	PeriphRegionBase uint32 = 0x4000_0000
	PeriphAliasBase  uint32 = 0x4200_0000
	PeriphAliasEnd   uint32 = 0x4400_0000
)

// InWindow reports whether addr falls within either bit-band alias window.
func InWindow(addr uint32) bool {
	return (addr >= SRAMAliasBase && addr < SRAMAliasEnd) ||
		(addr >= PeriphAliasBase && addr < PeriphAliasEnd)
}

// ToPhysical translates an address in a bit-band alias window to the
// physical address of the byte whose bit it aliases. It is arithmetic
// over the documented formula:
//
//	bit_word_addr = alias_base + (byte_offset * 32) + (bit_number * 4)
//
// inverted to recover byte_offset and bit_number, then re-based onto the
// shadowed region. Addresses outside either window are returned
// unchanged.
func ToPhysical(addr uint32) uint32 {
	switch {
	case addr >= SRAMAliasBase && addr < SRAMAliasEnd:
		return translate(addr, SRAMAliasBase, SRAMRegionBase)
	case addr >= PeriphAliasBase && addr < PeriphAliasEnd:
		return translate(addr, PeriphAliasBase, PeriphRegionBase)
	default:
		return addr
	}
}

func translate(addr, aliasBase, regionBase uint32) uint32 {
	offset := addr - aliasBase
	byteOffset := offset / 32

	return regionBase + byteOffset
}
