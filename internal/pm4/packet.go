// Package pm4 holds the bit layout of Adreno PM4 command stream packets.
//
// Header fields are exposed as accessor functions on the raw dword rather
// than bitfield structs so that bit order stays explicit.
package pm4

import "fmt"

// PacketType is the packet class selected by bits 31:30 of a header.
type PacketType uint32

// Packet types.
const (
	Type0 PacketType = 0 // register block write
	Type1 PacketType = 1 // paired register write
	Type2 PacketType = 2 // nop filler
	Type3 PacketType = 3 // opcode packet
)

func (t PacketType) String() string {
	return fmt.Sprintf("type%d", uint32(t))
}

// Type2Nop is the canonical type-2 filler dword.
const Type2Nop uint32 = 0x80000000

// TypeOf returns the packet type of a header dword.
func TypeOf(hdr uint32) PacketType {
	return PacketType(hdr >> 30)
}

// Type0Reg returns the base register index of a type-0 header.
func Type0Reg(hdr uint32) uint32 {
	return hdr & 0x7fff
}

// Type0SameReg reports whether all payload dwords rewrite the base register.
func Type0SameReg(hdr uint32) bool {
	return hdr&0x8000 != 0
}

// Count returns the payload dword count of a type-0 or type-3 header.
func Count(hdr uint32) uint32 {
	return ((hdr >> 16) & 0x3fff) + 1
}

// Type1Regs returns the two register indices of a type-1 header.
func Type1Regs(hdr uint32) (uint32, uint32) {
	return hdr & 0xfff, (hdr >> 12) & 0xfff
}

// Type3Opcode returns the opcode of a type-3 header.
func Type3Opcode(hdr uint32) Opcode {
	return Opcode((hdr >> 8) & 0xff)
}

// Type3Predicated reports the predicate bit of a type-3 header.
func Type3Predicated(hdr uint32) bool {
	return hdr&1 != 0
}

// Type0Header builds a type-0 header writing count registers from reg.
func Type0Header(reg uint32, count uint32, sameReg bool) uint32 {
	hdr := (uint32(Type0) << 30) | (((count - 1) & 0x3fff) << 16) | (reg & 0x7fff)
	if sameReg {
		hdr |= 0x8000
	}
	return hdr
}

// Type1Header builds a type-1 header for two registers.
func Type1Header(reg1, reg2 uint32) uint32 {
	return (uint32(Type1) << 30) | ((reg2 & 0xfff) << 12) | (reg1 & 0xfff)
}

// Type3Header builds a type-3 header with count payload dwords.
func Type3Header(op Opcode, count uint32) uint32 {
	return (uint32(Type3) << 30) | (((count - 1) & 0x3fff) << 16) | ((uint32(op) & 0xff) << 8)
}

// PacketSize returns the total size in dwords (header included) of the
// packet starting with hdr.
func PacketSize(hdr uint32) uint32 {
	switch TypeOf(hdr) {
	case Type0, Type3:
		return Count(hdr) + 1
	case Type1:
		return 3
	default:
		return 1
	}
}
