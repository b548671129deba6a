package pm4

import "fmt"

// StateBlock selects the destination of a CP_LOAD_STATE packet (a3xx).
type StateBlock uint32

// a3xx state blocks.
const (
	SBVertTex     StateBlock = 0
	SBVertMipAddr StateBlock = 1
	SBFragTex     StateBlock = 2
	SBFragMipAddr StateBlock = 3
	SBVertShader  StateBlock = 4
	SBFragShader  StateBlock = 6
)

func (sb StateBlock) String() string {
	switch sb {
	case SBVertTex:
		return "SB_VERT_TEX"
	case SBVertMipAddr:
		return "SB_VERT_MIPADDR"
	case SBFragTex:
		return "SB_FRAG_TEX"
	case SBFragMipAddr:
		return "SB_FRAG_MIPADDR"
	case SBVertShader:
		return "SB_VERT_SHADER"
	case SBFragShader:
		return "SB_FRAG_SHADER"
	default:
		return fmt.Sprintf("SB_%d", uint32(sb))
	}
}

// StateType selects what kind of state a CP_LOAD_STATE carries.
type StateType uint32

// State types.
const (
	STShader    StateType = 0
	STConstants StateType = 1
)

func (st StateType) String() string {
	switch st {
	case STShader:
		return "ST_SHADER"
	case STConstants:
		return "ST_CONSTANTS"
	default:
		return fmt.Sprintf("ST_%d", uint32(st))
	}
}

// StateSource says whether CP_LOAD_STATE data is inline or in memory.
type StateSource uint32

// State sources.
const (
	SSDirect   StateSource = 0
	SSIndirect StateSource = 4
)

// LoadState is the two-dword header of a CP_LOAD_STATE payload.
type LoadState struct {
	DstOff  uint32
	Source  StateSource
	Block   StateBlock
	NumUnit uint32
	Type    StateType
	ExtAddr uint32
}

// DecodeLoadState splits the first two payload dwords of CP_LOAD_STATE.
func DecodeLoadState(d0, d1 uint32) LoadState {
	return LoadState{
		DstOff:  d0 & 0xffff,
		Source:  StateSource((d0 >> 16) & 0x7),
		Block:   StateBlock((d0 >> 19) & 0x7),
		NumUnit: (d0 >> 22) & 0x1ff,
		Type:    StateType(d1 & 0x3),
		ExtAddr: d1 &^ 0x3,
	}
}

// EncodeLoadState is the inverse of DecodeLoadState.
func EncodeLoadState(ls LoadState) (uint32, uint32) {
	d0 := (ls.DstOff & 0xffff) |
		((uint32(ls.Source) & 0x7) << 16) |
		((uint32(ls.Block) & 0x7) << 19) |
		((ls.NumUnit & 0x1ff) << 22)
	d1 := (ls.ExtAddr &^ 0x3) | (uint32(ls.Type) & 0x3)
	return d0, d1
}

// ConstType is the sub-selector of a CP_SET_CONSTANT packet (a2xx).
type ConstType uint32

// CP_SET_CONSTANT sub-selectors.
const (
	ConstALU      ConstType = 0
	ConstFetch    ConstType = 1
	ConstBool     ConstType = 2
	ConstLoop     ConstType = 3
	ConstRegister ConstType = 4
)

// SetConstantHeader splits the first payload dword of CP_SET_CONSTANT.
func SetConstantHeader(d0 uint32) (typ ConstType, offset uint32, addFromReg bool) {
	return ConstType((d0 >> 16) & 0xf), d0 & 0xffff, d0&0x80000000 != 0
}

// RegisterConstBase is added to a CP_SET_CONSTANT register offset.
const RegisterConstBase = 0x2000

// TexConstLimit splits the fetch constant space: offsets below it are
// texture constants, the rest vertex fetch constants.
const TexConstLimit = 0x78
