package pm4

import "fmt"

// Opcode is the 7-bit operation of a type-3 packet.
type Opcode uint32

// Type-3 opcodes seen on a2xx/a3xx command processors.
const (
	CPMeInit                Opcode = 0x48
	CPNop                   Opcode = 0x10
	CPWaitMemWrites         Opcode = 0x12
	CPWaitForMe             Opcode = 0x13
	CPRegRMW                Opcode = 0x21
	CPDrawIndx              Opcode = 0x22
	CPVizQuery              Opcode = 0x23
	CPDrawAuto              Opcode = 0x24
	CPSetState              Opcode = 0x25
	CPWaitForIdle           Opcode = 0x26
	CPImLoad                Opcode = 0x27
	CPDrawIndirect          Opcode = 0x28
	CPDrawIndxIndirect      Opcode = 0x29
	CPImLoadImmediate       Opcode = 0x2b
	CPImStore               Opcode = 0x2c
	CPSetConstant           Opcode = 0x2d
	CPLoadConstantContext   Opcode = 0x2e
	CPSetBinData            Opcode = 0x2f
	CPLoadState             Opcode = 0x30
	CPRunOpenCL             Opcode = 0x31
	CPCondIndirectBufferPFD Opcode = 0x32
	CPExecCS                Opcode = 0x33
	CPDrawIndxBin           Opcode = 0x34
	CPDrawIndx2Bin          Opcode = 0x35
	CPDrawIndx2             Opcode = 0x36
	CPIndirectBufferPFD     Opcode = 0x37
	CPDrawIndxOffset        Opcode = 0x38
	CPCondIndirectBufferPFE Opcode = 0x3a
	CPInvalidateState       Opcode = 0x3b
	CPWaitRegMem            Opcode = 0x3c
	CPMemWrite              Opcode = 0x3d
	CPRegToMem              Opcode = 0x3e
	CPIndirectBufferPFE     Opcode = 0x3f
	CPInterrupt             Opcode = 0x40
	CPMemToReg              Opcode = 0x42
	CPSetDrawState          Opcode = 0x43
	CPCondExec              Opcode = 0x44
	CPCondWrite             Opcode = 0x45
	CPEventWrite            Opcode = 0x46
	CPCondRegExec           Opcode = 0x47
	CPSetShaderBases        Opcode = 0x4a
	CPSetBinBaseOffset      Opcode = 0x4b
	CPSetBin                Opcode = 0x4c
	CPScratchToReg          Opcode = 0x4d
	CPMemWriteCntr          Opcode = 0x4f
	CPSetBinMask            Opcode = 0x50
	CPSetBinSelect          Opcode = 0x51
	CPWaitRegEq             Opcode = 0x52
	CPWaitRegGte            Opcode = 0x53
	CPEventWriteSHD         Opcode = 0x58
	CPEventWriteCFL         Opcode = 0x59
	CPEventWriteZPD         Opcode = 0x5b
	CPWaitUntilRead         Opcode = 0x5c
	CPWaitIBPFDComplete     Opcode = 0x5d
	CPContextUpdate         Opcode = 0x5e
	CPSetProtectedMode      Opcode = 0x5f
	CPBootstrapUcode        Opcode = 0x6f
	CPTestTwoMems           Opcode = 0x71
	CPWideRegWrite          Opcode = 0x74
)

var opcodeNames = map[Opcode]string{
	CPMeInit:                "CP_ME_INIT",
	CPNop:                   "CP_NOP",
	CPWaitMemWrites:         "CP_WAIT_MEM_WRITES",
	CPWaitForMe:             "CP_WAIT_FOR_ME",
	CPRegRMW:                "CP_REG_RMW",
	CPDrawIndx:              "CP_DRAW_INDX",
	CPVizQuery:              "CP_VIZ_QUERY",
	CPDrawAuto:              "CP_DRAW_AUTO",
	CPSetState:              "CP_SET_STATE",
	CPWaitForIdle:           "CP_WAIT_FOR_IDLE",
	CPImLoad:                "CP_IM_LOAD",
	CPDrawIndirect:          "CP_DRAW_INDIRECT",
	CPDrawIndxIndirect:      "CP_DRAW_INDX_INDIRECT",
	CPImLoadImmediate:       "CP_IM_LOAD_IMMEDIATE",
	CPImStore:               "CP_IM_STORE",
	CPSetConstant:           "CP_SET_CONSTANT",
	CPLoadConstantContext:   "CP_LOAD_CONSTANT_CONTEXT",
	CPSetBinData:            "CP_SET_BIN_DATA",
	CPLoadState:             "CP_LOAD_STATE",
	CPRunOpenCL:             "CP_RUN_OPENCL",
	CPCondIndirectBufferPFD: "CP_COND_INDIRECT_BUFFER_PFD",
	CPExecCS:                "CP_EXEC_CS",
	CPDrawIndxBin:           "CP_DRAW_INDX_BIN",
	CPDrawIndx2Bin:          "CP_DRAW_INDX_2_BIN",
	CPDrawIndx2:             "CP_DRAW_INDX_2",
	CPIndirectBufferPFD:     "CP_INDIRECT_BUFFER_PFD",
	CPDrawIndxOffset:        "CP_DRAW_INDX_OFFSET",
	CPCondIndirectBufferPFE: "CP_COND_INDIRECT_BUFFER_PFE",
	CPInvalidateState:       "CP_INVALIDATE_STATE",
	CPWaitRegMem:            "CP_WAIT_REG_MEM",
	CPMemWrite:              "CP_MEM_WRITE",
	CPRegToMem:              "CP_REG_TO_MEM",
	CPIndirectBufferPFE:     "CP_INDIRECT_BUFFER_PFE",
	CPInterrupt:             "CP_INTERRUPT",
	CPMemToReg:              "CP_MEM_TO_REG",
	CPSetDrawState:          "CP_SET_DRAW_STATE",
	CPCondExec:              "CP_COND_EXEC",
	CPCondWrite:             "CP_COND_WRITE",
	CPEventWrite:            "CP_EVENT_WRITE",
	CPCondRegExec:           "CP_COND_REG_EXEC",
	CPSetShaderBases:        "CP_SET_SHADER_BASES",
	CPSetBinBaseOffset:      "CP_SET_BIN_BASE_OFFSET",
	CPSetBin:                "CP_SET_BIN",
	CPScratchToReg:          "CP_SCRATCH_TO_REG",
	CPMemWriteCntr:          "CP_MEM_WRITE_CNTR",
	CPSetBinMask:            "CP_SET_BIN_MASK",
	CPSetBinSelect:          "CP_SET_BIN_SELECT",
	CPWaitRegEq:             "CP_WAIT_REG_EQ",
	CPWaitRegGte:            "CP_WAIT_REG_GTE",
	CPEventWriteSHD:         "CP_EVENT_WRITE_SHD",
	CPEventWriteCFL:         "CP_EVENT_WRITE_CFL",
	CPEventWriteZPD:         "CP_EVENT_WRITE_ZPD",
	CPWaitUntilRead:         "CP_WAIT_UNTIL_READ",
	CPWaitIBPFDComplete:     "CP_WAIT_IB_PFD_COMPLETE",
	CPContextUpdate:         "CP_CONTEXT_UPDATE",
	CPSetProtectedMode:      "CP_SET_PROTECTED_MODE",
	CPBootstrapUcode:        "CP_BOOTSTRAP_UCODE",
	CPTestTwoMems:           "CP_TEST_TWO_MEMS",
	CPWideRegWrite:          "CP_WIDE_REG_WRITE",
}

// String returns the opcode mnemonic, or a numeric form if unknown.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("CP_UNKNOWN_%02X", uint32(op))
}

// Known reports whether op has a mnemonic.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

// Event is the vgt_event_type written by CP_EVENT_WRITE.
type Event uint32

var eventNames = map[Event]string{
	0:  "VS_DEALLOC",
	1:  "PS_DEALLOC",
	2:  "VS_DONE_TS",
	3:  "PS_DONE_TS",
	4:  "CACHE_FLUSH_TS",
	5:  "CONTEXT_DONE",
	6:  "CACHE_FLUSH",
	7:  "HLSQ_FLUSH",
	8:  "VIZQUERY_END",
	9:  "SC_WAIT_WC",
	13: "RST_PIX_CNT",
	14: "RST_VTX_CNT",
	15: "TILE_FLUSH",
	20: "CACHE_FLUSH_AND_INV_TS_EVENT",
	21: "ZPASS_DONE",
	22: "CACHE_FLUSH_AND_INV_EVENT",
	23: "PERFCOUNTER_START",
	24: "PERFCOUNTER_STOP",
	27: "VS_FETCH_DONE",
	28: "FACENESS_FLUSH",
}

// String returns the event name, or a numeric form if unknown.
func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EVENT_%d", uint32(e))
}

// PrimType is the primitive type field of a draw initiator.
type PrimType uint32

var primNames = map[PrimType]string{
	0:  "DI_PT_NONE",
	1:  "DI_PT_POINTLIST",
	2:  "DI_PT_LINELIST",
	3:  "DI_PT_LINESTRIP",
	4:  "DI_PT_TRILIST",
	5:  "DI_PT_TRIFAN",
	6:  "DI_PT_TRISTRIP",
	8:  "DI_PT_RECTLIST",
	13: "DI_PT_QUADLIST",
	14: "DI_PT_QUADSTRIP",
	15: "DI_PT_POLYGON",
}

func (p PrimType) String() string {
	if name, ok := primNames[p]; ok {
		return name
	}
	return fmt.Sprintf("DI_PT_%d", uint32(p))
}

// SourceSelect is the index source of a draw initiator.
type SourceSelect uint32

// Index sources.
const (
	SrcDMA       SourceSelect = 0
	SrcImmediate SourceSelect = 1
	SrcAutoIndex SourceSelect = 2
)

func (s SourceSelect) String() string {
	switch s {
	case SrcDMA:
		return "DI_SRC_SEL_DMA"
	case SrcImmediate:
		return "DI_SRC_SEL_IMMEDIATE"
	case SrcAutoIndex:
		return "DI_SRC_SEL_AUTO_INDEX"
	default:
		return fmt.Sprintf("DI_SRC_SEL_%d", uint32(s))
	}
}

// DrawInitiator is the VGT_DRAW_INITIATOR dword of a draw packet.
type DrawInitiator uint32

// PrimType returns bits 5:0.
func (d DrawInitiator) PrimType() PrimType { return PrimType(d & 0x3f) }

// Source returns bits 7:6.
func (d DrawInitiator) Source() SourceSelect { return SourceSelect((d >> 6) & 0x3) }

// IndexSize returns the index size in bytes (bit 11 selects 32-bit, bit 13
// selects 8-bit on a3xx, otherwise 16-bit).
func (d DrawInitiator) IndexSize() uint32 {
	switch {
	case d&(1<<11) != 0:
		return 4
	case d&(1<<13) != 0:
		return 1
	default:
		return 2
	}
}

// NumIndices returns bits 31:16.
func (d DrawInitiator) NumIndices() uint32 { return uint32(d) >> 16 }

func (d DrawInitiator) String() string {
	return fmt.Sprintf("%s, %s, %d-byte indices, num_indices=%d",
		d.PrimType(), d.Source(), d.IndexSize(), d.NumIndices())
}
