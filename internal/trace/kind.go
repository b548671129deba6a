package trace

import "fmt"

// Kind identifies the content of a section. The set is open: readers must
// skip kinds they do not know.
type Kind uint32

// Section kinds. The numeric values are part of the file format.
const (
	KindNone           Kind = 0
	KindTest           Kind = 1  // text: test name, starts a logical run
	KindCmd            Kind = 2  // text: API call annotation
	KindGPUAddr        Kind = 3  // u32 gpuaddr, u32 length
	KindContext        Kind = 4  // raw context switch snapshot
	KindCmdstream      Kind = 5  // inline command dwords
	KindCmdstreamAddr  Kind = 6  // u32 gpuaddr, u32 sizedwords
	KindParam          Kind = 7  // u32 kind, u32 value, u32 bitlen
	KindFlush          Kind = 8  // empty, clears params
	KindProgram        Kind = 9  // compiled shader program blob
	KindVertShader     Kind = 10 // source text
	KindFragShader     Kind = 11 // source text
	KindBufferContents Kind = 12 // bytes of the buffer announced by the last GPUADDR
	KindGPUID          Kind = 13 // u32 gpu id
)

var kindNames = map[Kind]string{
	KindNone:           "NONE",
	KindTest:           "TEST",
	KindCmd:            "CMD",
	KindGPUAddr:        "GPUADDR",
	KindContext:        "CONTEXT",
	KindCmdstream:      "CMDSTREAM",
	KindCmdstreamAddr:  "CMDSTREAM_ADDR",
	KindParam:          "PARAM",
	KindFlush:          "FLUSH",
	KindProgram:        "PROGRAM",
	KindVertShader:     "VERT_SHADER",
	KindFragShader:     "FRAG_SHADER",
	KindBufferContents: "BUFFER_CONTENTS",
	KindGPUID:          "GPU_ID",
}

// String returns the section kind name, or a numeric form for unknown kinds.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(k))
}

// Known reports whether k is one of the kinds defined above.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// IsText reports whether the payload of k is free text.
func (k Kind) IsText() bool {
	switch k {
	case KindTest, KindCmd, KindVertShader, KindFragShader:
		return true
	}
	return false
}

// EmptyByDefinition reports whether k is a marker whose payload is always
// empty, as opposed to a section that happens to carry no data.
func (k Kind) EmptyByDefinition() bool {
	return k == KindFlush
}

// ParamKind names a scalar the capture layer knows to be interesting.
type ParamKind uint32

// Param kinds.
const (
	ParamSurfaceWidth ParamKind = iota
	ParamSurfaceHeight
	ParamSurfacePitch
	ParamColor
	ParamBlitX
	ParamBlitY
	ParamBlitWidth
	ParamBlitHeight
	ParamBlitX2
	ParamBlitY2
)

var paramNames = [...]string{
	ParamSurfaceWidth:  "SURFACE_WIDTH",
	ParamSurfaceHeight: "SURFACE_HEIGHT",
	ParamSurfacePitch:  "SURFACE_PITCH",
	ParamColor:         "COLOR",
	ParamBlitX:         "BLIT_X",
	ParamBlitY:         "BLIT_Y",
	ParamBlitWidth:     "BLIT_WIDTH",
	ParamBlitHeight:    "BLIT_HEIGHT",
	ParamBlitX2:        "BLIT_X2",
	ParamBlitY2:        "BLIT_Y2",
}

func (p ParamKind) String() string {
	if int(p) < len(paramNames) {
		return paramNames[p]
	}
	return fmt.Sprintf("PARAM(%d)", uint32(p))
}
