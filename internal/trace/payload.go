package trace

import (
	"encoding/binary"
	"fmt"
)

// FormatError reports a payload whose structure does not match its kind.
type FormatError struct {
	Kind Kind
	Msg  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s section: %s", e.Kind, e.Msg)
}

// IsFormatError checks if an error is a trace format error
func IsFormatError(err error) bool {
	_, ok := err.(*FormatError)
	return ok
}

// AddrRange is the payload of GPUADDR and CMDSTREAM_ADDR sections. For
// GPUADDR Length is in bytes; for CMDSTREAM_ADDR it is in dwords.
type AddrRange struct {
	GPUAddr uint32
	Length  uint32
}

// Encode returns the 8-byte payload.
func (a AddrRange) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], a.GPUAddr)
	binary.LittleEndian.PutUint32(b[4:8], a.Length)
	return b
}

// DecodeAddrRange parses a GPUADDR or CMDSTREAM_ADDR payload.
func DecodeAddrRange(s *Section) (AddrRange, error) {
	if len(s.Payload) < 8 {
		return AddrRange{}, &FormatError{Kind: s.Kind, Msg: fmt.Sprintf("payload is %d bytes, need 8", len(s.Payload))}
	}
	return AddrRange{
		GPUAddr: binary.LittleEndian.Uint32(s.Payload[0:4]),
		Length:  binary.LittleEndian.Uint32(s.Payload[4:8]),
	}, nil
}

// Param is the payload of a PARAM section.
type Param struct {
	Kind   ParamKind
	Value  uint32
	BitLen uint32
}

// Encode returns the 12-byte payload.
func (p Param) Encode() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.Kind))
	binary.LittleEndian.PutUint32(b[4:8], p.Value)
	binary.LittleEndian.PutUint32(b[8:12], p.BitLen)
	return b
}

// String returns a human-readable representation of the param
func (p Param) String() string {
	return fmt.Sprintf("%s=0x%x (%d bits)", p.Kind, p.Value, p.BitLen)
}

// DecodeParam parses a PARAM payload.
func DecodeParam(s *Section) (Param, error) {
	if len(s.Payload) < 12 {
		return Param{}, &FormatError{Kind: s.Kind, Msg: fmt.Sprintf("payload is %d bytes, need 12", len(s.Payload))}
	}
	p := Param{
		Kind:   ParamKind(binary.LittleEndian.Uint32(s.Payload[0:4])),
		Value:  binary.LittleEndian.Uint32(s.Payload[4:8]),
		BitLen: binary.LittleEndian.Uint32(s.Payload[8:12]),
	}
	if p.BitLen == 0 || p.BitLen > 32 {
		return Param{}, &FormatError{Kind: s.Kind, Msg: fmt.Sprintf("bit length %d out of range", p.BitLen)}
	}
	return p, nil
}

// EncodeGPUID returns a GPU_ID payload.
func EncodeGPUID(id uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, id)
	return b
}

// DecodeGPUID parses a GPU_ID payload.
func DecodeGPUID(s *Section) (uint32, error) {
	if len(s.Payload) < 4 {
		return 0, &FormatError{Kind: s.Kind, Msg: fmt.Sprintf("payload is %d bytes, need 4", len(s.Payload))}
	}
	return binary.LittleEndian.Uint32(s.Payload[0:4]), nil
}

// Text returns a text payload with any trailing NUL bytes removed.
func Text(s *Section) string {
	p := s.Payload
	for len(p) > 0 && p[len(p)-1] == 0 {
		p = p[:len(p)-1]
	}
	return string(p)
}
