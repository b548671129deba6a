package trace

import "testing"

func TestDecodeAddrRange(t *testing.T) {
	in := AddrRange{GPUAddr: 0x66ff0000, Length: 0x2000}
	got, err := DecodeAddrRange(&Section{Kind: KindGPUAddr, Payload: in.Encode()})
	if err != nil {
		t.Fatalf("DecodeAddrRange() error = %v", err)
	}
	if got != in {
		t.Errorf("DecodeAddrRange() = %+v, want %+v", got, in)
	}

	_, err = DecodeAddrRange(&Section{Kind: KindCmdstreamAddr, Payload: []byte{1, 2, 3}})
	if !IsFormatError(err) {
		t.Errorf("short payload error = %v, want FormatError", err)
	}
}

func TestDecodeParam(t *testing.T) {
	tests := []struct {
		name    string
		param   Param
		wantErr bool
	}{
		{name: "color", param: Param{Kind: ParamColor, Value: 0xff00ff00, BitLen: 32}},
		{name: "blit x", param: Param{Kind: ParamBlitX, Value: 17, BitLen: 14}},
		{name: "zero bits", param: Param{Kind: ParamBlitY, Value: 1, BitLen: 0}, wantErr: true},
		{name: "too many bits", param: Param{Kind: ParamBlitY, Value: 1, BitLen: 33}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeParam(&Section{Kind: KindParam, Payload: tt.param.Encode()})
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeParam() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.param {
				t.Errorf("DecodeParam() = %+v, want %+v", got, tt.param)
			}
		})
	}
}

func TestParamKindString(t *testing.T) {
	if ParamBlitWidth.String() != "BLIT_WIDTH" {
		t.Errorf("String() = %q, want BLIT_WIDTH", ParamBlitWidth.String())
	}
	if ParamKind(42).String() != "PARAM(42)" {
		t.Errorf("String() = %q, want PARAM(42)", ParamKind(42).String())
	}
}

func TestText(t *testing.T) {
	s := &Section{Kind: KindTest, Payload: []byte("quad\x00\x00")}
	if got := Text(s); got != "quad" {
		t.Errorf("Text() = %q, want %q", got, "quad")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "clear-color", want: "clear-color.rd"},
		{in: "tex 2d/rgba", want: "tex_2d_rgba.rd"},
		{in: "../etc", want: "_etc.rd"},
		{in: "", want: "trace.rd"},
	}
	for _, tt := range tests {
		if got := FileName(tt.in); got != tt.want {
			t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
