package regdb

import (
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	db, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(db.Generations) < 2 {
		t.Fatalf("expected at least 2 generations, got %d", len(db.Generations))
	}

	db2, err := Load()
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if db != db2 {
		t.Error("expected Load to return the same instance")
	}
}

func TestForGPU(t *testing.T) {
	db, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		gpuID uint32
		want  string
	}{
		{gpuID: 200, want: "a2xx"},
		{gpuID: 220, want: "a2xx"},
		{gpuID: 305, want: "a3xx"},
		{gpuID: 320, want: "a3xx"},
		{gpuID: 330, want: "a3xx"},
		{gpuID: 0, want: "a2xx"},
		{gpuID: 420, want: "a3xx"},
	}

	for _, tt := range tests {
		if got := db.ForGPU(tt.gpuID).Family; got != tt.want {
			t.Errorf("ForGPU(%d) = %s, want %s", tt.gpuID, got, tt.want)
		}
	}
}

func TestArrayRegisters(t *testing.T) {
	db, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	a3xx, ok := db.Get("a3xx")
	if !ok {
		t.Fatal("a3xx generation missing")
	}

	tests := []struct {
		reg  uint32
		name string
	}{
		{reg: 0x2246, name: "VFD_FETCH[0].INSTR_0"},
		{reg: 0x2247, name: "VFD_FETCH[0].INSTR_1"},
		{reg: 0x2246 + 2*5, name: "VFD_FETCH[5].INSTR_0"},
		{reg: 0x0c06, name: "VSC_PIPE[0].CONFIG"},
		{reg: 0x0c06 + 3*7 + 2, name: "VSC_PIPE[7].DATA_LENGTH"},
		{reg: 0x2266 + 3, name: "VFD_DECODE_INSTR[3]"},
	}

	for _, tt := range tests {
		got, ok := a3xx.Name(tt.reg)
		if !ok || got != tt.name {
			t.Errorf("Name(0x%04x) = %q, %v, want %q", tt.reg, got, ok, tt.name)
		}
		reg, ok := a3xx.Lookup(tt.name)
		if !ok || reg != tt.reg {
			t.Errorf("Lookup(%q) = 0x%04x, %v, want 0x%04x", tt.name, reg, ok, tt.reg)
		}
	}
}

func TestFormat(t *testing.T) {
	db, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	a3xx, _ := db.Get("a3xx")
	reg, ok := a3xx.Lookup("GRAS_CL_VPORT_XSCALE")
	if !ok {
		t.Fatal("GRAS_CL_VPORT_XSCALE missing")
	}

	if got := a3xx.Format(reg, 0x3f800000); got != "1.000000" {
		t.Errorf("Format(float) = %q, want 1.000000", got)
	}
	if got := a3xx.Format(0x7fff, 0xdead); got != "0000dead" {
		t.Errorf("Format(unknown) = %q, want 0000dead", got)
	}
	if got := DisplayName(Generic{}, 0x2180); got != "<0x2180>" {
		t.Errorf("DisplayName() = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "duplicate",
			yaml: "generations:\n  - name: x\n    registers:\n      - { offset: 1, name: A }\n      - { offset: 1, name: B }\n",
			want: "defined as both",
		},
		{
			name: "bad type",
			yaml: "generations:\n  - name: x\n    registers:\n      - { offset: 1, name: A, type: bogus }\n",
			want: "unknown type",
		},
		{
			name: "no name",
			yaml: "generations:\n  - name: x\n    registers:\n      - { offset: 1 }\n",
			want: "has no name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}
