package ui

import (
	"errors"
	"strings"
	"testing"
)

func TestClampWidth(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{in: 20, want: MinTerminalWidth},
		{in: 80, want: 80},
		{in: 300, want: MaxContentWidth},
	}
	for _, tt := range tests {
		if got := clampWidth(tt.in); got != tt.want {
			t.Errorf("clampWidth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestHeaderRender(t *testing.T) {
	h := &Header{
		Title:   "Capture probe",
		Command: "fdtrace-probe",
		Fields:  []Field{{Key: "Device", Value: "/dev/kgsl-3d0"}},
		Width:   80,
	}
	out := h.Render()
	for _, want := range []string{"CAPTURE PROBE", "fdtrace-probe", "Device:", "/dev/kgsl-3d0"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name string
		r    *Result
		want []string
	}{
		{
			name: "success",
			r:    &Result{Type: ResultSuccess, Title: "Device query complete", Fields: []Field{{Key: "GPU id", Value: "320"}}},
			want: []string{"SUCCESS", "Device query complete", "GPU id:", "320"},
		},
		{
			name: "failure",
			r:    &Result{Type: ResultFailure, Title: "Device query failed", Error: errors.New("no device"), Troubleshooting: []string{"Check permissions"}},
			want: []string{"FAILED", "Error: no device", "Troubleshooting:", "Check permissions"},
		},
		{
			name: "warning",
			r:    &Result{Type: ResultWarning, Title: "Nothing found"},
			want: []string{"WARNING", "Nothing found"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.r.Width = 80
			out := tt.r.Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("result missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestAddFieldKeepsOrder(t *testing.T) {
	r := NewSuccessResult("done").AddField("b", "2").AddField("a", "1")
	if len(r.Fields) != 2 || r.Fields[0].Key != "b" || r.Fields[1].Key != "a" {
		t.Errorf("Fields = %+v", r.Fields)
	}
}

func TestProgressSteps(t *testing.T) {
	tests := []struct {
		name        string
		update      func(p *Progress)
		wantPercent float64
		wantCurrent int
		want        []string
	}{
		{
			name:        "pending",
			update:      func(p *Progress) {},
			wantPercent: 0,
			want:        []string{"Querying device", "[1/4] Open device", StepMarkerPending, "  0%"},
		},
		{
			name: "running",
			update: func(p *Progress) {
				p.CompleteStep(1, "fd 3")
				p.StartStep(2, "")
			},
			wantPercent: 0.25,
			wantCurrent: 2,
			want:        []string{"(fd 3)", StepMarkerComplete, StepMarkerRunning, " 25%", "[2/4]"},
		},
		{
			name: "skipped counts as done",
			update: func(p *Progress) {
				p.CompleteStep(1, "")
				p.CompleteStep(2, "")
				p.SkipStep(3, "size 0")
				p.CompleteStep(4, "")
			},
			wantPercent: 1,
			want:        []string{"100%", StepMarkerSkipped, "(size 0)"},
		},
		{
			name: "failed",
			update: func(p *Progress) {
				p.StartStep(1, "")
				p.FailStep(1, "permission denied")
			},
			wantPercent: 0,
			wantCurrent: 1,
			want:        []string{FailureMarker, "(permission denied)"},
		},
		{
			name: "out of range ignored",
			update: func(p *Progress) {
				p.CompleteStep(0, "")
				p.CompleteStep(5, "")
			},
			wantPercent: 0,
			want:        []string{"[4/4] Close device"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress("Querying device", "Open device", "Query device info", "Allocate buffer", "Close device").SetWidth(80)
			tt.update(p)

			if p.Percent != tt.wantPercent {
				t.Errorf("Percent = %v, want %v", p.Percent, tt.wantPercent)
			}
			if p.Current != tt.wantCurrent {
				t.Errorf("Current = %d, want %d", p.Current, tt.wantCurrent)
			}
			out := p.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("progress missing %q:\n%s", want, out)
				}
			}
		})
	}
}
