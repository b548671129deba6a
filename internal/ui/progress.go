package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus is the state of one step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

func (s StepStatus) done() bool {
	return s == StepComplete || s == StepSkipped
}

// Step is one line of a multi-step operation.
type Step struct {
	Number  int    // 1-based
	Name    string // e.g. "Open device"
	Status  StepStatus
	Message string // e.g. "fd 3", "4096 bytes"
}

// Progress renders a bar and a step list. It is redrawn by printing
// Render again; no terminal program is involved.
type Progress struct {
	Label     string
	Steps     []Step
	Current   int
	Percent   float64
	Width     int
	ShowBar   bool
	ShowSteps bool
	bar       progress.Model
}

// NewProgress creates a progress display with one pending step per name.
func NewProgress(label string, names ...string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	p := &Progress{
		Label:     label,
		Steps:     steps,
		ShowBar:   true,
		ShowSteps: true,
	}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sizes the bar for a terminal of the given width.
func (p *Progress) SetWidth(width int) *Progress {
	p.Width = width
	barWidth := min(max(width-20, 20), 50)
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// Total returns the number of steps.
func (p *Progress) Total() int {
	return len(p.Steps)
}

// UpdateStep sets the status and message of a step. Out of range step
// numbers are ignored.
func (p *Progress) UpdateStep(step int, status StepStatus, message string) {
	if step < 1 || step > len(p.Steps) {
		return
	}
	p.Steps[step-1].Status = status
	p.Steps[step-1].Message = message

	if status == StepRunning {
		p.Current = step
		return
	}
	completed := 0
	for _, s := range p.Steps {
		if s.Status.done() {
			completed++
		}
	}
	p.Percent = float64(completed) / float64(len(p.Steps))
}

func (p *Progress) StartStep(step int, message string) {
	p.UpdateStep(step, StepRunning, message)
}

func (p *Progress) CompleteStep(step int, message string) {
	p.UpdateStep(step, StepComplete, message)
}

func (p *Progress) FailStep(step int, message string) {
	p.UpdateStep(step, StepFailed, message)
}

func (p *Progress) SkipStep(step int, message string) {
	p.UpdateStep(step, StepSkipped, message)
}

// Render returns the styled display.
func (p *Progress) Render() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(ProgressLabelStyle.Render(p.Label))
		b.WriteString("\n\n")
	}
	if p.ShowBar {
		b.WriteString(p.renderBar())
		b.WriteString("\n\n")
	}
	if p.ShowSteps {
		lines := make([]string, 0, len(p.Steps))
		for _, step := range p.Steps {
			lines = append(lines, p.renderStep(step))
		}
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func (p *Progress) renderBar() string {
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%  [%d/%d]", p.bar.ViewAs(p.Percent), p.Percent*100, p.Current, len(p.Steps)))
}

// nameColumn is where step markers line up.
const nameColumn = 36

func (p *Progress) renderStep(step Step) string {
	marker, style := StepMarkerPending, StepPendingStyle
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker = StepMarkerSkipped
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, len(p.Steps))
	b.WriteString(style.Render(step.Name))
	b.WriteString(strings.Repeat(" ", max(nameColumn-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))
	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

// String implements fmt.Stringer
func (p *Progress) String() string {
	return p.Render()
}
