// Package diff correlates several trace files recorded from slightly
// different inputs and renders them side by side as HTML.
//
// Inputs are read in lock-step, one section per input per row. Command
// stream dwords are classified against the input's own buffer addresses,
// against the sibling inputs under a catalog of byte masks, and against
// the PARAM values announced so far, so that the bytes which vary between
// captures stand out.
package diff
