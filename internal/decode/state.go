package decode

import "sort"

// RegisterState is the last value written to each register.
type RegisterState struct {
	vals map[uint32]uint32
}

// NewRegisterState returns an empty state.
func NewRegisterState() *RegisterState {
	return &RegisterState{vals: make(map[uint32]uint32)}
}

// Set records a write.
func (s *RegisterState) Set(reg, val uint32) {
	s.vals[reg] = val
}

// Get returns the last value written to reg.
func (s *RegisterState) Get(reg uint32) (uint32, bool) {
	v, ok := s.vals[reg]
	return v, ok
}

// Value returns the last value written to reg, or 0.
func (s *RegisterState) Value(reg uint32) uint32 {
	return s.vals[reg]
}

// Len returns the number of registers written.
func (s *RegisterState) Len() int {
	return len(s.vals)
}

// Regs returns the written registers in ascending order.
func (s *RegisterState) Regs() []uint32 {
	regs := make([]uint32, 0, len(s.vals))
	for r := range s.vals {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}

// Reset forgets every write.
func (s *RegisterState) Reset() {
	s.vals = make(map[uint32]uint32)
}
