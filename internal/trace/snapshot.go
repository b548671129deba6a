package trace

// snapshot is the captured contents of a gpu range.
type snapshot struct {
	addr uint32
	data []byte
}

func (s *snapshot) end() uint64 {
	return uint64(s.addr) + uint64(len(s.data))
}

func (s *snapshot) contains(addr uint32) bool {
	return addr >= s.addr && uint64(addr) < s.end()
}

// Snapshots holds the buffer contents replayed from GPUADDR and
// BUFFER_CONTENTS sections. A newer snapshot replaces any older one it
// overlaps. The zero value is ready to use.
type Snapshots struct {
	snaps []*snapshot
}

// Add records data as the contents of the range starting at addr.
func (t *Snapshots) Add(addr uint32, data []byte) {
	ns := &snapshot{addr: addr, data: data}
	kept := t.snaps[:0]
	for _, s := range t.snaps {
		if uint64(s.addr) < ns.end() && uint64(ns.addr) < s.end() {
			continue
		}
		kept = append(kept, s)
	}
	t.snaps = append(kept, ns)
}

// Lookup returns up to size bytes at addr. The result is shorter than
// size when the snapshot ends first; ok is false when no snapshot holds
// addr.
func (t *Snapshots) Lookup(addr uint32, size uint32) ([]byte, bool) {
	for i := len(t.snaps) - 1; i >= 0; i-- {
		s := t.snaps[i]
		if !s.contains(addr) {
			continue
		}
		off := addr - s.addr
		end := uint64(off) + uint64(size)
		if end > uint64(len(s.data)) {
			end = uint64(len(s.data))
		}
		return s.data[off:end], true
	}
	return nil, false
}

// Reset drops every snapshot.
func (t *Snapshots) Reset() {
	t.snaps = nil
}

// Len returns the number of live snapshots.
func (t *Snapshots) Len() int {
	return len(t.snaps)
}
