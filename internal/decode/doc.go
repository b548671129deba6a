// Package decode turns a trace into a human-readable listing of the
// command streams it contains.
//
// A Decoder walks the sections of a trace. It keeps the buffer snapshots
// announced by GPUADDR + BUFFER_CONTENTS pairs so that command streams
// referenced by gpu address (CMDSTREAM_ADDR, indirect buffers, index and
// vertex buffers) can be resolved, and it tracks every register write in a
// RegisterState that is dumped at each draw.
//
// PM4 packets are decoded by type. Type-3 packets go through a dispatch
// table keyed by opcode; opcodes without a dedicated handler are printed as
// a hex dump.
package decode
