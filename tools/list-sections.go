//go:build ignore

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/muurk/fdtrace/internal/pm4"
	"github.com/muurk/fdtrace/internal/trace"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: list-sections <trace.rd> [max-words]")
		fmt.Println("Example: go run tools/list-sections.go traces/clear-color.rd 32")
		os.Exit(1)
	}

	maxWords := 16
	if len(os.Args) > 2 {
		if _, err := fmt.Sscanf(os.Args[2], "%d", &maxWords); err != nil {
			fmt.Printf("Invalid word limit %q: %v\n", os.Args[2], err)
			os.Exit(1)
		}
	}

	filename := os.Args[1]
	f, err := os.Open(filename)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("=== fdtrace Section Lister ===\n")
	fmt.Printf("File: %s\n\n", filename)

	rd := trace.NewReader(bufio.NewReader(f))
	offset := 0
	for {
		s, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("\nError at byte offset %d: %v\n", offset, err)
			os.Exit(1)
		}
		listSection(rd.Count(), offset, s, maxWords)
		offset += trace.HeaderSize + len(s.Payload)
	}

	fmt.Printf("\n%d sections, %d bytes\n", rd.Count(), offset)
}

func listSection(n, offset int, s *trace.Section, maxWords int) {
	fmt.Printf("#%-5d @%08x  %-16s %8d bytes", n, offset, s.Kind, len(s.Payload))

	switch {
	case s.Kind.IsText():
		fmt.Printf("  %q\n", trace.Text(s))
	case s.Kind == trace.KindGPUID:
		id, _ := trace.DecodeGPUID(s)
		fmt.Printf("  gpu %d\n", id)
	case s.Kind == trace.KindGPUAddr || s.Kind == trace.KindCmdstreamAddr:
		ar, err := trace.DecodeAddrRange(s)
		if err != nil {
			fmt.Printf("  %v\n", err)
			return
		}
		fmt.Printf("  0x%08x +%d\n", ar.GPUAddr, ar.Length)
	case s.Kind == trace.KindParam:
		p, err := trace.DecodeParam(s)
		if err != nil {
			fmt.Printf("  %v\n", err)
			return
		}
		fmt.Printf("  %s\n", p)
	case s.Kind == trace.KindCmdstream:
		fmt.Println()
		dumpPackets(trace.BytesToDwords(s.Payload), maxWords)
	default:
		fmt.Println()
		if len(s.Payload) > 0 {
			dumpWords(trace.BytesToDwords(s.Payload), maxWords)
		}
	}
}

// dumpPackets prints the packet headers of a command stream, one per line.
func dumpPackets(words []uint32, maxPackets int) {
	shown := 0
	for i := 0; i < len(words); {
		hdr := words[i]
		size := int(pm4.PacketSize(hdr))
		if shown == maxPackets {
			fmt.Printf("        ... %d more dwords\n", len(words)-i)
			return
		}
		switch pm4.TypeOf(hdr) {
		case pm4.Type0:
			fmt.Printf("        [%04d] %08x  type0 reg=0x%04x count=%d\n", i, hdr, pm4.Type0Reg(hdr), pm4.Count(hdr))
		case pm4.Type3:
			fmt.Printf("        [%04d] %08x  %s count=%d\n", i, hdr, pm4.Type3Opcode(hdr), pm4.Count(hdr))
		default:
			fmt.Printf("        [%04d] %08x  %s\n", i, hdr, pm4.TypeOf(hdr))
		}
		shown++
		i += size
	}
}

func dumpWords(words []uint32, maxWords int) {
	for i, w := range words {
		if i == maxWords {
			fmt.Printf("        ... %d more dwords\n", len(words)-i)
			return
		}
		fmt.Printf("        [%04d] 0x%08x %11d %032b\n", i, w, w, w)
	}
}
