//go:build ignore

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/muurk/fdtrace/internal/decode"
	"github.com/muurk/fdtrace/internal/trace"
)

// Statistics tracks decoding results
type Statistics struct {
	TotalFiles    int
	TotalSections int
	DecodeSuccess int
	DecodeFailure int
	Unresolved    int
	Draws         int
	SectionKinds  map[trace.Kind]int
	FailedFiles   []FailedFile
}

// FailedFile stores information about a trace that failed to decode
type FailedFile struct {
	File  string
	Error string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_traces <directory-or-file>")
		fmt.Println("Example: go run tools/validate_traces.go traces/")
		os.Exit(1)
	}

	path := os.Args[1]

	stats := Statistics{
		SectionKinds: make(map[trace.Kind]int),
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Error accessing path: %v\n", err)
		os.Exit(1)
	}

	var files []string
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*"+trace.FileExt))
		if err != nil {
			fmt.Printf("Error finding trace files: %v\n", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Printf("No trace files found in %s\n", path)
			os.Exit(1)
		}
	} else {
		files = []string{path}
	}

	fmt.Printf("=== fdtrace Trace Validator ===\n")
	fmt.Printf("Files to process: %d\n\n", len(files))

	for _, file := range files {
		processFile(file, &stats)
	}

	printStatistics(&stats)
	if stats.DecodeFailure > 0 {
		os.Exit(1)
	}
}

func processFile(filename string, stats *Statistics) {
	stats.TotalFiles++

	fail := func(err error) {
		stats.DecodeFailure++
		stats.FailedFiles = append(stats.FailedFiles, FailedFile{File: filename, Error: err.Error()})
	}

	f, err := os.Open(filename)
	if err != nil {
		fail(err)
		return
	}
	defer f.Close()

	sections, err := trace.ReadAll(bufio.NewReader(f))
	if err != nil {
		fail(err)
		return
	}
	stats.TotalSections += len(sections)
	for _, s := range sections {
		stats.SectionKinds[s.Kind]++
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		fail(err)
		return
	}
	dec, err := decode.New(decode.Options{Out: io.Discard, Color: decode.ColorNever})
	if err != nil {
		fail(err)
		return
	}
	if err := dec.Decode(bufio.NewReader(f)); err != nil {
		fail(err)
		return
	}

	stats.DecodeSuccess++
	stats.Unresolved += dec.Unresolved()
	stats.Draws += dec.Draws()
}

func printStatistics(stats *Statistics) {
	fmt.Printf("\n========================================\n")
	fmt.Printf("VALIDATION RESULTS\n")
	fmt.Printf("========================================\n\n")

	fmt.Printf("Files Processed:    %d\n", stats.TotalFiles)
	fmt.Printf("Total Sections:     %d\n", stats.TotalSections)
	fmt.Printf("Decode Success:     %d\n", stats.DecodeSuccess)
	fmt.Printf("Decode Failure:     %d\n", stats.DecodeFailure)
	fmt.Printf("Draws:              %d\n", stats.Draws)
	fmt.Printf("Unresolved Addrs:   %d\n", stats.Unresolved)

	fmt.Printf("\n----------------------------------------\n")
	fmt.Printf("SECTION KIND DISTRIBUTION\n")
	fmt.Printf("----------------------------------------\n")
	kinds := make([]trace.Kind, 0, len(stats.SectionKinds))
	for k := range stats.SectionKinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		count := stats.SectionKinds[k]
		fmt.Printf("%-16s %6d (%.2f%%)\n", k, count, float64(count)/float64(stats.TotalSections)*100)
	}

	if len(stats.FailedFiles) > 0 {
		fmt.Printf("\n----------------------------------------\n")
		fmt.Printf("FAILURES (%d total)\n", len(stats.FailedFiles))
		fmt.Printf("----------------------------------------\n")
		for i, failed := range stats.FailedFiles {
			fmt.Printf("\nFailure #%d:\n", i+1)
			fmt.Printf("  File:  %s\n", failed.File)
			fmt.Printf("  Error: %s\n", failed.Error)
		}
	}

	fmt.Printf("\n========================================\n")
	if stats.DecodeFailure == 0 {
		fmt.Printf("SUCCESS: all traces decoded\n")
	} else {
		fmt.Printf("ISSUES FOUND: %d traces failed to decode\n", stats.DecodeFailure)
	}
	fmt.Printf("========================================\n")
}
