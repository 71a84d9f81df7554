package sysinfo

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MemoryReporter reports total system memory, consumed by the heap-size
// check during validation. Injectable so tests can pin the reading.
type MemoryReporter interface {
	TotalMemoryBytes() (uint64, error)
}

// ProcMemory reads total memory from /proc/meminfo (Linux specific)
type ProcMemory struct {
	path string
}

// NewProcMemory creates a reporter backed by /proc/meminfo
func NewProcMemory() *ProcMemory {
	return &ProcMemory{path: "/proc/meminfo"}
}

// NewProcMemoryAt creates a reporter reading an alternate meminfo file (for testing)
func NewProcMemoryAt(path string) *ProcMemory {
	return &ProcMemory{path: path}
}

// TotalMemoryBytes returns the MemTotal value in bytes
func (p *ProcMemory) TotalMemoryBytes() (uint64, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", p.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		// Format: "MemTotal:       16328540 kB"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed MemTotal line: %q", line)
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed MemTotal value: %w", err)
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", p.path, err)
	}

	return 0, fmt.Errorf("MemTotal not present in %s", p.path)
}

// Fixed is a MemoryReporter returning a constant value, used in tests
// and as a config override on platforms without /proc
type Fixed uint64

// TotalMemoryBytes returns the fixed value
func (f Fixed) TotalMemoryBytes() (uint64, error) {
	return uint64(f), nil
}
