package sysinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMeminfo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meminfo")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcMemoryParsesMemTotal(t *testing.T) {
	path := writeMeminfo(t, "MemTotal:       16328540 kB\nMemFree:         1234567 kB\n")

	total, err := NewProcMemoryAt(path).TotalMemoryBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(16328540)*1024, total)
}

func TestProcMemoryMissingMemTotal(t *testing.T) {
	path := writeMeminfo(t, "MemFree: 1234567 kB\n")

	_, err := NewProcMemoryAt(path).TotalMemoryBytes()
	assert.Error(t, err)
}

func TestProcMemoryMalformedValue(t *testing.T) {
	path := writeMeminfo(t, "MemTotal: lots kB\n")

	_, err := NewProcMemoryAt(path).TotalMemoryBytes()
	assert.Error(t, err)
}

func TestProcMemoryMissingFile(t *testing.T) {
	_, err := NewProcMemoryAt(filepath.Join(t.TempDir(), "absent")).TotalMemoryBytes()
	assert.Error(t, err)
}

func TestFixedReporter(t *testing.T) {
	total, err := Fixed(42).TotalMemoryBytes()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), total)
}
