package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"github.com/sayfpack13/TrustQuery-sub002/internal/sysinfo"
)

// Mode selects the validation comparison semantics
type Mode string

const (
	// ModeCreate validates a brand-new configuration against every registered node
	ModeCreate Mode = "create"
	// ModeUpdate validates a replacement, excluding the record it replaces
	ModeUpdate Mode = "update"
)

const (
	// DefaultHTTPPortBaseline is the scan origin when no port was requested
	DefaultHTTPPortBaseline = 9200
	// DefaultTransportPortBaseline is the scan origin when no port was requested
	DefaultTransportPortBaseline = 9300
)

var heapSizePattern = regexp.MustCompile(`^[0-9]+[kmgtKMGT]$`)

// Validator detects conflicts between a candidate node configuration and a
// registry snapshot, and computes remediation suggestions. It is pure: the
// only inputs are the candidate, the snapshot and a system-memory reading.
type Validator struct {
	memory            sysinfo.MemoryReporter
	maxHeapFraction   float64
	portSearchWindow  int
	maxNameCandidates int
	requireRole       bool
}

// Options configures validator policy
type Options struct {
	MaxHeapFraction   float64
	PortSearchWindow  int
	MaxNameCandidates int
	RequireRole       bool
}

// NewValidator creates a new validator
func NewValidator(memory sysinfo.MemoryReporter, opts Options) *Validator {
	if opts.MaxHeapFraction <= 0 {
		opts.MaxHeapFraction = 0.75
	}
	if opts.PortSearchWindow <= 0 {
		opts.PortSearchWindow = 1000
	}
	if opts.MaxNameCandidates <= 0 {
		opts.MaxNameCandidates = 5
	}
	return &Validator{
		memory:            memory,
		maxHeapFraction:   opts.MaxHeapFraction,
		portSearchWindow:  opts.PortSearchWindow,
		maxNameCandidates: opts.MaxNameCandidates,
		requireRole:       opts.RequireRole,
	}
}

// Validate checks the candidate against the snapshot. For ModeUpdate,
// originalName identifies the record being replaced so the candidate's own
// current values never count as self-conflicts. The returned error is only
// non-nil for resolver exhaustion or an unreadable memory reporter; a
// conflicting candidate is data, not an error.
func (v *Validator) Validate(candidate *model.NodeConfig, mode Mode, originalName string, snapshot []*model.NodeConfig) (*model.ValidationResult, error) {
	others := comparisonSet(snapshot, mode, originalName)

	result := &model.ValidationResult{
		Conflicts: []model.Conflict{},
	}

	if candidate.Name == "" {
		result.Conflicts = append(result.Conflicts, model.Conflict{
			Type:    model.ConflictNodeName,
			Message: "node name must not be empty",
		})
	}

	for _, other := range others {
		if candidate.Name != "" && other.Name == candidate.Name {
			result.Conflicts = append(result.Conflicts, model.Conflict{
				Type:    model.ConflictNodeName,
				Message: fmt.Sprintf("node name '%s' is already registered", candidate.Name),
			})
		}
		// Each port field is checked against both port fields of every
		// other node: http and transport share one port space.
		if candidate.HTTPPort == other.HTTPPort || candidate.HTTPPort == other.TransportPort {
			result.Conflicts = append(result.Conflicts, model.Conflict{
				Type:    model.ConflictHTTPPort,
				Message: fmt.Sprintf("http port %d is already used by node '%s'", candidate.HTTPPort, other.Name),
			})
		}
		if candidate.TransportPort == other.HTTPPort || candidate.TransportPort == other.TransportPort {
			result.Conflicts = append(result.Conflicts, model.Conflict{
				Type:    model.ConflictTransportPort,
				Message: fmt.Sprintf("transport port %d is already used by node '%s'", candidate.TransportPort, other.Name),
			})
		}
		if candidate.DataPath == other.DataPath {
			result.Conflicts = append(result.Conflicts, model.Conflict{
				Type:    model.ConflictDataPath,
				Message: fmt.Sprintf("data path '%s' is already used by node '%s'", candidate.DataPath, other.Name),
			})
		}
		if candidate.LogsPath == other.LogsPath {
			result.Conflicts = append(result.Conflicts, model.Conflict{
				Type:    model.ConflictLogsPath,
				Message: fmt.Sprintf("logs path '%s' is already used by node '%s'", candidate.LogsPath, other.Name),
			})
		}
	}

	// The candidate's own two ports must not collide with each other
	if candidate.HTTPPort == candidate.TransportPort {
		result.Conflicts = append(result.Conflicts, model.Conflict{
			Type:    model.ConflictTransportPort,
			Message: fmt.Sprintf("http and transport ports must differ (both %d)", candidate.HTTPPort),
		})
	}

	if c := v.checkHeapSize(candidate.HeapSize); c != nil {
		result.Conflicts = append(result.Conflicts, *c)
	}

	if v.requireRole && candidate.Roles.None() {
		result.Conflicts = append(result.Conflicts, model.Conflict{
			Type:    model.ConflictRoles,
			Message: "node must hold at least one role (master, data or ingest)",
		})
	}

	if err := v.computeSuggestions(candidate, others, result); err != nil {
		return nil, err
	}

	result.Valid = len(result.Conflicts) == 0
	return result, nil
}

// comparisonSet returns every snapshot record except, in update mode, the
// one being replaced.
func comparisonSet(snapshot []*model.NodeConfig, mode Mode, originalName string) []*model.NodeConfig {
	if mode != ModeUpdate || originalName == "" {
		return snapshot
	}
	others := make([]*model.NodeConfig, 0, len(snapshot))
	for _, n := range snapshot {
		if n.Name == originalName {
			continue
		}
		others = append(others, n)
	}
	return others
}

// checkHeapSize validates the heap format and the ceiling against total
// system memory. Units normalize to gigabytes by exact binary scaling.
func (v *Validator) checkHeapSize(heap string) *model.Conflict {
	if !heapSizePattern.MatchString(heap) {
		return &model.Conflict{
			Type:    model.ConflictHeapSize,
			Message: fmt.Sprintf("heap size '%s' is malformed; expected a number followed by k, m, g or t", heap),
		}
	}

	gb, err := HeapSizeGigabytes(heap)
	if err != nil {
		return &model.Conflict{
			Type:    model.ConflictHeapSize,
			Message: err.Error(),
		}
	}

	totalBytes, err := v.memory.TotalMemoryBytes()
	if err != nil {
		return &model.Conflict{
			Type:    model.ConflictHeapSize,
			Message: fmt.Sprintf("cannot verify heap size against system memory: %v", err),
		}
	}
	totalGB := float64(totalBytes) / (1024 * 1024 * 1024)
	limitGB := totalGB * v.maxHeapFraction

	if gb > limitGB {
		return &model.Conflict{
			Type:    model.ConflictHeapSize,
			Message: fmt.Sprintf("heap size %s (%.2f GB) exceeds %.0f%% of total system memory (limit %.2f GB)", heap, gb, v.maxHeapFraction*100, limitGB),
		}
	}
	return nil
}

// HeapSizeGigabytes normalizes a heap size string to gigabytes
func HeapSizeGigabytes(heap string) (float64, error) {
	if len(heap) < 2 {
		return 0, fmt.Errorf("heap size '%s' is too short", heap)
	}
	unit := strings.ToLower(heap[len(heap)-1:])
	value, err := strconv.ParseFloat(heap[:len(heap)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("heap size '%s' has a non-numeric quantity", heap)
	}

	switch unit {
	case "k":
		return value / (1024 * 1024), nil
	case "m":
		return value / 1024, nil
	case "g":
		return value, nil
	case "t":
		return value * 1024, nil
	default:
		return 0, fmt.Errorf("heap size '%s' has an unknown unit", heap)
	}
}

// computeSuggestions populates remediation values for name and port
// conflicts. A name conflict alone still yields a name list without port
// suggestions, and vice versa.
func (v *Validator) computeSuggestions(candidate *model.NodeConfig, others []*model.NodeConfig, result *model.ValidationResult) error {
	taken := takenPorts(others)

	if result.HasConflict(model.ConflictHTTPPort) {
		port, err := v.FreePort(candidate.HTTPPort, DefaultHTTPPortBaseline, taken)
		if err != nil {
			return err
		}
		result.Suggestions.HTTPPort = port
		taken[port] = true
	}
	if result.HasConflict(model.ConflictTransportPort) {
		// The transport suggestion must clear the candidate's http port
		// too, or an http==transport collision would suggest itself back
		if candidate.HTTPPort > 0 {
			taken[candidate.HTTPPort] = true
		}
		port, err := v.FreePort(candidate.TransportPort, DefaultTransportPortBaseline, taken)
		if err != nil {
			return err
		}
		result.Suggestions.TransportPort = port
	}
	if result.HasConflict(model.ConflictNodeName) && candidate.Name != "" {
		result.Suggestions.NodeName = v.freeNames(candidate.Name, others)
	}
	return nil
}

// FreePort scans upward from the requested port (or the baseline when no
// port was requested) in increments of one, skipping every port held by
// the comparison set. The scan is bounded; exhaustion is an error rather
// than an unbounded loop.
func (v *Validator) FreePort(requested, baseline int, taken map[int]bool) (int, error) {
	start := requested
	if start <= 0 {
		start = baseline
	}
	for port := start; port < start+v.portSearchWindow; port++ {
		if port > 65535 {
			break
		}
		if !taken[port] {
			return port, nil
		}
	}
	return 0, errors.ResourceExhausted("port", v.portSearchWindow)
}

// freeNames produces an ordered candidate list by appending -2, -3, ...
// to the base name, skipping names present in the comparison set.
func (v *Validator) freeNames(base string, others []*model.NodeConfig) []string {
	existing := make(map[string]bool, len(others))
	for _, n := range others {
		existing[n.Name] = true
	}

	names := make([]string, 0, v.maxNameCandidates)
	for suffix := 2; len(names) < v.maxNameCandidates; suffix++ {
		candidate := fmt.Sprintf("%s-%d", base, suffix)
		if !existing[candidate] {
			names = append(names, candidate)
		}
	}
	return names
}

// takenPorts collects both port fields of every node in the comparison set
func takenPorts(others []*model.NodeConfig) map[int]bool {
	taken := make(map[int]bool, len(others)*2)
	for _, n := range others {
		taken[n.HTTPPort] = true
		taken[n.TransportPort] = true
	}
	return taken
}
