package model

// ConflictType tags a uniqueness or resource violation detected during validation
type ConflictType string

const (
	ConflictNodeName      ConflictType = "node_name"
	ConflictHTTPPort      ConflictType = "http_port"
	ConflictTransportPort ConflictType = "transport_port"
	ConflictDataPath      ConflictType = "data_path"
	ConflictLogsPath      ConflictType = "logs_path"
	ConflictHeapSize      ConflictType = "heap_size"
	ConflictRoles         ConflictType = "roles"
)

// Conflict is one detected violation between a candidate configuration
// and the existing registry
type Conflict struct {
	Type    ConflictType `json:"type"`
	Message string       `json:"message"`
}

// Suggestions carries concrete alternative values computed for a
// conflicting candidate. Fields are only populated for the conflict
// kinds actually present.
type Suggestions struct {
	HTTPPort      int      `json:"http_port,omitempty"`
	TransportPort int      `json:"transport_port,omitempty"`
	NodeName      []string `json:"node_name,omitempty"`
}

// Empty reports whether no suggestion was computed
func (s Suggestions) Empty() bool {
	return s.HTTPPort == 0 && s.TransportPort == 0 && len(s.NodeName) == 0
}

// ValidationResult is the transient outcome of validating one candidate
// configuration against a registry snapshot. It is never persisted.
type ValidationResult struct {
	Valid       bool        `json:"valid"`
	Conflicts   []Conflict  `json:"conflicts"`
	Suggestions Suggestions `json:"suggestions"`
}

// HasConflict reports whether a conflict of the given type was detected
func (r *ValidationResult) HasConflict(t ConflictType) bool {
	for _, c := range r.Conflicts {
		if c.Type == t {
			return true
		}
	}
	return false
}
