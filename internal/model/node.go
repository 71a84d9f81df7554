package model

import (
	"path/filepath"
	"time"
)

// LifecycleState represents the observed lifecycle state of a managed node
type LifecycleState string

const (
	// LifecycleStopped indicates the node process is not running
	LifecycleStopped LifecycleState = "stopped"
	// LifecycleStarting indicates a start command was issued and convergence is pending
	LifecycleStarting LifecycleState = "starting"
	// LifecycleRunning indicates the node process is up and answering its probe
	LifecycleRunning LifecycleState = "running"
	// LifecycleStopping indicates a stop command was issued and convergence is pending
	LifecycleStopping LifecycleState = "stopping"
	// LifecycleUnreachable indicates the node did not converge within the attempt budget
	LifecycleUnreachable LifecycleState = "unreachable"
)

// Roles holds the capability flags of a node. Each flag is independently
// toggleable; whether an all-false set is rejected is a policy decision.
type Roles struct {
	Master bool `json:"master" yaml:"master"`
	Data   bool `json:"data" yaml:"data"`
	Ingest bool `json:"ingest" yaml:"ingest"`
}

// None reports whether every role flag is disabled
func (r Roles) None() bool {
	return !r.Master && !r.Data && !r.Ingest
}

// NodeConfig is the registered configuration of one managed search node.
// IsRunning and State are observed, never persisted: the registry stores
// the desired configuration and the reconciler overlays process state.
type NodeConfig struct {
	Name          string    `json:"name" yaml:"name"`
	Host          string    `json:"host" yaml:"host"`
	HTTPPort      int       `json:"http_port" yaml:"http_port"`
	TransportPort int       `json:"transport_port" yaml:"transport_port"`
	Cluster       string    `json:"cluster" yaml:"cluster"`
	DataPath      string    `json:"data_path" yaml:"data_path"`
	LogsPath      string    `json:"logs_path" yaml:"logs_path"`
	Roles         Roles     `json:"roles" yaml:"roles"`
	HeapSize      string    `json:"heap_size" yaml:"heap_size"`
	CreatedAt     time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at,omitempty" yaml:"-"`

	IsRunning bool           `json:"is_running" yaml:"-"`
	State     LifecycleState `json:"state,omitempty" yaml:"-"`
}

// HomePath returns the node's home directory, the parent of its data directory.
// The materializer lays every node out as <base>/<name>/{config,data,logs}.
func (n *NodeConfig) HomePath() string {
	return filepath.Dir(n.DataPath)
}

// ConfigFilePath returns the path of the generated node configuration file
func (n *NodeConfig) ConfigFilePath() string {
	return filepath.Join(n.HomePath(), "config", "node.yml")
}

// Clone returns a deep copy of the configuration
func (n *NodeConfig) Clone() *NodeConfig {
	c := *n
	return &c
}

// ProcessStatus is the result of a supervisor health probe
type ProcessStatus struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}
