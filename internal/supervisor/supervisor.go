package supervisor

import (
	"context"

	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
)

// Supervisor is the external process collaborator. The manager issues
// launch/terminate commands and observes state through the probe; it never
// spawns or reaps engine processes itself beyond this boundary.
type Supervisor interface {
	// Launch starts the engine process for the node. It returns once the
	// command has been accepted, not once the process is serving.
	Launch(ctx context.Context, node *model.NodeConfig) error

	// Terminate asks the node's process to shut down. Fire-and-forget:
	// convergence is observed through the probe.
	Terminate(ctx context.Context, node *model.NodeConfig) error

	// Probe reports the observed process state
	Probe(ctx context.Context, node *model.NodeConfig) (model.ProcessStatus, error)
}
