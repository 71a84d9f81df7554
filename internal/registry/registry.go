package registry

import (
	"context"
	"errors"

	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
)

// ErrNotFound is returned when a node is not registered
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a node whose name is taken
var ErrAlreadyExists = errors.New("already exists")

// Registry is the durable mapping of node name to configuration record.
// It stores and looks up; uniqueness invariants are the validator's job
// and observed process state is the reconciler's. List must return a
// consistent point-in-time snapshot.
type Registry interface {
	Get(ctx context.Context, name string) (*model.NodeConfig, error)
	List(ctx context.Context) ([]*model.NodeConfig, error)
	Create(ctx context.Context, node *model.NodeConfig) error

	// Update replaces the record named originalName with node, in one step
	// so renames cannot leave both records visible.
	Update(ctx context.Context, originalName string, node *model.NodeConfig) error

	Delete(ctx context.Context, name string) error

	// Health check
	Ping(ctx context.Context) error
	Close() error
}
