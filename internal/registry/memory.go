package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"go.uber.org/zap"
)

// MemoryRegistry implements Registry using an in-memory map. List holds
// the read lock for the whole copy so a half-applied concurrent mutation
// is never visible mid-scan.
type MemoryRegistry struct {
	nodes  map[string]*model.NodeConfig
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryRegistry creates a new in-memory registry
func NewMemoryRegistry(logger *zap.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		nodes:  make(map[string]*model.NodeConfig),
		logger: logger,
	}
}

// Get retrieves a node by name
func (r *MemoryRegistry) Get(ctx context.Context, name string) (*model.NodeConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, exists := r.nodes[name]
	if !exists {
		return nil, ErrNotFound
	}
	return node.Clone(), nil
}

// List returns a snapshot of all registered nodes, ordered by name
func (r *MemoryRegistry) List(ctx context.Context) ([]*model.NodeConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]*model.NodeConfig, 0, len(r.nodes))
	for _, node := range r.nodes {
		nodes = append(nodes, node.Clone())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	return nodes, nil
}

// Create registers a new node
func (r *MemoryRegistry) Create(ctx context.Context, node *model.NodeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[node.Name]; exists {
		return ErrAlreadyExists
	}

	stored := node.Clone()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.nodes[node.Name] = stored

	r.logger.Debug("node registered", zap.String("node", node.Name))
	return nil
}

// Update replaces the record named originalName with node
func (r *MemoryRegistry) Update(ctx context.Context, originalName string, node *model.NodeConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.nodes[originalName]
	if !exists {
		return ErrNotFound
	}
	if node.Name != originalName {
		if _, taken := r.nodes[node.Name]; taken {
			return ErrAlreadyExists
		}
		delete(r.nodes, originalName)
	}

	stored := node.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	r.nodes[stored.Name] = stored

	r.logger.Debug("node updated",
		zap.String("original", originalName),
		zap.String("node", stored.Name))
	return nil
}

// Delete removes a node
func (r *MemoryRegistry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[name]; !exists {
		return ErrNotFound
	}
	delete(r.nodes, name)

	r.logger.Debug("node deregistered", zap.String("node", name))
	return nil
}

// Ping always succeeds for the in-memory backend
func (r *MemoryRegistry) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend
func (r *MemoryRegistry) Close() error {
	return nil
}
