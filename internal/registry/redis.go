package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"go.uber.org/zap"
)

// RedisRegistry implements Registry backed by a Redis hash. Every record
// lives in one hash keyed by node name, so List is a single HGETALL and
// renames can be applied in one transaction.
type RedisRegistry struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisRegistry creates a new Redis-backed registry
func NewRedisRegistry(host string, port int, password string, db int, keyPrefix string, logger *zap.Logger) (*RedisRegistry, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRegistry{
		client: client,
		key:    keyPrefix + ":nodes",
		logger: logger,
	}, nil
}

// Get retrieves a node by name
func (r *RedisRegistry) Get(ctx context.Context, name string) (*model.NodeConfig, error) {
	data, err := r.client.HGet(ctx, r.key, name).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var node model.NodeConfig
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node record: %w", err)
	}
	return &node, nil
}

// List returns all registered nodes, ordered by name
func (r *RedisRegistry) List(ctx context.Context) ([]*model.NodeConfig, error) {
	records, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}

	nodes := make([]*model.NodeConfig, 0, len(records))
	for name, data := range records {
		var node model.NodeConfig
		if err := json.Unmarshal([]byte(data), &node); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node record %s: %w", name, err)
		}
		nodes = append(nodes, &node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	return nodes, nil
}

// Create registers a new node
func (r *RedisRegistry) Create(ctx context.Context, node *model.NodeConfig) error {
	stored := node.Clone()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	stored.IsRunning = false
	stored.State = ""

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal node record: %w", err)
	}

	ok, err := r.client.HSetNX(ctx, r.key, stored.Name, data).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyExists
	}

	r.logger.Debug("node registered", zap.String("node", stored.Name))
	return nil
}

// Update replaces the record named originalName with node
func (r *RedisRegistry) Update(ctx context.Context, originalName string, node *model.NodeConfig) error {
	existing, err := r.Get(ctx, originalName)
	if err != nil {
		return err
	}

	stored := node.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	stored.IsRunning = false
	stored.State = ""

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal node record: %w", err)
	}

	pipe := r.client.TxPipeline()
	if stored.Name != originalName {
		taken, err := r.client.HExists(ctx, r.key, stored.Name).Result()
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyExists
		}
		pipe.HDel(ctx, r.key, originalName)
	}
	pipe.HSet(ctx, r.key, stored.Name, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	r.logger.Debug("node updated",
		zap.String("original", originalName),
		zap.String("node", stored.Name))
	return nil
}

// Delete removes a node
func (r *RedisRegistry) Delete(ctx context.Context, name string) error {
	removed, err := r.client.HDel(ctx, r.key, name).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}

	r.logger.Debug("node deregistered", zap.String("node", name))
	return nil
}

// Ping checks the Redis connection
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
