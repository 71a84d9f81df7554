package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"go.uber.org/zap"
)

const nodesSchema = `
	CREATE TABLE IF NOT EXISTS nodes (
		name           TEXT PRIMARY KEY,
		host           TEXT NOT NULL,
		http_port      INT NOT NULL,
		transport_port INT NOT NULL,
		cluster_name   TEXT NOT NULL,
		data_path      TEXT NOT NULL,
		logs_path      TEXT NOT NULL,
		role_master    BOOLEAN NOT NULL,
		role_data      BOOLEAN NOT NULL,
		role_ingest    BOOLEAN NOT NULL,
		heap_size      TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresRegistry implements Registry for PostgreSQL
type PostgresRegistry struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRegistry creates a new PostgreSQL registry
func NewPostgresRegistry(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresRegistry, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), nodesSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure nodes table: %w", err)
	}

	return &PostgresRegistry{
		pool:   pool,
		logger: logger,
	}, nil
}

// Get retrieves a node by name
func (r *PostgresRegistry) Get(ctx context.Context, name string) (*model.NodeConfig, error) {
	query := `
		SELECT name, host, http_port, transport_port, cluster_name, data_path, logs_path,
		       role_master, role_data, role_ingest, heap_size, created_at, updated_at
		FROM nodes
		WHERE name = $1
	`

	var node model.NodeConfig
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&node.Name,
		&node.Host,
		&node.HTTPPort,
		&node.TransportPort,
		&node.Cluster,
		&node.DataPath,
		&node.LogsPath,
		&node.Roles.Master,
		&node.Roles.Data,
		&node.Roles.Ingest,
		&node.HeapSize,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	return &node, nil
}

// List retrieves all registered nodes
func (r *PostgresRegistry) List(ctx context.Context) ([]*model.NodeConfig, error) {
	query := `
		SELECT name, host, http_port, transport_port, cluster_name, data_path, logs_path,
		       role_master, role_data, role_ingest, heap_size, created_at, updated_at
		FROM nodes
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]*model.NodeConfig, 0)
	for rows.Next() {
		var node model.NodeConfig
		if err := rows.Scan(
			&node.Name,
			&node.Host,
			&node.HTTPPort,
			&node.TransportPort,
			&node.Cluster,
			&node.DataPath,
			&node.LogsPath,
			&node.Roles.Master,
			&node.Roles.Data,
			&node.Roles.Ingest,
			&node.HeapSize,
			&node.CreatedAt,
			&node.UpdatedAt,
		); err != nil {
			return nil, err
		}
		nodes = append(nodes, &node)
	}

	return nodes, rows.Err()
}

// Create registers a new node
func (r *PostgresRegistry) Create(ctx context.Context, node *model.NodeConfig) error {
	query := `
		INSERT INTO nodes (name, host, http_port, transport_port, cluster_name, data_path, logs_path,
		                   role_master, role_data, role_ingest, heap_size, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (name) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		node.Name,
		node.Host,
		node.HTTPPort,
		node.TransportPort,
		node.Cluster,
		node.DataPath,
		node.LogsPath,
		node.Roles.Master,
		node.Roles.Data,
		node.Roles.Ingest,
		node.HeapSize,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadyExists
	}

	return nil
}

// Update replaces the record named originalName with node. The rename and
// field update happen in one statement so no intermediate state is visible.
func (r *PostgresRegistry) Update(ctx context.Context, originalName string, node *model.NodeConfig) error {
	query := `
		UPDATE nodes
		SET name = $2, host = $3, http_port = $4, transport_port = $5, cluster_name = $6,
		    data_path = $7, logs_path = $8, role_master = $9, role_data = $10,
		    role_ingest = $11, heap_size = $12, updated_at = NOW()
		WHERE name = $1
	`

	result, err := r.pool.Exec(ctx, query,
		originalName,
		node.Name,
		node.Host,
		node.HTTPPort,
		node.TransportPort,
		node.Cluster,
		node.DataPath,
		node.LogsPath,
		node.Roles.Master,
		node.Roles.Data,
		node.Roles.Ingest,
		node.HeapSize,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a node
func (r *PostgresRegistry) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM nodes WHERE name = $1`
	result, err := r.pool.Exec(ctx, query, name)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks the database connection
func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool
func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}
