package service

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/sayfpack13/TrustQuery-sub002/internal/config"
	managererrors "github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/materializer"
	"github.com/sayfpack13/TrustQuery-sub002/internal/metrics"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"github.com/sayfpack13/TrustQuery-sub002/internal/reconciler"
	"github.com/sayfpack13/TrustQuery-sub002/internal/registry"
	"github.com/sayfpack13/TrustQuery-sub002/internal/supervisor"
	"github.com/sayfpack13/TrustQuery-sub002/internal/util/keyedmutex"
	"github.com/sayfpack13/TrustQuery-sub002/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Orchestrator sequences the validator, materializer and reconciler for
// every operator-initiated action. Mutations hold an exclusive lock
// scoped to the node names they touch, so unrelated nodes proceed
// concurrently; validation reads work on a point-in-time registry
// snapshot.
type Orchestrator struct {
	registry     registry.Registry
	validator    *validation.Validator
	materializer *materializer.Materializer
	supervisor   supervisor.Supervisor
	reconciler   *reconciler.Reconciler
	locks        *keyedmutex.KeyedMutex
	metrics      *metrics.Metrics
	reconcile    config.ReconcileConfig
	logger       *zap.Logger

	// lifetime scopes detached reconciliation loops to the manager
	// process, not to the HTTP request that initiated them
	lifetime context.Context
}

// New creates a new orchestrator. The lifetime context bounds background
// reconciliation loops; cancelling it stops all polling on shutdown.
func New(
	lifetime context.Context,
	reg registry.Registry,
	validator *validation.Validator,
	mat *materializer.Materializer,
	sup supervisor.Supervisor,
	rec *reconciler.Reconciler,
	reconcileCfg config.ReconcileConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &Orchestrator{
		registry:     reg,
		validator:    validator,
		materializer: mat,
		supervisor:   sup,
		reconciler:   rec,
		locks:        keyedmutex.New(),
		metrics:      m,
		reconcile:    reconcileCfg,
		logger:       logger,
		lifetime:     lifetime,
	}
}

// Validate checks a candidate configuration against the registry without
// touching anything. originalName is non-empty for update validation.
func (o *Orchestrator) Validate(ctx context.Context, candidate *model.NodeConfig, originalName string) (*model.ValidationResult, error) {
	snapshot, err := o.registry.List(ctx)
	if err != nil {
		return nil, managererrors.RegistryFailed("failed to snapshot registry", err)
	}

	mode := validation.ModeCreate
	if originalName != "" {
		mode = validation.ModeUpdate
	}

	result, err := o.validator.Validate(candidate, mode, originalName, snapshot)
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		types := make([]string, 0, len(result.Conflicts))
		for _, c := range result.Conflicts {
			types = append(types, string(c.Type))
		}
		o.metrics.RecordValidation(string(mode), result.Valid, types)
	}
	return result, nil
}

// ListNodes returns all registered nodes with observed process state
// overlaid. With refresh, every node is probed first so the view is
// settled rather than cached.
func (o *Orchestrator) ListNodes(ctx context.Context, refresh bool) ([]*model.NodeConfig, error) {
	nodes, err := o.registry.List(ctx)
	if err != nil {
		return nil, managererrors.RegistryFailed("failed to list nodes", err)
	}

	if refresh {
		g, gctx := errgroup.WithContext(ctx)
		for _, node := range nodes {
			node := node
			g.Go(func() error {
				_, err := o.reconciler.Refresh(gctx, node)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			o.logger.Warn("refresh probe failed for at least one node", zap.Error(err))
		}
	}

	running := 0
	for _, node := range nodes {
		o.overlayObserved(node)
		if node.IsRunning {
			running++
		}
	}
	if o.metrics != nil {
		o.metrics.UpdateNodeCounts(len(nodes), running)
	}
	return nodes, nil
}

// GetNode returns one node with observed state overlaid
func (o *Orchestrator) GetNode(ctx context.Context, name string) (*model.NodeConfig, error) {
	node, err := o.registry.Get(ctx, name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, managererrors.NodeNotFound(name)
		}
		return nil, managererrors.RegistryFailed("failed to get node", err)
	}
	o.overlayObserved(node)
	return node, nil
}

// Clusters returns the derived cluster list
func (o *Orchestrator) Clusters(ctx context.Context) ([]*model.Cluster, error) {
	nodes, err := o.registry.List(ctx)
	if err != nil {
		return nil, managererrors.RegistryFailed("failed to list nodes", err)
	}
	return model.ClustersFromNodes(nodes), nil
}

// CreateNode validates and materializes a new node, then registers it.
// A conflicting candidate returns the full validation result alongside
// the error so the caller can self-correct without a second round trip.
func (o *Orchestrator) CreateNode(ctx context.Context, candidate *model.NodeConfig) (*model.NodeConfig, *model.ValidationResult, error) {
	o.locks.Lock(candidate.Name)
	defer o.locks.Unlock(candidate.Name)

	if err := materializer.CheckLayout(candidate); err != nil {
		return nil, nil, err
	}

	result, err := o.Validate(ctx, candidate, "")
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, result, managererrors.Conflict(candidate.Name, len(result.Conflicts))
	}

	if err := o.materializer.Create(candidate); err != nil {
		return nil, nil, err
	}
	if err := o.registry.Create(ctx, candidate); err != nil {
		// The layout was just created for this node; remove it again so
		// filesystem and registry stay in agreement
		if rmErr := o.materializer.Remove(candidate); rmErr != nil {
			o.logger.Error("failed to remove layout after registry failure",
				zap.String("node", candidate.Name),
				zap.Error(rmErr))
		}
		if errors.Is(err, registry.ErrAlreadyExists) {
			return nil, nil, managererrors.Conflict(candidate.Name, 1)
		}
		return nil, nil, managererrors.RegistryFailed("failed to register node", err)
	}

	o.logger.Info("node created",
		zap.String("node", candidate.Name),
		zap.String("cluster", candidate.Cluster))
	return candidate, nil, nil
}

// UpdateNode replaces the configuration of a stopped node. Data and logs
// paths cannot change through update; relocation is Move's job. A rename
// carries the on-disk home directory along with the record.
func (o *Orchestrator) UpdateNode(ctx context.Context, originalName string, candidate *model.NodeConfig) (*model.NodeConfig, *model.ValidationResult, error) {
	o.locks.LockPair(originalName, candidate.Name)
	defer o.locks.UnlockPair(originalName, candidate.Name)

	existing, err := o.GetNode(ctx, originalName)
	if err != nil {
		return nil, nil, err
	}
	if err := o.requireStopped(ctx, existing); err != nil {
		return nil, nil, err
	}

	renamed := candidate.Name != originalName
	if renamed {
		// The home directory is named after the node; derive the paths
		// the rename will produce and validate those
		_, dataPath, logsPath := materializer.Layout(basePathOf(existing), candidate.Name)
		candidate.DataPath = dataPath
		candidate.LogsPath = logsPath
	} else if candidate.DataPath != existing.DataPath || candidate.LogsPath != existing.LogsPath {
		return nil, nil, managererrors.InvalidArgument("data and logs paths cannot be changed by update; use move", nil)
	}

	result, err := o.Validate(ctx, candidate, originalName)
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, result, managererrors.Conflict(candidate.Name, len(result.Conflicts))
	}

	if renamed {
		if err := o.materializer.Rename(existing, candidate.Name); err != nil {
			return nil, nil, err
		}
	}

	// Restore the pre-update home and configuration file. Registered
	// records must never point at a config file they don't describe.
	restore := func() {
		if renamed {
			if rbErr := o.materializer.Rename(candidate, originalName); rbErr != nil {
				o.logger.Error("failed to restore home directory after update failure",
					zap.String("node", originalName),
					zap.Error(rbErr))
				return
			}
		}
		if wrErr := o.materializer.WriteConfigFile(existing); wrErr != nil {
			o.logger.Error("failed to restore node configuration file after update failure",
				zap.String("node", originalName),
				zap.Error(wrErr))
		}
	}

	// The on-disk file commits before the record so a failure at either
	// step leaves both sides on the old configuration
	if err := o.materializer.WriteConfigFile(candidate); err != nil {
		restore()
		return nil, nil, err
	}
	if err := o.registry.Update(ctx, originalName, candidate); err != nil {
		restore()
		return nil, nil, managererrors.RegistryFailed("failed to update node", err)
	}

	if renamed {
		o.reconciler.Forget(originalName)
	}

	o.logger.Info("node updated",
		zap.String("original", originalName),
		zap.String("node", candidate.Name))
	return candidate, nil, nil
}

// DeleteNode deregisters a stopped node and removes its on-disk layout
func (o *Orchestrator) DeleteNode(ctx context.Context, name string) error {
	o.locks.Lock(name)
	defer o.locks.Unlock(name)

	node, err := o.GetNode(ctx, name)
	if err != nil {
		return err
	}
	if err := o.requireStopped(ctx, node); err != nil {
		return err
	}

	if err := o.registry.Delete(ctx, name); err != nil {
		return managererrors.RegistryFailed("failed to deregister node", err)
	}
	if err := o.materializer.Remove(node); err != nil {
		// The record is gone; surface the orphaned files rather than
		// pretending the delete was clean
		return err
	}
	o.reconciler.Forget(name)

	o.logger.Info("node deleted", zap.String("node", name))
	return nil
}

// MoveNode relocates a stopped node's layout to a new base path. The
// registry record is only rewritten after the physical move commits.
func (o *Orchestrator) MoveNode(ctx context.Context, name, newBasePath string, preserveData bool) (*model.NodeConfig, error) {
	o.locks.Lock(name)
	defer o.locks.Unlock(name)

	node, err := o.GetNode(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := o.requireStopped(ctx, node); err != nil {
		return nil, err
	}

	moved, err := o.materializer.Move(node, newBasePath, preserveData)
	if err != nil {
		return nil, err
	}

	if err := o.registry.Update(ctx, name, moved); err != nil {
		// Physical move succeeded but the record didn't; put the files
		// back so registry and filesystem agree
		if _, rbErr := o.materializer.Move(moved, basePathOf(node), true); rbErr != nil {
			o.logger.Error("failed to restore layout after registry failure",
				zap.String("node", name),
				zap.Error(rbErr))
		}
		return nil, managererrors.RegistryFailed("failed to record move", err)
	}

	o.logger.Info("node moved",
		zap.String("node", name),
		zap.String("base_path", newBasePath),
		zap.Bool("preserve_data", preserveData))
	return moved, nil
}

// CopyNode duplicates a node under a new name and base path. The copy is
// a brand-new configuration: free ports are allocated through the
// conflict resolver and the result passes full create validation. A copy
// of a running source is a best-effort snapshot, logged but not refused.
func (o *Orchestrator) CopyNode(ctx context.Context, sourceName, newName, newBasePath string, copyData bool) (*model.NodeConfig, *model.ValidationResult, error) {
	o.locks.LockPair(sourceName, newName)
	defer o.locks.UnlockPair(sourceName, newName)

	source, err := o.GetNode(ctx, sourceName)
	if err != nil {
		return nil, nil, err
	}
	if source.IsRunning && copyData {
		o.logger.Warn("copying data of a running node; the snapshot may be inconsistent",
			zap.String("node", sourceName))
	}

	snapshot, err := o.registry.List(ctx)
	if err != nil {
		return nil, nil, managererrors.RegistryFailed("failed to snapshot registry", err)
	}

	target := source.Clone()
	target.Name = newName
	target.IsRunning = false
	target.State = ""
	_, target.DataPath, target.LogsPath = materializer.Layout(newBasePath, newName)

	taken := make(map[int]bool, len(snapshot)*2)
	for _, n := range snapshot {
		taken[n.HTTPPort] = true
		taken[n.TransportPort] = true
	}
	if target.HTTPPort, err = o.validator.FreePort(source.HTTPPort, validation.DefaultHTTPPortBaseline, taken); err != nil {
		return nil, nil, err
	}
	taken[target.HTTPPort] = true
	if target.TransportPort, err = o.validator.FreePort(source.TransportPort, validation.DefaultTransportPortBaseline, taken); err != nil {
		return nil, nil, err
	}

	result, err := o.validator.Validate(target, validation.ModeCreate, "", snapshot)
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, result, managererrors.Conflict(newName, len(result.Conflicts))
	}

	if err := o.materializer.Copy(source, target, copyData); err != nil {
		return nil, nil, err
	}
	if err := o.registry.Create(ctx, target); err != nil {
		if rmErr := o.materializer.Remove(target); rmErr != nil {
			o.logger.Error("failed to remove layout after registry failure",
				zap.String("node", newName),
				zap.Error(rmErr))
		}
		return nil, nil, managererrors.RegistryFailed("failed to register copied node", err)
	}

	o.logger.Info("node copied",
		zap.String("source", sourceName),
		zap.String("target", newName),
		zap.Bool("copy_data", copyData))
	return target, nil, nil
}

// StartNode issues the launch command and returns once it is accepted.
// Convergence is driven by a detached reconciliation loop; the settled
// state is visible through a subsequent list or get.
func (o *Orchestrator) StartNode(ctx context.Context, name string) error {
	node, err := o.GetNode(ctx, name)
	if err != nil {
		return err
	}

	running, err := o.reconciler.Refresh(ctx, node)
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	if err := o.supervisor.Launch(ctx, node); err != nil {
		return managererrors.SupervisorFailed("failed to launch node process", err)
	}

	o.awaitInBackground(node, true, o.reconcile.StartAttempts, o.reconcile.StartInterval)
	return nil
}

// StopNode issues the terminate command and returns once it is accepted
func (o *Orchestrator) StopNode(ctx context.Context, name string) error {
	node, err := o.GetNode(ctx, name)
	if err != nil {
		return err
	}

	running, err := o.reconciler.Refresh(ctx, node)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	if err := o.supervisor.Terminate(ctx, node); err != nil {
		return managererrors.SupervisorFailed("failed to terminate node process", err)
	}

	o.awaitInBackground(node, false, o.reconcile.StopAttempts, o.reconcile.StopInterval)
	return nil
}

// AwaitConvergence runs the reconciliation loop in the caller's context
// and returns its tagged result. Used by callers that want to block on
// the transition instead of polling the list endpoint.
func (o *Orchestrator) AwaitConvergence(ctx context.Context, name string, desiredRunning bool) (reconciler.Result, error) {
	node, err := o.GetNode(ctx, name)
	if err != nil {
		return reconciler.Result{}, err
	}
	attempts, interval := o.budgetFor(desiredRunning)
	return o.runAwait(ctx, node, desiredRunning, attempts, interval), nil
}

// awaitInBackground detaches the reconciliation loop from the request
// that initiated it: the operator navigating away must not cancel the
// convergence wait bookkeeping, only the manager shutting down does.
func (o *Orchestrator) awaitInBackground(node *model.NodeConfig, desiredRunning bool, attempts int, interval time.Duration) {
	go func() {
		o.runAwait(o.lifetime, node, desiredRunning, attempts, interval)
	}()
}

func (o *Orchestrator) runAwait(ctx context.Context, node *model.NodeConfig, desiredRunning bool, attempts int, interval time.Duration) reconciler.Result {
	transition := "stop"
	if desiredRunning {
		transition = "start"
	}

	started := time.Now()
	result := o.reconciler.Await(ctx, node, desiredRunning, attempts, interval)
	if o.metrics != nil {
		o.metrics.RecordReconcile(transition, string(result.Outcome), time.Since(started).Seconds())
	}
	return result
}

// requireStopped rejects mutations of a node whose observed state is not
// settled stopped. The probe runs live so the guard never trusts a stale
// reading, and it runs before any filesystem mutation.
func (o *Orchestrator) requireStopped(ctx context.Context, node *model.NodeConfig) error {
	if _, state, ok := o.reconciler.Observed(node.Name); ok {
		if state == model.LifecycleStarting || state == model.LifecycleStopping {
			return managererrors.GuardViolation(node.Name, string(state))
		}
	}

	running, err := o.reconciler.Refresh(ctx, node)
	if err != nil {
		return err
	}
	if running {
		return managererrors.GuardViolation(node.Name, string(model.LifecycleRunning))
	}
	return nil
}

// overlayObserved stamps the reconciler's view onto a registry record
func (o *Orchestrator) overlayObserved(node *model.NodeConfig) {
	running, state, ok := o.reconciler.Observed(node.Name)
	if !ok {
		node.IsRunning = false
		node.State = model.LifecycleStopped
		return
	}
	node.IsRunning = running
	node.State = state
}

// budgetFor returns the attempt budget for a transition
func (o *Orchestrator) budgetFor(desiredRunning bool) (int, time.Duration) {
	if desiredRunning {
		return o.reconcile.StartAttempts, o.reconcile.StartInterval
	}
	return o.reconcile.StopAttempts, o.reconcile.StopInterval
}

// basePathOf returns the directory a node's home lives under
func basePathOf(node *model.NodeConfig) string {
	return filepath.Dir(node.HomePath())
}
