package reconciler

import (
	"context"
	"sync"
	"time"

	managererrors "github.com/sayfpack13/TrustQuery-sub002/internal/errors"
	"github.com/sayfpack13/TrustQuery-sub002/internal/model"
	"github.com/sayfpack13/TrustQuery-sub002/internal/supervisor"
	"go.uber.org/zap"
)

// Outcome tags how a reconciliation loop ended
type Outcome string

const (
	// OutcomeConverged means the observed state reached the desired state
	OutcomeConverged Outcome = "converged"
	// OutcomeTimedOut means the attempt budget ran out before convergence
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeCancelled means the caller stopped waiting; the issued
	// process command is not revoked
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the tagged outcome of one reconciliation loop
type Result struct {
	Outcome  Outcome
	Attempts int
	Running  bool
	Err      error
}

// Sleeper abstracts the polling delay so tests can drive the loop
// without wall-clock waits
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer, honouring context cancellation
type TimerSleeper struct{}

// Sleep blocks for d or until the context is done
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// observation is the reconciler's cached view of one node's process state
type observation struct {
	running bool
	state   model.LifecycleState
	at      time.Time
}

// flight is one in-progress reconciliation loop for a node
type flight struct {
	desiredRunning bool
	done           chan struct{}
	result         Result
}

// Reconciler drives observed process state toward a desired state by
// bounded polling of the supervisor's health probe. At most one loop runs
// per node name; a caller asking for the same transition joins the
// existing loop's result instead of spawning a duplicate poller.
type Reconciler struct {
	supervisor supervisor.Supervisor
	sleeper    Sleeper
	logger     *zap.Logger

	mu       sync.Mutex
	inflight map[string]*flight
	observed map[string]observation
}

// New creates a new reconciler
func New(sup supervisor.Supervisor, sleeper Sleeper, logger *zap.Logger) *Reconciler {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return &Reconciler{
		supervisor: sup,
		sleeper:    sleeper,
		logger:     logger,
		inflight:   make(map[string]*flight),
		observed:   make(map[string]observation),
	}
}

// Await polls the node's observed state every interval until it matches
// desiredRunning, the attempt budget is exhausted, or ctx is cancelled.
// Cancellation abandons only the wait, never the command already issued.
func (r *Reconciler) Await(ctx context.Context, node *model.NodeConfig, desiredRunning bool, attempts int, interval time.Duration) Result {
	r.mu.Lock()
	if existing, ok := r.inflight[node.Name]; ok {
		r.mu.Unlock()
		if existing.desiredRunning == desiredRunning {
			return r.join(ctx, existing)
		}
		op := "stop"
		if existing.desiredRunning {
			op = "start"
		}
		return Result{
			Outcome: OutcomeCancelled,
			Err:     managererrors.OperationInFlight(node.Name, op),
		}
	}

	f := &flight{desiredRunning: desiredRunning, done: make(chan struct{})}
	r.inflight[node.Name] = f
	if desiredRunning {
		r.setObserved(node.Name, false, model.LifecycleStarting)
	} else {
		r.setObserved(node.Name, true, model.LifecycleStopping)
	}
	r.mu.Unlock()

	f.result = r.poll(ctx, node, desiredRunning, attempts, interval)

	r.mu.Lock()
	delete(r.inflight, node.Name)
	r.mu.Unlock()
	close(f.done)

	return f.result
}

// join waits for an already-running loop's result
func (r *Reconciler) join(ctx context.Context, f *flight) Result {
	select {
	case <-f.done:
		return f.result
	case <-ctx.Done():
		return Result{Outcome: OutcomeCancelled, Err: ctx.Err()}
	}
}

func (r *Reconciler) poll(ctx context.Context, node *model.NodeConfig, desiredRunning bool, attempts int, interval time.Duration) Result {
	for attempt := 1; attempt <= attempts; attempt++ {
		running, err := r.probe(ctx, node)
		if err == nil && running == desiredRunning {
			state := model.LifecycleStopped
			if running {
				state = model.LifecycleRunning
			}
			r.mu.Lock()
			r.setObserved(node.Name, running, state)
			r.mu.Unlock()

			r.logger.Info("node converged",
				zap.String("node", node.Name),
				zap.Bool("running", running),
				zap.Int("attempts", attempt))
			return Result{Outcome: OutcomeConverged, Attempts: attempt, Running: running}
		}
		if err != nil {
			r.logger.Warn("health probe failed",
				zap.String("node", node.Name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		if attempt == attempts {
			break
		}
		if err := r.sleeper.Sleep(ctx, interval); err != nil {
			r.logger.Info("reconciliation wait cancelled",
				zap.String("node", node.Name),
				zap.Int("attempts", attempt))
			return Result{Outcome: OutcomeCancelled, Attempts: attempt, Err: err}
		}
	}

	// One final forced refresh so the caller's view is the node's true
	// state rather than a stale optimistic one
	running, _ := r.probe(ctx, node)
	r.mu.Lock()
	r.setObserved(node.Name, running, model.LifecycleUnreachable)
	r.mu.Unlock()

	r.logger.Warn("node did not converge",
		zap.String("node", node.Name),
		zap.Bool("desired_running", desiredRunning),
		zap.Bool("observed_running", running),
		zap.Int("attempts", attempts))
	return Result{
		Outcome:  OutcomeTimedOut,
		Attempts: attempts,
		Running:  running,
		Err:      managererrors.ReconcileTimeout(node.Name, attempts),
	}
}

// probe queries the supervisor and caches the raw reading
func (r *Reconciler) probe(ctx context.Context, node *model.NodeConfig) (bool, error) {
	status, err := r.supervisor.Probe(ctx, node)
	if err != nil {
		return false, err
	}
	return status.Running, nil
}

// Refresh probes the node once and records the observation, outside of
// any reconciliation loop
func (r *Reconciler) Refresh(ctx context.Context, node *model.NodeConfig) (bool, error) {
	status, err := r.supervisor.Probe(ctx, node)
	if err != nil {
		return false, managererrors.SupervisorFailed("health probe failed", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// An in-flight loop owns the transitional state; don't clobber it
	if _, inflight := r.inflight[node.Name]; !inflight {
		state := model.LifecycleStopped
		if status.Running {
			state = model.LifecycleRunning
		}
		r.setObserved(node.Name, status.Running, state)
	}
	return status.Running, nil
}

// Observed returns the cached view of a node's process state
func (r *Reconciler) Observed(name string) (running bool, state model.LifecycleState, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obs, ok := r.observed[name]
	if !ok {
		return false, model.LifecycleStopped, false
	}
	return obs.running, obs.state, true
}

// Forget drops the cached observation for a removed node
func (r *Reconciler) Forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observed, name)
}

// setObserved records an observation; callers hold r.mu
func (r *Reconciler) setObserved(name string, running bool, state model.LifecycleState) {
	r.observed[name] = observation{running: running, state: state, at: time.Now()}
}
