package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/registry"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// sequencer keeps job calls for the same rollup in arrival order without blocking the
// calls of other rollups.
type sequencer struct {
	mu    sync.Mutex
	tails map[rollup.ID]chan struct{}
}

// enter returns a channel closed when the previous call for id finished (nil if there is
// none) and the func the caller must invoke once it is done itself.
func (s *sequencer) enter(id rollup.ID) (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tails == nil {
		s.tails = make(map[rollup.ID]chan struct{})
	}

	prev := s.tails[id]
	done := make(chan struct{})
	s.tails[id] = done

	return prev, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		close(done)
		if s.tails[id] == done {
			delete(s.tails, id)
		}
	}
}

// Run handles job calls from in until it is closed or ctx is done, writing one result per
// call to out. Calls for different rollups run concurrently; calls for the same rollup run
// in arrival order. Run waits for in-flight calls before returning and never closes out, so
// out must be drained until Run returns.
func (d *Dispatcher) Run(ctx context.Context, in <-chan jobs.JobCall, out chan<- jobs.Result) error {
	var (
		g     errgroup.Group
		seq   sequencer
		slots = semaphore.NewWeighted(int64(d.cfg.MaxConcurrentJobs))
	)

	d.logger.With("max_concurrent_jobs", d.cfg.MaxConcurrentJobs).Info("dispatcher accepting job calls")

	var runErr error
loop:
	for {
		// a free slot is taken before reading, so a full dispatcher leaves calls in the channel
		if err := slots.Acquire(ctx, 1); err != nil {
			runErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			slots.Release(1)
			runErr = err
			break
		}

		select {
		case <-ctx.Done():
			slots.Release(1)
			runErr = ctx.Err()
			break loop
		case call, ok := <-in:
			if !ok {
				slots.Release(1)
				break loop
			}

			// calls with unreadable inputs fail without touching any rollup and need no ordering
			key, err := resolveID(call)
			if err != nil {
				key = ""
			}

			var (
				wait <-chan struct{}
				done = func() {}
			)
			if key != "" {
				wait, done = seq.enter(key)
			}

			g.Go(func() error {
				defer slots.Release(1)
				defer done()
				if wait != nil {
					<-wait
				}
				out <- d.Handle(ctx, call)
				return nil
			})
		}
	}

	d.logger.Info("dispatcher stopped accepting job calls, waiting for in-flight jobs")
	_ = g.Wait()

	return runErr
}

// Reconcile aligns every registered rollup with what its container is actually doing. It is
// meant to run once at startup, before Run accepts job calls.
func (d *Dispatcher) Reconcile(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrentJobs)

	records := d.registry.List()
	for _, rec := range records {
		g.Go(func() error {
			return d.reconcileOne(ctx, rec.ID)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to reconcile registry: %w", err)
	}

	d.metrics.RecordRollups(d.registry.List())
	d.logger.With("rollups", len(records)).Info("registry reconciled with container runtime")

	return nil
}

func (d *Dispatcher) reconcileOne(ctx context.Context, id rollup.ID) error {
	release := d.registry.Acquire(id)
	defer release()

	rec, err := d.registry.Get(id)
	if errors.Is(err, registry.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	health, found := d.driver.Health(ctx, containerOf(rec))
	update := reconciledUpdate(rec, health, found)
	if update.Status == rec.State.Status {
		return nil
	}

	if _, err := d.registry.Transition(id, update); err != nil {
		return fmt.Errorf("rollup %s: %w", id, err)
	}

	d.logger.With("rollup_id", id, "from", rec.State.Status, "to", update.Status).Info("rollup status reconciled")

	return nil
}

// reconciledUpdate maps observed container health onto the status the rollup should have,
// recording found as the rollup's container whenever one exists.
func reconciledUpdate(rec rollup.Record, health driver.HealthStatus, found rollup.ContainerHandle) registry.Update {
	var update registry.Update
	switch health {
	case driver.HealthRunning:
		update = registry.Update{Status: rollup.StatusActive, Container: &found}
	case driver.HealthStopped:
		update = registry.Update{Status: rollup.StatusInactive, Container: &found}
	default:
		update = registry.Update{Status: rollup.StatusFailed, LastError: "container state unknown after restart"}
	}

	if update.Status != rec.State.Status && !registry.CanTransition(rec.State.Status, update.Status) {
		return registry.Update{
			Status:    rollup.StatusFailed,
			LastError: fmt.Sprintf("%v while %s", ErrInterrupted, rec.State.Status),
		}
	}

	return update
}
