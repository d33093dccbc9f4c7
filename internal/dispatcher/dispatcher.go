package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/compose-network/rollup-job-handler/internal/registry"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
)

var (
	ErrUnknownJob  = errors.New("unknown job kind")
	ErrInterrupted = errors.New("previous operation was interrupted")
)

type (
	Validator interface {
		Validate(params jobs.CreateParams) (rollup.Config, error)
	}

	Registry interface {
		Acquire(id rollup.ID) func()
		Create(id rollup.ID, serviceID uint64, cfg rollup.Config) (rollup.Record, error)
		Get(id rollup.ID) (rollup.Record, error)
		Transition(id rollup.ID, u registry.Update) (rollup.Record, error)
		Delete(id rollup.ID) error
		List() []rollup.Record
	}

	Driver interface {
		Provision(ctx context.Context, id rollup.ID, cfg rollup.Config) (rollup.ContainerHandle, error)
		Start(ctx context.Context, h rollup.ContainerHandle) error
		Stop(ctx context.Context, h rollup.ContainerHandle) error
		Remove(ctx context.Context, h rollup.ContainerHandle) error
		Health(ctx context.Context, h rollup.ContainerHandle) (driver.HealthStatus, rollup.ContainerHandle)
	}

	Metrics interface {
		JobStarted()
		JobFinished(kind string, success bool, took time.Duration)
		RecordRollups(records []rollup.Record)
	}

	Config struct {
		MaxConcurrentJobs int
	}

	// Dispatcher turns job calls into registry updates and container operations.
	Dispatcher struct {
		validator Validator
		registry  Registry
		driver    Driver
		metrics   Metrics
		cfg       Config
		logger    *slog.Logger
	}

	noopMetrics struct{}
)

func (noopMetrics) JobStarted()                             {}
func (noopMetrics) JobFinished(string, bool, time.Duration) {}
func (noopMetrics) RecordRollups([]rollup.Record)           {}

func New(validator Validator, reg Registry, drv Driver, metrics Metrics, cfg Config) *Dispatcher {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 8
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Dispatcher{
		validator: validator,
		registry:  reg,
		driver:    drv,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.Named("dispatcher"),
	}
}

// Handle processes one job call and always returns its result. Container operations run
// to completion even if ctx is cancelled so the registry never records a half-applied job.
func (d *Dispatcher) Handle(ctx context.Context, call jobs.JobCall) (res jobs.Result) {
	started := time.Now()
	d.metrics.JobStarted()

	log := d.logger.With("service_id", call.ServiceID, "call_id", call.CallID, "kind", call.Kind.String())
	defer func() {
		d.metrics.JobFinished(call.Kind.String(), res.Success, time.Since(started))
		d.metrics.RecordRollups(d.registry.List())

		log = log.With("rollup_id", res.RollupID, "success", res.Success, "took", time.Since(started).String())
		if res.Success {
			log.Info("job call handled")
		} else {
			log.With("err", res.Error).Warn("job call failed")
		}
	}()

	id, err := resolveID(call)
	if err != nil {
		return jobs.Failed(call, "", err)
	}

	release := d.registry.Acquire(id)
	defer release()

	defer func() {
		if r := recover(); r != nil {
			log.With("panic", fmt.Sprint(r), "stack", string(debug.Stack())).Error("job handler panicked")
			res = d.fail(call, id, fmt.Errorf("job handler panicked: %v", r))
		}
	}()

	ctx = context.WithoutCancel(ctx)

	switch call.Kind {
	case jobs.KindCreate:
		return d.create(ctx, call, id)
	case jobs.KindStart:
		return d.start(ctx, call, id)
	case jobs.KindStop:
		return d.stop(ctx, call, id)
	case jobs.KindDelete:
		return d.delete(ctx, call, id)
	default:
		return jobs.Failed(call, id, fmt.Errorf("%w: %s", ErrUnknownJob, call.Kind))
	}
}

func resolveID(call jobs.JobCall) (rollup.ID, error) {
	switch call.Kind {
	case jobs.KindCreate:
		return rollup.IDFromService(call.ServiceID), nil
	case jobs.KindStart, jobs.KindStop, jobs.KindDelete:
		return jobs.DecodeRollupID(call)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, call.Kind)
	}
}

func (d *Dispatcher) create(ctx context.Context, call jobs.JobCall, id rollup.ID) jobs.Result {
	params, err := jobs.DecodeCreate(call.Inputs)
	if err != nil {
		return jobs.Failed(call, id, err)
	}
	cfg, err := d.validator.Validate(params)
	if err != nil {
		return jobs.Failed(call, id, fmt.Errorf("invalid rollup configuration: %w", err))
	}

	if _, err := d.registry.Create(id, call.ServiceID, cfg); err != nil {
		return jobs.Failed(call, id, err)
	}
	if _, err := d.registry.Transition(id, registry.Update{Status: rollup.StatusStarting}); err != nil {
		return d.fail(call, id, err)
	}

	handle, err := d.driver.Provision(ctx, id, cfg)
	if err != nil {
		return d.fail(call, id, err)
	}

	return d.activate(call, id, handle, cfg.ChainID)
}

func (d *Dispatcher) start(ctx context.Context, call jobs.JobCall, id rollup.ID) jobs.Result {
	rec, err := d.recoverable(id)
	if err != nil {
		return jobs.Failed(call, id, err)
	}
	if rec.State.Status == rollup.StatusActive {
		return jobs.Succeeded(call, id, rec.Config.ChainID)
	}

	if _, err := d.registry.Transition(id, registry.Update{Status: rollup.StatusStarting}); err != nil {
		return d.fail(call, id, err)
	}

	var handle rollup.ContainerHandle
	if rec.State.Status == rollup.StatusInactive && rec.State.Container != nil {
		handle = *rec.State.Container
		err = d.driver.Start(ctx, handle)
		if errors.Is(err, driver.ErrContainerGone) {
			d.logger.With("rollup_id", id).Warn("stopped container vanished, provisioning a new one")
			handle, err = d.driver.Provision(ctx, id, rec.Config)
		}
	} else {
		handle, err = d.driver.Provision(ctx, id, rec.Config)
	}
	if err != nil {
		return d.fail(call, id, err)
	}

	return d.activate(call, id, handle, rec.Config.ChainID)
}

func (d *Dispatcher) stop(ctx context.Context, call jobs.JobCall, id rollup.ID) jobs.Result {
	rec, err := d.recoverable(id)
	if err != nil {
		return jobs.Failed(call, id, err)
	}
	if rec.State.Status == rollup.StatusInactive {
		return jobs.Succeeded(call, id, rec.Config.ChainID)
	}

	if _, err := d.registry.Transition(id, registry.Update{Status: rollup.StatusStopping}); err != nil {
		return d.fail(call, id, err)
	}

	if err := d.driver.Stop(ctx, containerOf(rec)); err != nil {
		return d.fail(call, id, err)
	}

	if _, err := d.registry.Transition(id, registry.Update{Status: rollup.StatusInactive}); err != nil {
		return d.fail(call, id, err)
	}

	return jobs.Succeeded(call, id, rec.Config.ChainID)
}

func (d *Dispatcher) delete(ctx context.Context, call jobs.JobCall, id rollup.ID) jobs.Result {
	rec, err := d.registry.Get(id)
	if err != nil {
		return jobs.Failed(call, id, err)
	}

	if err := d.driver.Remove(ctx, containerOf(rec)); err != nil {
		return d.fail(call, id, err)
	}

	if err := d.registry.Delete(id); err != nil {
		return jobs.Failed(call, id, err)
	}

	return jobs.Succeeded(call, id, rec.Config.ChainID)
}

// containerOf returns the recorded container of rec, or its deterministic name when none was
// recorded. A crash between provisioning and the registry update leaves such a container behind.
func containerOf(rec rollup.Record) rollup.ContainerHandle {
	if rec.State.Container != nil {
		return *rec.State.Container
	}
	return rollup.ContainerHandle{Name: rec.ID.ContainerName()}
}

// recoverable loads a rollup for START or STOP. A rollup caught mid-operation can only be
// left over from a crash, so it is marked Failed first and then retried from there.
func (d *Dispatcher) recoverable(id rollup.ID) (rollup.Record, error) {
	rec, err := d.registry.Get(id)
	if err != nil {
		return rollup.Record{}, err
	}

	switch rec.State.Status {
	case rollup.StatusCreated, rollup.StatusStarting, rollup.StatusStopping:
		return d.registry.Transition(id, registry.Update{
			Status:    rollup.StatusFailed,
			LastError: fmt.Sprintf("%v while %s", ErrInterrupted, rec.State.Status),
		})
	default:
		return rec, nil
	}
}

func (d *Dispatcher) activate(call jobs.JobCall, id rollup.ID, handle rollup.ContainerHandle, chainID uint64) jobs.Result {
	if _, err := d.registry.Transition(id, registry.Update{Status: rollup.StatusActive, Container: &handle}); err != nil {
		return d.fail(call, id, err)
	}
	return jobs.Succeeded(call, id, chainID)
}

// fail records err on the rollup and reports it.
func (d *Dispatcher) fail(call jobs.JobCall, id rollup.ID, err error) jobs.Result {
	if _, terr := d.registry.Transition(id, registry.Update{Status: rollup.StatusFailed, LastError: err.Error()}); terr != nil {
		d.logger.With("rollup_id", id, "err", terr.Error()).Error("failed to record rollup failure")
	}
	return jobs.Failed(call, id, err)
}
