package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/containerd/errdefs"
)

type (
	HealthStatus string

	// ContainerSpec is everything the runtime needs to create a rollup container.
	ContainerSpec struct {
		Name   string
		Image  string
		Env    []string
		Labels map[string]string
	}

	ContainerState struct {
		ID      string
		Name    string
		Running bool
		Status  string
	}

	// Runtime is the container runtime the driver manages rollups on. Missing containers
	// and images are reported with errors matching errdefs.IsNotFound.
	Runtime interface {
		EnsureImage(ctx context.Context, image string) error
		Inspect(ctx context.Context, ref string) (ContainerState, error)
		Create(ctx context.Context, spec ContainerSpec) (string, error)
		Start(ctx context.Context, id string) error
		Stop(ctx context.Context, id string, timeout time.Duration) error
		Remove(ctx context.Context, id string) error
	}

	Metrics interface {
		ObserveRetry(op string)
	}

	Config struct {
		Image            string
		OperationTimeout time.Duration
		StopTimeout      time.Duration
		MaxAttempts      uint64
		InitialBackoff   time.Duration
		MaxBackoff       time.Duration
		Networks         map[rollup.Network]rollup.NetworkParams
	}

	Driver struct {
		runtime Runtime
		cfg     Config
		metrics Metrics
		logger  *slog.Logger
	}

	noopMetrics struct{}
)

const (
	HealthRunning HealthStatus = "running"
	HealthStopped HealthStatus = "stopped"
	HealthUnknown HealthStatus = "unknown"
)

const (
	opEnsureImage = "ensure_image"
	opProvision   = "provision"
	opStart       = "start"
	opStop        = "stop"
	opRemove      = "remove"
)

func (noopMetrics) ObserveRetry(string) {}

// NewDriver creates a driver. Zero timeouts and attempt counts fall back to defaults.
func NewDriver(runtime Runtime, cfg Config, metrics Metrics) *Driver {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Minute
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Driver{
		runtime: runtime,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("container_driver"),
	}
}

// Provision makes sure the rollup's container exists and runs. An existing container with
// the rollup's name is reused, so a retried provision never creates a second one.
func (d *Driver) Provision(ctx context.Context, id rollup.ID, cfg rollup.Config) (rollup.ContainerHandle, error) {
	if err := d.retry(ctx, opEnsureImage, func(ctx context.Context) error {
		return d.runtime.EnsureImage(ctx, d.cfg.Image)
	}); err != nil {
		return rollup.ContainerHandle{}, err
	}

	spec, err := d.containerSpec(id, cfg)
	if err != nil {
		return rollup.ContainerHandle{}, &Error{Op: opProvision, Kind: KindFatal, Err: err}
	}

	var handle rollup.ContainerHandle
	err = d.retry(ctx, opProvision, func(ctx context.Context) error {
		h, err := d.provisionOnce(ctx, spec)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return rollup.ContainerHandle{}, err
	}

	d.logger.With("rollup_id", id, "container_id", handle.ID).Info("rollup container provisioned")

	return handle, nil
}

func (d *Driver) provisionOnce(ctx context.Context, spec ContainerSpec) (rollup.ContainerHandle, error) {
	state, err := d.runtime.Inspect(ctx, spec.Name)
	switch {
	case err == nil:
		if !state.Running {
			d.logger.With("container", spec.Name, "status", state.Status).Info("starting existing rollup container")
			if err := d.runtime.Start(ctx, state.ID); err != nil {
				return rollup.ContainerHandle{}, fmt.Errorf("failed to start existing container: %w", err)
			}
		}
		return rollup.ContainerHandle{ID: state.ID, Name: spec.Name}, nil
	case errdefs.IsNotFound(err):
	default:
		return rollup.ContainerHandle{}, fmt.Errorf("failed to inspect container: %w", err)
	}

	containerID, err := d.runtime.Create(ctx, spec)
	if err != nil {
		return rollup.ContainerHandle{}, fmt.Errorf("failed to create container: %w", err)
	}
	if err := d.runtime.Start(ctx, containerID); err != nil {
		return rollup.ContainerHandle{}, fmt.Errorf("failed to start container: %w", err)
	}

	return rollup.ContainerHandle{ID: containerID, Name: spec.Name}, nil
}

// Start runs a previously provisioned container. A container that is already running is left
// alone; one that no longer exists fails with ErrContainerGone.
func (d *Driver) Start(ctx context.Context, h rollup.ContainerHandle) error {
	return d.retry(ctx, opStart, func(ctx context.Context) error {
		state, err := d.runtime.Inspect(ctx, h.Ref())
		if err != nil {
			if errdefs.IsNotFound(err) {
				return ErrContainerGone
			}
			return fmt.Errorf("failed to inspect container: %w", err)
		}
		if state.Running {
			return nil
		}
		if err := d.runtime.Start(ctx, state.ID); err != nil {
			if errdefs.IsNotFound(err) {
				return ErrContainerGone
			}
			return err
		}
		return nil
	})
}

// Stop halts a container. Stopped or missing containers count as success.
func (d *Driver) Stop(ctx context.Context, h rollup.ContainerHandle) error {
	return d.retry(ctx, opStop, func(ctx context.Context) error {
		state, err := d.runtime.Inspect(ctx, h.Ref())
		if err != nil {
			if errdefs.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to inspect container: %w", err)
		}
		if !state.Running {
			return nil
		}
		if err := d.runtime.Stop(ctx, state.ID, d.cfg.StopTimeout); err != nil && !errdefs.IsNotFound(err) {
			return err
		}
		return nil
	})
}

// Remove stops and deletes a container. Missing containers count as success.
func (d *Driver) Remove(ctx context.Context, h rollup.ContainerHandle) error {
	return d.retry(ctx, opRemove, func(ctx context.Context) error {
		if err := d.runtime.Remove(ctx, h.Ref()); err != nil && !errdefs.IsNotFound(err) {
			return err
		}
		return nil
	})
}

// Health reports whether the container runs, along with the handle the runtime knows it by.
// Anything that cannot be inspected is Unknown.
func (d *Driver) Health(ctx context.Context, h rollup.ContainerHandle) (HealthStatus, rollup.ContainerHandle) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.OperationTimeout)
	defer cancel()

	state, err := d.runtime.Inspect(ctx, h.Ref())
	if err != nil {
		d.logger.With("container", h.Ref(), "err", err.Error()).Debug("container health unknown")
		return HealthUnknown, rollup.ContainerHandle{}
	}

	found := rollup.ContainerHandle{ID: state.ID, Name: state.Name}
	if state.Running {
		return HealthRunning, found
	}
	return HealthStopped, found
}

// retry runs fn with a per-attempt timeout, backing off between transient failures.
func (d *Driver) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialBackoff
	b.MaxInterval = d.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	var lastKind ErrorKind
	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.OperationTimeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			lastKind = KindTransient
			return fmt.Errorf("attempt timed out after %s: %w", d.cfg.OperationTimeout, err)
		}

		lastKind = classify(err)
		if lastKind == KindFatal {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		d.metrics.ObserveRetry(op)
		d.logger.With("op", op, "err", err.Error(), "retry_in", next.String()).Warn("container operation failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, d.cfg.MaxAttempts-1), ctx)
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return &Error{Op: op, Kind: lastKind, Err: err}
	}

	return nil
}

func (d *Driver) containerSpec(id rollup.ID, cfg rollup.Config) (ContainerSpec, error) {
	network := cfg.Network()
	params, ok := d.cfg.Networks[network]
	if !ok {
		return ContainerSpec{}, fmt.Errorf("no parent chain parameters configured for %s", network)
	}

	return ContainerSpec{
		Name:   id.ContainerName(),
		Image:  d.cfg.Image,
		Env:    Environment(id, cfg, params),
		Labels: Labels(id, cfg),
	}, nil
}
