// Package drivertest provides an in-memory container runtime for tests.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/containerd/errdefs"
)

type (
	container struct {
		id      string
		name    string
		running bool
		spec    driver.ContainerSpec
	}

	// Runtime records every call and lets tests inject failures per operation.
	Runtime struct {
		mu         sync.Mutex
		containers map[string]*container
		images     map[string]bool
		failures   map[string][]error
		calls      map[string]int
		delay      time.Duration
		nextID     int
		// PullableImages are images EnsureImage may fetch. Nil means any image.
		PullableImages map[string]bool
	}
)

const (
	OpEnsureImage = "ensure_image"
	OpInspect     = "inspect"
	OpCreate      = "create"
	OpStart       = "start"
	OpStop        = "stop"
	OpRemove      = "remove"
)

func NewRuntime() *Runtime {
	return &Runtime{
		containers: make(map[string]*container),
		images:     make(map[string]bool),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
	}
}

// FailNext queues errs to be returned by the next calls of op, one per call.
func (r *Runtime) FailNext(op string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = append(r.failures[op], errs...)
}

// SetDelay makes every call block for d or until its context ends.
func (r *Runtime) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Calls returns how many times op was invoked.
func (r *Runtime) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Containers returns how many containers exist.
func (r *Runtime) Containers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.containers)
}

// Running reports whether the container named name exists and runs.
func (r *Runtime) Running(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.find(name)
	return c != nil && c.running
}

// Spec returns the spec the named container was created with.
func (r *Runtime) Spec(name string) (driver.ContainerSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.find(name)
	if c == nil {
		return driver.ContainerSpec{}, false
	}
	return c.spec, true
}

// Kill stops a container behind the driver's back.
func (r *Runtime) Kill(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.find(name); c != nil {
		c.running = false
	}
}

// Destroy removes a container behind the driver's back.
func (r *Runtime) Destroy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.find(name); c != nil {
		delete(r.containers, c.id)
	}
}

func (r *Runtime) EnsureImage(ctx context.Context, image string) error {
	if err := r.enter(ctx, OpEnsureImage); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.images[image] {
		return nil
	}
	if r.PullableImages != nil && !r.PullableImages[image] {
		return fmt.Errorf("image %s: %w", image, errdefs.ErrNotFound)
	}
	r.images[image] = true
	return nil
}

func (r *Runtime) Inspect(ctx context.Context, ref string) (driver.ContainerState, error) {
	if err := r.enter(ctx, OpInspect); err != nil {
		return driver.ContainerState{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(ref)
	if c == nil {
		return driver.ContainerState{}, fmt.Errorf("container %s: %w", ref, errdefs.ErrNotFound)
	}
	status := "exited"
	if c.running {
		status = "running"
	}
	return driver.ContainerState{ID: c.id, Name: c.name, Running: c.running, Status: status}, nil
}

func (r *Runtime) Create(ctx context.Context, spec driver.ContainerSpec) (string, error) {
	if err := r.enter(ctx, OpCreate); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(spec.Name) != nil {
		return "", fmt.Errorf("container name %s in use: %w", spec.Name, errdefs.ErrConflict)
	}
	r.nextID++
	id := fmt.Sprintf("c%04d", r.nextID)
	r.containers[id] = &container{id: id, name: spec.Name, spec: spec}
	return id, nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	return r.setRunning(ctx, OpStart, id, true)
}

func (r *Runtime) Stop(ctx context.Context, id string, _ time.Duration) error {
	return r.setRunning(ctx, OpStop, id, false)
}

func (r *Runtime) Remove(ctx context.Context, id string) error {
	if err := r.enter(ctx, OpRemove); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil {
		return fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	delete(r.containers, c.id)
	return nil
}

func (r *Runtime) setRunning(ctx context.Context, op, id string, running bool) error {
	if err := r.enter(ctx, op); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil {
		return fmt.Errorf("container %s: %w", id, errdefs.ErrNotFound)
	}
	c.running = running
	return nil
}

// enter counts the call, applies the configured delay and pops an injected failure.
func (r *Runtime) enter(ctx context.Context, op string) error {
	r.mu.Lock()
	r.calls[op]++
	delay := r.delay
	var injected error
	if queue := r.failures[op]; len(queue) > 0 {
		injected = queue[0]
		r.failures[op] = queue[1:]
	}
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return injected
}

func (r *Runtime) find(ref string) *container {
	if c, ok := r.containers[ref]; ok {
		return c
	}
	for _, c := range r.containers {
		if c.name == ref {
			return c
		}
	}
	return nil
}
