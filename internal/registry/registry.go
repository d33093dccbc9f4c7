package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
)

var (
	ErrAlreadyExists     = errors.New("rollup already exists")
	ErrNotFound          = errors.New("rollup not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type (
	// Store persists registry snapshots.
	Store interface {
		Load() ([]rollup.Record, error)
		Save(records []rollup.Record) error
	}

	// Update describes one status change. A nil Container keeps the current handle unless
	// ClearContainer is set.
	Update struct {
		Status         rollup.Status
		Container      *rollup.ContainerHandle
		ClearContainer bool
		LastError      string
	}

	TransitionError struct {
		ID   rollup.ID
		From rollup.Status
		To   rollup.Status
	}

	Registry struct {
		mu      sync.RWMutex
		records map[rollup.ID]rollup.Record
		locks   *keyedLocks
		store   Store
		now     func() time.Time
		logger  *slog.Logger
	}
)

func (e *TransitionError) Error() string {
	return fmt.Sprintf("rollup %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// New creates a registry and loads every record the store holds.
func New(store Store) (*Registry, error) {
	r := &Registry{
		records: make(map[rollup.ID]rollup.Record),
		locks:   newKeyedLocks(),
		store:   store,
		now:     time.Now,
		logger:  logger.Named("registry"),
	}

	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	for _, rec := range records {
		if !rec.State.Status.Valid() {
			return nil, fmt.Errorf("failed to load registry: rollup %s has unknown status %q", rec.ID, rec.State.Status)
		}
		r.records[rec.ID] = rec.Clone()
	}

	r.logger.With("rollups", len(r.records)).Info("registry loaded")

	return r, nil
}

// Acquire serializes work on one rollup. Callers must invoke the returned release func.
func (r *Registry) Acquire(id rollup.ID) func() {
	return r.locks.acquire(id)
}

// Create inserts a new rollup in the Created status.
func (r *Registry) Create(id rollup.ID, serviceID uint64, cfg rollup.Config) (rollup.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return rollup.Record{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	now := r.now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	rec := rollup.Record{
		ID:        id,
		ServiceID: serviceID,
		Config:    cfg,
		State:     rollup.State{Status: rollup.StatusCreated},
		UpdatedAt: now,
	}.Clone()

	r.records[id] = rec
	if err := r.persistLocked(); err != nil {
		delete(r.records, id)
		return rollup.Record{}, err
	}

	r.logger.With("rollup_id", id, "chain_id", cfg.ChainID).Info("rollup registered")

	return rec.Clone(), nil
}

// Get returns a copy of the rollup's record.
func (r *Registry) Get(id rollup.ID) (rollup.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return rollup.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return rec.Clone(), nil
}

// Transition atomically validates and applies a status change.
func (r *Registry) Transition(id rollup.ID, u Update) (rollup.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.records[id]
	if !ok {
		return rollup.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !CanTransition(prev.State.Status, u.Status) {
		return rollup.Record{}, &TransitionError{ID: id, From: prev.State.Status, To: u.Status}
	}

	next := prev.Clone()
	next.State.Status = u.Status
	switch {
	case u.Container != nil:
		handle := *u.Container
		next.State.Container = &handle
	case u.ClearContainer:
		next.State.Container = nil
	}
	if u.Status == rollup.StatusActive && next.State.Container == nil {
		return rollup.Record{}, fmt.Errorf("%w: rollup %s cannot become active without a container", ErrInvalidTransition, id)
	}
	if u.Status == rollup.StatusFailed {
		next.State.LastError = u.LastError
	} else {
		next.State.LastError = ""
	}
	next.UpdatedAt = r.now().UTC()

	r.records[id] = next
	if err := r.persistLocked(); err != nil {
		r.records[id] = prev
		return rollup.Record{}, err
	}

	r.logger.With("rollup_id", id, "from", prev.State.Status, "to", u.Status).Debug("rollup status changed")

	return next.Clone(), nil
}

// Delete drops the rollup's record.
func (r *Registry) Delete(id rollup.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(r.records, id)
	if err := r.persistLocked(); err != nil {
		r.records[id] = prev
		return err
	}

	r.logger.With("rollup_id", id).Info("rollup removed from registry")

	return nil
}

// List returns every record ordered by identifier.
func (r *Registry) List() []rollup.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []rollup.Record {
	out := make([]rollup.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) persistLocked() error {
	if err := r.store.Save(r.snapshotLocked()); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	return nil
}
