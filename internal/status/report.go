package status

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"gopkg.in/yaml.v3"
)

type (
	recordLoader interface {
		Load() ([]rollup.Record, error)
	}
	containerLister interface {
		ListManaged(ctx context.Context) ([]driver.ContainerState, error)
	}

	// Entry describes one rollup. Runtime is only set when the container runtime was queried.
	Entry struct {
		ID        rollup.ID      `yaml:"id"`
		ServiceID uint64         `yaml:"service-id"`
		Status    rollup.Status  `yaml:"status"`
		ChainID   uint64         `yaml:"chain-id"`
		Network   rollup.Network `yaml:"network"`
		Container string         `yaml:"container,omitempty"`
		Runtime   string         `yaml:"runtime,omitempty"`
		LastError string         `yaml:"last-error,omitempty"`
		UpdatedAt time.Time      `yaml:"updated-at"`
	}

	// Report lists registered rollups. Orphans are managed containers without a registry entry.
	Report struct {
		Rollups []Entry  `yaml:"rollups"`
		Orphans []string `yaml:"orphans,omitempty"`
	}
)

// Build assembles a report from the registry snapshot, narrowed to only when it is set.
// Runtime state is included when lister is not nil.
func Build(ctx context.Context, loader recordLoader, lister containerLister, only rollup.ID) (Report, error) {
	records, err := loader.Load()
	if err != nil {
		return Report{}, fmt.Errorf("failed to load registry snapshot: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	var containers map[string]driver.ContainerState
	if lister != nil {
		states, err := lister.ListManaged(ctx)
		if err != nil {
			return Report{}, err
		}
		containers = make(map[string]driver.ContainerState, len(states))
		for _, s := range states {
			containers[s.Name] = s
		}
	}

	report := Report{Rollups: make([]Entry, 0, len(records))}
	for _, rec := range records {
		name := rec.ID.ContainerName()
		if rec.State.Container != nil && rec.State.Container.Name != "" {
			name = rec.State.Container.Name
		}

		state, seen := containers[name]
		delete(containers, name)

		if only != "" && rec.ID != only {
			continue
		}

		entry := Entry{
			ID:        rec.ID,
			ServiceID: rec.ServiceID,
			Status:    rec.State.Status,
			ChainID:   rec.Config.ChainID,
			Network:   rec.Config.Network(),
			LastError: rec.State.LastError,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.State.Container != nil {
			entry.Container = rec.State.Container.Ref()
		}
		switch {
		case lister == nil:
		case seen:
			entry.Runtime = state.Status
		default:
			entry.Runtime = "missing"
		}
		report.Rollups = append(report.Rollups, entry)
	}

	if only != "" && len(report.Rollups) == 0 {
		return Report{}, fmt.Errorf("rollup '%s' is not registered", only)
	}

	if only == "" {
		for name := range containers {
			report.Orphans = append(report.Orphans, name)
		}
		sort.Strings(report.Orphans)
	}

	return report, nil
}

func Write(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("could not encode status report. Err: '%w'", err)
	}
	return enc.Close()
}
