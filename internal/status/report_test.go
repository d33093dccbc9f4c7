package status

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/compose-network/rollup-job-handler/internal/registry"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	states []driver.ContainerState
	err    error
}

func (s stubLister) ListManaged(context.Context) ([]driver.ContainerState, error) {
	return s.states, s.err
}

func records() []rollup.Record {
	updated := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []rollup.Record{
		{
			ID:        "rollup-2",
			ServiceID: 2,
			Config:    rollup.Config{ChainID: 42, IsMainnet: false},
			State:     rollup.State{Status: rollup.StatusFailed, LastError: "image pull failed"},
			UpdatedAt: updated,
		},
		{
			ID:        "rollup-1",
			ServiceID: 1,
			Config:    rollup.Config{ChainID: 2_000_000, IsMainnet: true},
			State: rollup.State{
				Status:    rollup.StatusActive,
				Container: &rollup.ContainerHandle{ID: "abc123", Name: "docker-rollup-1"},
			},
			UpdatedAt: updated,
		},
	}
}

func TestBuildFromRegistryOnly(t *testing.T) {
	report, err := Build(context.Background(), registry.NewMemoryStore(records()...), nil, "")
	require.NoError(t, err)

	require.Len(t, report.Rollups, 2)
	first := report.Rollups[0]
	assert.Equal(t, rollup.ID("rollup-1"), first.ID)
	assert.Equal(t, rollup.NetworkMainnet, first.Network)
	assert.Equal(t, "abc123", first.Container)
	assert.Empty(t, first.Runtime)

	second := report.Rollups[1]
	assert.Equal(t, rollup.StatusFailed, second.Status)
	assert.Equal(t, "image pull failed", second.LastError)
	assert.Empty(t, report.Orphans)
}

func TestBuildWithRuntimeState(t *testing.T) {
	lister := stubLister{states: []driver.ContainerState{
		{ID: "abc123", Name: "docker-rollup-1", Running: true, Status: "Up 5 minutes"},
		{ID: "zzz", Name: "docker-rollup-9", Status: "Exited (0)"},
	}}

	report, err := Build(context.Background(), registry.NewMemoryStore(records()...), lister, "")
	require.NoError(t, err)

	assert.Equal(t, "Up 5 minutes", report.Rollups[0].Runtime)
	assert.Equal(t, "missing", report.Rollups[1].Runtime)
	assert.Equal(t, []string{"docker-rollup-9"}, report.Orphans)
}

func TestBuildSingleRollup(t *testing.T) {
	store := registry.NewMemoryStore(records()...)

	report, err := Build(context.Background(), store, nil, "rollup-2")
	require.NoError(t, err)
	require.Len(t, report.Rollups, 1)
	assert.Equal(t, rollup.ID("rollup-2"), report.Rollups[0].ID)

	_, err = Build(context.Background(), store, nil, "rollup-7")
	require.Error(t, err)
}

func TestBuildPropagatesListError(t *testing.T) {
	_, err := Build(context.Background(), registry.NewMemoryStore(), stubLister{err: errors.New("daemon down")}, "")
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	report, err := Build(context.Background(), registry.NewMemoryStore(records()...), nil, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report))
	assert.Contains(t, buf.String(), "status: active")
	assert.Contains(t, buf.String(), "last-error: image pull failed")
	assert.Contains(t, buf.String(), "network: mainnet")
}

type stubFetcher struct {
	refs []string
	err  error
}

func (s *stubFetcher) Logs(_ context.Context, ref, tail string, stdout, _ io.Writer) error {
	s.refs = append(s.refs, ref)
	_, _ = io.WriteString(stdout, ref+" tail="+tail+"\n")
	return s.err
}

func TestWriteLogs(t *testing.T) {
	store := registry.NewMemoryStore(records()...)
	fetcher := &stubFetcher{}

	var out bytes.Buffer
	require.NoError(t, WriteLogs(context.Background(), store, fetcher, "rollup-1", "100", &out, io.Discard))
	assert.Equal(t, "abc123 tail=100\n", out.String())

	// rollup-2 failed before its container was recorded
	require.NoError(t, WriteLogs(context.Background(), store, fetcher, "rollup-2", "all", io.Discard, io.Discard))
	assert.Equal(t, []string{"abc123", "docker-rollup-2"}, fetcher.refs)

	err := WriteLogs(context.Background(), store, fetcher, "rollup-7", "all", io.Discard, io.Discard)
	require.ErrorContains(t, err, "not registered")
	assert.Len(t, fetcher.refs, 2)

	fetcher.err = errors.New("no such container")
	err = WriteLogs(context.Background(), store, fetcher, "rollup-1", "all", io.Discard, io.Discard)
	require.ErrorContains(t, err, "no such container")
}
