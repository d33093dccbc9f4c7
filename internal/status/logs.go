package status

import (
	"context"
	"fmt"
	"io"

	"github.com/compose-network/rollup-job-handler/internal/rollup"
)

type logFetcher interface {
	Logs(ctx context.Context, ref, tail string, stdout, stderr io.Writer) error
}

// WriteLogs copies the container logs of a registered rollup. Rollups whose container was
// never recorded are looked up by their deterministic container name.
func WriteLogs(ctx context.Context, loader recordLoader, fetcher logFetcher, id rollup.ID, tail string, stdout, stderr io.Writer) error {
	records, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load registry snapshot: %w", err)
	}

	for _, rec := range records {
		if rec.ID != id {
			continue
		}
		ref := id.ContainerName()
		if rec.State.Container != nil {
			ref = rec.State.Container.Ref()
		}
		return fetcher.Logs(ctx, ref, tail, stdout, stderr)
	}

	return fmt.Errorf("rollup '%s' is not registered", id)
}
