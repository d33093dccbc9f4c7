package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/compose-network/rollup-job-handler/internal/infra/filesystem"
	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/logger"
)

// Sink records job results as JSON lines.
type Sink struct {
	write  func(res jobs.Result) error
	logger *slog.Logger
}

// NewSink appends results to the file at path through writer, or writes them to stdout
// when path is Stdio.
func NewSink(path string, writer filesystem.Writer) *Sink {
	if path == Stdio {
		return NewWriterSink(os.Stdout)
	}
	return &Sink{
		write:  func(res jobs.Result) error { return writer.AppendJSONLine(path, res) },
		logger: logger.Named("feed_sink"),
	}
}

func NewWriterSink(w io.Writer) *Sink {
	enc := json.NewEncoder(w)
	return &Sink{
		write:  func(res jobs.Result) error { return enc.Encode(res) },
		logger: logger.Named("feed_sink"),
	}
}

// Consume writes every result from results until the channel is closed. A result that cannot
// be written is logged and the sink keeps draining so the dispatcher never blocks.
func (s *Sink) Consume(results <-chan jobs.Result) error {
	var failed int
	for res := range results {
		if err := s.write(res); err != nil {
			failed++
			s.logger.With("call_id", res.CallID, "err", err.Error()).Error("failed to record job result")
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to record %d job results", failed)
	}
	return nil
}
