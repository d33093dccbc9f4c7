package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/compose-network/rollup-job-handler/internal/jobs"
	"github.com/compose-network/rollup-job-handler/internal/logger"
)

// Stdio selects stdin for sources and stdout for sinks.
const Stdio = "-"

// Source reads job calls from a JSON lines document, one JobCall per line.
type Source struct {
	path   string
	open   func() (io.ReadCloser, error)
	logger *slog.Logger
}

func NewSource(path string) *Source {
	open := func() (io.ReadCloser, error) { return os.Open(path) }
	if path == Stdio {
		open = func() (io.ReadCloser, error) { return io.NopCloser(os.Stdin), nil }
	}
	return newSource(path, open)
}

// NewReaderSource reads job calls from r.
func NewReaderSource(r io.Reader) *Source {
	return newSource("reader", func() (io.ReadCloser, error) { return io.NopCloser(r), nil })
}

func newSource(path string, open func() (io.ReadCloser, error)) *Source {
	return &Source{path: path, open: open, logger: logger.Named("feed_source")}
}

// Stream sends every job call to out until the input ends or ctx is done. Blank lines and
// lines starting with '#' are skipped; undecodable lines are logged and skipped.
func (s *Source) Stream(ctx context.Context, out chan<- jobs.JobCall) error {
	r, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open job feed '%s': %w", s.path, err)
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var call jobs.JobCall
		if err := json.Unmarshal(line, &call); err != nil {
			s.logger.With("path", s.path, "line", lineNo, "err", err.Error()).Warn("skipping malformed job call")
			continue
		}

		select {
		case out <- call:
		case <-ctx.Done():
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read job feed '%s': %w", s.path, err)
	}

	s.logger.With("path", s.path, "lines", lineNo).Info("job feed exhausted")

	return nil
}
