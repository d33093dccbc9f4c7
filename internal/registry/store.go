package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/compose-network/rollup-job-handler/internal/infra/filesystem"
	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
)

const snapshotVersion = 1

type (
	// FileStore keeps the registry in a single JSON document.
	FileStore struct {
		path   string
		reader filesystem.Reader
		writer filesystem.Writer
		logger *slog.Logger
	}

	snapshot struct {
		Version int             `json:"version"`
		Rollups []rollup.Record `json:"rollups"`
	}

	// MemoryStore keeps snapshots in memory only.
	MemoryStore struct {
		mu      sync.Mutex
		records []rollup.Record
		saves   int
	}
)

// NewFileStore creates a store backed by the JSON file at path.
func NewFileStore(path string, reader filesystem.Reader, writer filesystem.Writer) *FileStore {
	return &FileStore{
		path:   path,
		reader: reader,
		writer: writer,
		logger: logger.Named("registry_store"),
	}
}

// Load reads the snapshot. A missing file is an empty registry.
func (s *FileStore) Load() ([]rollup.Record, error) {
	exists, err := s.reader.Exists(s.path)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.logger.With("path", s.path).Info("no registry snapshot found, starting empty")
		return nil, nil
	}

	var snap snapshot
	if err := s.reader.ReadJSON(s.path, &snap); err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", s.path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported registry snapshot version %d in '%s'", snap.Version, s.path)
	}

	return snap.Rollups, nil
}

func (s *FileStore) Save(records []rollup.Record) error {
	if records == nil {
		records = []rollup.Record{}
	}
	if err := s.writer.WriteJSON(s.path, snapshot{Version: snapshotVersion, Rollups: records}); err != nil {
		return fmt.Errorf("failed to write '%s': %w", s.path, err)
	}
	return nil
}

func NewMemoryStore(records ...rollup.Record) *MemoryStore {
	return &MemoryStore{records: records}
}

func (s *MemoryStore) Load() ([]rollup.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.records), nil
}

func (s *MemoryStore) Save(records []rollup.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = cloneAll(records)
	s.saves++
	return nil
}

// Saves returns how many snapshots were written.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneAll(records []rollup.Record) []rollup.Record {
	out := make([]rollup.Record, 0, len(records))
	for _, r := range records {
		out = append(out, r.Clone())
	}
	return out
}
