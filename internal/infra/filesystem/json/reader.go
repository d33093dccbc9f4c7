package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

var ErrTrailingData = errors.New("unexpected data after JSON document")

// Reader decodes JSON state files.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// ReadJSON decodes the single JSON document stored at path into target. A file holding more
// than one document is rejected, since it can only come from a corrupted write.
func (r *Reader) ReadJSON(path string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}

	return nil
}

// Exists reports whether path exists. Errors other than not-exist are returned.
func (r *Reader) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat file: %w", err)
	}
}
