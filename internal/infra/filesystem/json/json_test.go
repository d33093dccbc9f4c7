package json

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteThenReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, NewWriter().WriteJSON(path, sample{Name: "a", Count: 2}))
	require.NoError(t, NewWriter().WriteJSON(path, sample{Name: "b", Count: 3}))

	var got sample
	require.NoError(t, NewReader().ReadJSON(path, &got))
	assert.Equal(t, sample{Name: "b", Count: 3}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadJSONRejectsTrailingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"a"}{"name":"b"}`), 0o644))

	var got sample
	require.ErrorIs(t, NewReader().ReadJSON(path, &got), ErrTrailingData)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	r := NewReader()

	ok, err := r.Exists(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.False(t, ok)

	path := filepath.Join(dir, "present.json")
	require.NoError(t, NewWriter().WriteJSON(path, sample{}))

	ok, err = r.Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppendJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w := NewWriter()

	require.NoError(t, w.AppendJSONLine(path, sample{Name: "one", Count: 1}))
	require.NoError(t, w.AppendJSONLine(path, sample{Name: "two", Count: 2}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{`{"name":"one","count":1}`, `{"name":"two","count":2}`}, lines)
}
