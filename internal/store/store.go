// Package store provides the atomic write-temp-then-rename JSON
// persistence primitive shared by the runner state file and the project
// discovery cache. Every write under this package is safe against a
// process crash mid-write: readers only ever observe a fully-written file
// or the previous one, never a partial write.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/orchestrator/taskrunner/internal/obslog"
)

// ErrCorrupt is returned by ReadJSON when the file exists but fails to
// unmarshal; the caller is expected to degrade to empty/default state.
var ErrCorrupt = errors.New("store: corrupt file")

// WriteAtomic writes data to path via a temp file in the same directory
// followed by os.Rename, so a reader never observes a partial write.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// WriteJSON marshals v and persists it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// ReadJSON loads and unmarshals path into out. A missing file returns
// os.ErrNotExist unwrapped (callers use os.IsNotExist). A corrupt file logs
// a warning, removes itself, and returns ErrCorrupt so the caller degrades
// to empty state rather than crashing on a half-written or hand-edited
// file.
func ReadJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		obslog.Event("store_corrupt_file").With("path", path).With("error", err.Error()).Warn()
		os.Remove(path)
		return ErrCorrupt
	}
	return nil
}
