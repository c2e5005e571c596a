package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// MetricsStore reads and writes the metrics files under one directory.
type MetricsStore struct {
	// Dir is the metrics directory (e.g., .synapse/metrics).
	Dir string
}

// NewMetricsStore creates a store rooted at the synapse directory.
func NewMetricsStore(synapseRoot string) *MetricsStore {
	return &MetricsStore{Dir: filepath.Join(synapseRoot, MetricsDir)}
}

// HookPath returns the hook metrics file path.
func (s *MetricsStore) HookPath() string {
	return filepath.Join(s.Dir, HookMetricsFile)
}

// ActivationPath returns the activation metrics file path. The activation
// pipeline writes that file; this module only reads it.
func (s *MetricsStore) ActivationPath() string {
	return filepath.Join(s.Dir, ActivationMetricsFile)
}

// WriteHook overwrites the hook metrics file.
func (s *MetricsStore) WriteHook(m *HookMetrics) error {
	return WriteJSON(s.HookPath(), m)
}

// ReadHook returns the hook metrics, or nil when the file does not exist.
func (s *MetricsStore) ReadHook() (*HookMetrics, error) {
	var m HookMetrics
	found, err := ReadJSON(s.HookPath(), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// ReadActivation returns the activation metrics, or nil when the file does
// not exist.
func (s *MetricsStore) ReadActivation() (*ActivationMetrics, error) {
	var m ActivationMetrics
	found, err := ReadJSON(s.ActivationPath(), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// WriteJSON marshals v as indented JSON and writes it atomically.
func WriteJSON(path string, v any) error {
	return atomicWrite(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	})
}

// ReadJSON decodes the file at path into v. A missing file reports
// found=false with a nil error; a corrupt file returns ErrCorrupt.
func ReadJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return true, nil
}

// atomicWrite writes to a temp file and renames atomically.
func atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Create temp file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}
