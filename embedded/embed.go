// Package embedded carries the default .synapse scaffold and the hook
// registration snippet compiled into the synapse binary.
package embedded

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// HooksJSON registers `synapse hook` for UserPromptSubmit.
//
//go:embed hooks.json
var HooksJSON []byte

// ScaffoldFS holds the starter manifest, domain files and config.yaml.
//
//go:embed all:scaffold
var ScaffoldFS embed.FS

const scaffoldRoot = "scaffold"

// ExtractResult lists what Extract wrote and what it left alone.
type ExtractResult struct {
	Written []string `json:"written"`
	Skipped []string `json:"skipped,omitempty"`
}

// Extract copies the scaffold into dst. Existing files are kept unless force
// is set, so running it twice is harmless.
func Extract(dst string, force bool) (*ExtractResult, error) {
	res := &ExtractResult{}
	sub, err := fs.Sub(ScaffoldFS, scaffoldRoot)
	if err != nil {
		return nil, err
	}

	err = fs.WalkDir(sub, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		target := filepath.Join(dst, filepath.FromSlash(path))
		if !force {
			if _, statErr := os.Stat(target); statErr == nil {
				res.Skipped = append(res.Skipped, path)
				return nil
			} else if !errors.Is(statErr, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", target, statErr)
			}
		}

		data, err := fs.ReadFile(sub, path)
		if err != nil {
			return fmt.Errorf("read embedded %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", path, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		res.Written = append(res.Written, path)
		return nil
	})
	return res, err
}
