// Package squad discovers squads and caches the result on disk.
//
// A squad is a self-contained rule set: any directory under the squads root
// that holds its own .synapse/manifest. Its domain files live beside that
// manifest. Squads may be nested to any filesystem depth.
package squad

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/riaworks/aios-core-sub000/internal/manifest"
	"github.com/riaworks/aios-core-sub000/internal/worker"
)

// MarkerDir and ManifestFile locate a squad manifest inside a squad directory.
const (
	MarkerDir    = ".synapse"
	ManifestFile = "manifest"
)

// Entry is one discovery snapshot.
type Entry struct {
	// Timestamp is the scan time in Unix milliseconds.
	Timestamp int64                         `json:"timestamp"`
	Manifests map[string]*manifest.Manifest `json:"manifests"`

	// Dirs maps a squad name to the directory holding its manifest.
	Dirs map[string]string `json:"dirs,omitempty"`
}

// Names returns the squad names in sorted order.
func (e *Entry) Names() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.Manifests))
	for name := range e.Manifests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prioritized returns the squad names with the active squad first.
func (e *Entry) Prioritized(active string) []string {
	names := e.Names()
	for i, name := range names {
		if name == active && i > 0 {
			copy(names[1:i+1], names[:i])
			names[0] = active
			break
		}
	}
	return names
}

// Dir returns the directory holding the named squad's manifest and domain
// files.
func (e *Entry) Dir(name string) string {
	if e == nil {
		return ""
	}
	return e.Dirs[name]
}

// Name converts a squad directory path relative to the squads root into a
// squad name.
func Name(rel string) string {
	rel = filepath.ToSlash(rel)
	return strings.ReplaceAll(rel, "/", "-")
}

// Namespace qualifies a squad domain so equal domain names in different
// squads never collide: UPPER(squad with - replaced by _)_DOMAIN.
func Namespace(squadName, domain string) string {
	prefix := strings.ToUpper(strings.ReplaceAll(squadName, "-", "_"))
	return prefix + "_" + strings.ToUpper(domain)
}

// Scan walks root for squad manifests and parses them concurrently.
// A missing root yields an empty entry. Unreadable manifests are skipped.
func Scan(ctx context.Context, root string, concurrency int) (*Entry, error) {
	entry := &Entry{
		Manifests: make(map[string]*manifest.Manifest),
		Dirs:      make(map[string]string),
	}

	dirs, err := findSquadDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return entry, nil
	}

	paths := make([]string, len(dirs))
	for i, d := range dirs {
		paths[i] = filepath.Join(root, d, MarkerDir, ManifestFile)
	}

	load := func(_ context.Context, path string) (*manifest.Manifest, error) {
		return manifest.Load(path)
	}
	pool := worker.NewPool[string, *manifest.Manifest](concurrency)
	for _, res := range pool.Process(ctx, paths, load) {
		if res.Err != nil || res.Value == nil {
			continue
		}
		name := Name(dirs[res.Index])
		entry.Manifests[name] = res.Value
		entry.Dirs[name] = filepath.Dir(paths[res.Index])
	}
	return entry, nil
}

// findSquadDirs returns squad directories relative to root, in walk order.
func findSquadDirs(root string) ([]string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var dirs []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable subtrees are not squads.
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == MarkerDir {
			return filepath.SkipDir
		}
		if path == root {
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(path, MarkerDir, ManifestFile)); statErr == nil {
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil {
				dirs = append(dirs, rel)
			}
		}
		return nil
	})
	return dirs, err
}
