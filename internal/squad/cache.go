package squad

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/riaworks/aios-core-sub000/internal/storage"
)

// DefaultTTL is how long a discovery snapshot is trusted.
const DefaultTTL = 60 * time.Second

// Cache persists discovery snapshots in a single JSON file. Squads added on
// disk after a snapshot was written stay invisible until it expires.
type Cache struct {
	Path string
	TTL  time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// Concurrency bounds manifest parsing during a rescan. Zero means NumCPU.
	Concurrency int

	Logger *zap.Logger
}

// NewCache returns a cache stored at <synapseRoot>/cache/squad-manifests.json.
func NewCache(synapseRoot string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		Path:   filepath.Join(synapseRoot, storage.CacheDir, storage.SquadCacheFile),
		TTL:    ttl,
		Now:    time.Now,
		Logger: zap.NewNop(),
	}
}

func (c *Cache) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func (c *Cache) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Fresh reports whether a snapshot taken at timestamp (Unix ms) is still
// within the TTL.
func (c *Cache) Fresh(timestamp int64) bool {
	age := c.now().UnixMilli() - timestamp
	return age < c.TTL.Milliseconds()
}

// Load returns the cached snapshot and whether it is a usable hit. Missing,
// corrupt and stale files are all misses.
func (c *Cache) Load() (*Entry, bool) {
	var e Entry
	found, err := storage.ReadJSON(c.Path, &e)
	if err != nil {
		c.logger().Debug("squad cache unreadable, treating as miss",
			zap.String("path", c.Path), zap.Error(err))
		return nil, false
	}
	if !found || e.Manifests == nil {
		return nil, false
	}
	if !c.Fresh(e.Timestamp) {
		return &e, false
	}
	return &e, true
}

// Store writes a snapshot atomically.
func (c *Cache) Store(e *Entry) error {
	return storage.WriteJSON(c.Path, e)
}

// Discover returns the cached snapshot when fresh, otherwise rescans root and
// rewrites the cache. A failed cache write is logged, not returned.
func (c *Cache) Discover(ctx context.Context, root string) (*Entry, bool, error) {
	if e, hit := c.Load(); hit {
		return e, true, nil
	}

	e, err := Scan(ctx, root, c.Concurrency)
	if err != nil {
		return nil, false, err
	}
	e.Timestamp = c.now().UnixMilli()

	if err := c.Store(e); err != nil {
		c.logger().Warn("failed to write squad cache",
			zap.String("path", c.Path), zap.Error(err))
	}
	return e, false, nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *Cache) Clear() error {
	err := os.Remove(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
