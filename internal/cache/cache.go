// Package cache keeps parsed replays so a file is only parsed once. Lookups
// go through an in-memory LRU, then a compressed on-disk copy, then an
// optional remote store shared between hosts.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/klauspost/compress/flate"
	"go.opentelemetry.io/otel/attribute"

	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/stats"
	"github.com/saviobatista/vatsim-replay/internal/tracing"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

const (
	DefaultSize = 16
	DefaultTTL  = 4 * time.Hour

	fileExt = ".msgpack.flate"
)

// Remote is a shared replay store; a miss returns nil, nil
type Remote interface {
	StoreReplay(ctx context.Context, key string, replay *types.ParsedReplay) error
	GetReplay(ctx context.Context, key string) (*types.ParsedReplay, error)
}

// Option configures a Cache
type Option func(*Cache)

// WithDir enables the on-disk tier under dir
func WithDir(dir string) Option {
	return func(c *Cache) { c.dir = dir }
}

// WithRemote enables the remote tier
func WithRemote(r Remote) Option {
	return func(c *Cache) { c.remote = r }
}

// WithLogger sets the logger
func WithLogger(lg *logging.Logger) Option {
	return func(c *Cache) { c.lg = lg }
}

// WithStats counts hits and misses in s
func WithStats(s *stats.Stats) Option {
	return func(c *Cache) { c.stats = s }
}

// Cache is safe for concurrent use
type Cache struct {
	mem    *expirable.LRU[string, *types.ParsedReplay]
	dir    string
	remote Remote
	lg     *logging.Logger
	stats  *stats.Stats
}

// New creates a cache holding up to size replays in memory
func New(size int, opts ...Option) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c := &Cache{
		mem: expirable.NewLRU[string, *types.ParsedReplay](size, nil, DefaultTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultDir returns the per-user cache directory
func DefaultDir() (string, error) {
	cd, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cd, "vatsim-replay"), nil
}

// Get looks key up in every tier, promoting hits to the faster tiers
func (c *Cache) Get(ctx context.Context, key string) (*types.ParsedReplay, bool) {
	ctx, span := tracing.Start(ctx, "cache.get", attribute.String("key", key))
	defer span.End()

	if r, ok := c.mem.Get(key); ok {
		span.SetAttributes(attribute.String("tier", "memory"))
		c.hit()
		return r, true
	}

	if c.dir != "" {
		r, err := c.readFile(key)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("tier", "disk"))
			c.mem.Add(key, r)
			c.hit()
			return r, true
		case !errors.Is(err, os.ErrNotExist):
			c.lg.Warn("unreadable cache entry", "key", key, "error", err)
		}
	}

	if c.remote != nil {
		r, err := c.remote.GetReplay(ctx, key)
		if err != nil {
			c.lg.Warn("remote cache lookup failed", "key", key, "error", err)
		} else if r != nil {
			span.SetAttributes(attribute.String("tier", "remote"))
			c.mem.Add(key, r)
			if err := c.writeFile(key, r); err != nil {
				c.lg.Warn("failed to write cache entry", "key", key, "error", err)
			}
			c.hit()
			return r, true
		}
	}

	c.miss()
	return nil, false
}

// Put stores replay in every tier. Disk and remote failures are returned
// joined; the memory tier always succeeds.
func (c *Cache) Put(ctx context.Context, key string, replay *types.ParsedReplay) error {
	ctx, span := tracing.Start(ctx, "cache.put", attribute.String("key", key))

	c.mem.Add(key, replay)

	var errs []error
	if err := c.writeFile(key, replay); err != nil {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	}
	if c.remote != nil {
		if err := c.remote.StoreReplay(ctx, key, replay); err != nil {
			errs = append(errs, fmt.Errorf("remote: %w", err))
		}
	}
	err := errors.Join(errs...)
	tracing.End(span, err)
	return err
}

// Load returns the cached replay for key, calling parse and storing its
// result on a miss. Storage failures are logged, not returned.
func (c *Cache) Load(ctx context.Context, key string, parse func() *types.ParsedReplay) *types.ParsedReplay {
	if r, ok := c.Get(ctx, key); ok {
		return r
	}

	r := parse()
	if err := c.Put(ctx, key, r); err != nil {
		c.lg.Warn("failed to cache replay", "key", key, "error", err)
	}
	return r
}

// Remove drops key from the memory and disk tiers
func (c *Cache) Remove(key string) error {
	c.mem.Remove(key)
	if c.dir == "" {
		return nil
	}
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Len returns the number of replays held in memory
func (c *Cache) Len() int {
	return c.mem.Len()
}

func (c *Cache) hit() {
	if c.stats != nil {
		c.stats.IncrementCacheHits()
	}
}

func (c *Cache) miss() {
	if c.stats != nil {
		c.stats.IncrementCacheMisses()
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+fileExt)
}

func (c *Cache) writeFile(key string, replay *types.ParsedReplay) error {
	if c.dir == "" {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	// write to a temporary file so readers never see a partial entry
	tmp, err := os.CreateTemp(c.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	fw, err := flate.NewWriter(tmp, flate.BestSpeed)
	if err != nil {
		return err
	}
	if err := newEncoder(fw).Encode(replay); err != nil {
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}

func (c *Cache) readFile(key string) (*types.ParsedReplay, error) {
	f, err := os.Open(c.path(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fr := flate.NewReader(f)
	defer fr.Close()

	var r types.ParsedReplay
	if err := newDecoder(fr).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &r, nil
}
