package pipeline

import (
	"github.com/rs/zerolog/log"
)

// Cache memoizes one loaded sampler across node invocations. The host
// serializes node execution, so the cache is single-writer and needs no
// locking. A request for a different precision or checkpoint directory
// forces a reload; Release is the explicit teardown used when the node is
// configured not to keep the model resident.
//
// The cache holds session identity only (weights, precision). Seed and
// progress are invocation state: callers Reset the returned sampler before
// every run, so a cache hit never reuses a previous invocation's noise
// stream or progress sink.
type Cache struct {
	sampler   DepthSampler
	dir       string
	precision Precision

	// loader is replaceable in tests; nil means the build's newSampler.
	loader func(Options) (DepthSampler, error)
}

// NewCache returns an empty cache.
func NewCache() *Cache { return &Cache{} }

// Get returns a sampler for opts, reusing the cached session when the
// checkpoint directory and precision both match the loaded one.
func (c *Cache) Get(opts Options) (DepthSampler, error) {
	if c.sampler != nil && c.dir == opts.CheckpointDir && c.precision == opts.Precision {
		return c.sampler, nil
	}
	if c.sampler != nil {
		log.Debug().
			Str("loaded", string(c.precision)).
			Str("requested", string(opts.Precision)).
			Msg("pipeline: reloading model")
		if err := c.Release(); err != nil {
			return nil, err
		}
	}

	load := c.loader
	if load == nil {
		load = newSampler
	}
	s, err := load(opts)
	if err != nil {
		return nil, err
	}
	c.sampler = s
	c.dir = opts.CheckpointDir
	c.precision = opts.Precision
	return s, nil
}

// Loaded reports whether a session is currently resident.
func (c *Cache) Loaded() bool { return c.sampler != nil }

// Release tears down the resident session, if any.
func (c *Cache) Release() error {
	if c.sampler == nil {
		return nil
	}
	err := c.sampler.Close()
	c.sampler = nil
	c.dir = ""
	c.precision = ""
	return err
}
