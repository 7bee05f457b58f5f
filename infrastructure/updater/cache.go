package updater

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/clitool-registry/domain/cache"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
)

// CachedReleases serves a release listing from a cache and falls back to
// the wrapped source on a miss. Cache failures never fail a lookup.
// Concurrent misses for one key share a single fetch.
type CachedReleases struct {
	source  ReleaseSource
	cache   cache.Cache
	key     string
	ttl     time.Duration
	fetches *singleflight.Group
}

// CacheOption configures a CachedReleases.
type CacheOption func(*CachedReleases)

// WithFetchGroup shares in-flight fetches with other listings using g.
func WithFetchGroup(g *singleflight.Group) CacheOption {
	return func(c *CachedReleases) {
		c.fetches = g
	}
}

// NewCachedReleases caches the listing of source under key for ttl.
func NewCachedReleases(source ReleaseSource, c cache.Cache, key string, ttl time.Duration, opts ...CacheOption) *CachedReleases {
	cr := &CachedReleases{source: source, cache: c, key: "releases:" + key, ttl: ttl}
	for _, opt := range opts {
		opt(cr)
	}
	if cr.fetches == nil {
		cr.fetches = &singleflight.Group{}
	}
	return cr
}

// Releases returns the cached listing, refreshing it when absent or expired.
func (c *CachedReleases) Releases(ctx context.Context) ([]Release, error) {
	data, ok, err := c.cache.Get(ctx, c.key)
	switch {
	case err != nil:
		logging.Warn().
			Add(logging.Component("release-cache")).
			Add(logging.Str("key", c.key)).
			Add(logging.ErrorField(err)).
			Msg("release cache lookup failed")
	case ok:
		var releases []Release
		if err := json.Unmarshal(data, &releases); err == nil {
			logging.Debug().
				Add(logging.Str("key", c.key)).
				Add(logging.Count("releases", len(releases))).
				Msg("release listing served from cache")
			return releases, nil
		}
		_ = c.cache.Delete(ctx, c.key)
	}

	// The fetch outlives a caller that gives up so the cache is still filled.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan(c.key, func() (any, error) {
		return c.refresh(fetchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]Release)
		return append([]Release(nil), shared...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh lists the source and stores the result.
func (c *CachedReleases) refresh(ctx context.Context) ([]Release, error) {
	releases, err := c.source.Releases(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(releases); err == nil {
		if err := c.cache.Set(ctx, c.key, data, c.ttl); err != nil {
			logging.Warn().
				Add(logging.Component("release-cache")).
				Add(logging.Str("key", c.key)).
				Add(logging.ErrorField(err)).
				Msg("release cache store failed")
		}
	}
	return releases, nil
}

// Invalidate drops the cached listing.
func (c *CachedReleases) Invalidate(ctx context.Context) error {
	return c.cache.Delete(ctx, c.key)
}

var _ ReleaseSource = (*CachedReleases)(nil)
