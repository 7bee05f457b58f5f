package updater

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/felixgeelhaar/clitool-registry/infrastructure/storage/memory"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

func (brokenCache) Delete(context.Context, string) error { return nil }

func (brokenCache) Close() error { return nil }

func TestCachedReleases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeGitHub(t, sampleReleases, nil)
	src := newSource(t, f, GitHubConfig{})
	c := memory.NewCache()
	cached := NewCachedReleases(src, c, src.CacheKey(), time.Hour)

	first, err := cached.Releases(ctx)
	if err != nil {
		t.Fatalf("Releases() error = %v", err)
	}
	second, err := cached.Releases(ctx)
	if err != nil {
		t.Fatalf("Releases() error = %v", err)
	}

	if f.listCount() != 1 {
		t.Errorf("GitHub listed %d times, want 1", f.listCount())
	}
	if !equal(versions(first), versions(second)) {
		t.Errorf("cached versions = %v, want %v", versions(second), versions(first))
	}
	if second[0].Tag != "v1.10.0" || len(second[0].Assets) != 1 || second[0].Assets[0].ID != 110 {
		t.Errorf("cached release = %+v", second[0])
	}

	if err := cached.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := cached.Releases(ctx); err != nil {
		t.Fatalf("Releases() error = %v", err)
	}
	if f.listCount() != 2 {
		t.Errorf("GitHub listed %d times after invalidate, want 2", f.listCount())
	}
}

func TestCachedReleases_CorruptEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeGitHub(t, sampleReleases, nil)
	c := memory.NewCache()
	cached := NewCachedReleases(newSource(t, f, GitHubConfig{}), c, "acme", time.Hour)

	if err := c.Set(ctx, "releases:acme", []byte("not json"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	releases, err := cached.Releases(ctx)
	if err != nil {
		t.Fatalf("Releases() error = %v", err)
	}
	if len(releases) != 3 || f.listCount() != 1 {
		t.Errorf("got %d releases after %d lists", len(releases), f.listCount())
	}
}

func TestCachedReleases_BrokenCache(t *testing.T) {
	t.Parallel()

	f := newFakeGitHub(t, sampleReleases, nil)
	cached := NewCachedReleases(newSource(t, f, GitHubConfig{}), brokenCache{}, "acme", time.Hour)

	for range 2 {
		if _, err := cached.Releases(context.Background()); err != nil {
			t.Fatalf("Releases() error = %v", err)
		}
	}
	if f.listCount() != 2 {
		t.Errorf("GitHub listed %d times, want 2", f.listCount())
	}
}

func TestGitHubReleases_CacheKey(t *testing.T) {
	t.Parallel()

	f := newFakeGitHub(t, nil, nil)
	tests := []struct {
		cfg  GitHubConfig
		want string
	}{
		{cfg: GitHubConfig{}, want: "github:acme/tool"},
		{cfg: GitHubConfig{IncludePrereleases: true}, want: "github:acme/tool:pre"},
		{cfg: GitHubConfig{Constraint: ">= 1.2"}, want: "github:acme/tool:>= 1.2"},
	}
	for _, tt := range tests {
		if got := newSource(t, f, tt.cfg).CacheKey(); got != tt.want {
			t.Errorf("CacheKey() = %q, want %q", got, tt.want)
		}
	}
}

// gatedSource blocks every listing until release is closed.
type gatedSource struct {
	calls   atomic.Int32
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func newGatedSource() *gatedSource {
	return &gatedSource{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSource) Releases(context.Context) ([]Release, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	return []Release{{Tag: "v1.0.0"}}, nil
}

func TestCachedReleases_ConcurrentMissesShareFetch(t *testing.T) {
	t.Parallel()

	src := newGatedSource()
	c := memory.NewCache()
	var group singleflight.Group
	first := NewCachedReleases(src, c, "github:acme/tool", time.Hour, WithFetchGroup(&group))
	second := NewCachedReleases(src, c, "github:acme/tool", time.Hour, WithFetchGroup(&group))

	var wg sync.WaitGroup
	results := make(chan []Release, 2)
	for _, cr := range []*CachedReleases{first, second} {
		wg.Add(1)
		go func(cr *CachedReleases) {
			defer wg.Done()
			releases, err := cr.Releases(context.Background())
			if err != nil {
				t.Errorf("Releases() error = %v", err)
			}
			results <- releases
		}(cr)
	}
	<-src.started
	// Give the second lookup time to join the fetch.
	time.Sleep(100 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(results)

	for releases := range results {
		if len(releases) != 1 || releases[0].Tag != "v1.0.0" {
			t.Errorf("releases = %+v", releases)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("source listed %d times, want 1", got)
	}
}

func TestCachedReleases_AbandonedLookupStillFillsCache(t *testing.T) {
	t.Parallel()

	src := newGatedSource()
	c := memory.NewCache()
	cached := NewCachedReleases(src, c, "github:acme/tool", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := cached.Releases(ctx)
		errs <- err
	}()
	<-src.started
	cancel()
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("Releases() error = %v, want context.Canceled", err)
	}

	close(src.release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := c.Get(context.Background(), "releases:github:acme/tool"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("abandoned fetch did not fill the cache")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
