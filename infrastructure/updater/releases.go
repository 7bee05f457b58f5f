// Package updater provides update strategies backed by GitHub releases.
package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

var (
	// ErrNoReleases is returned when a repository has no usable release.
	ErrNoReleases = errors.New("no matching releases")

	// ErrRepositoryNotFound is returned when the release repository does not exist.
	ErrRepositoryNotFound = errors.New("release repository not found")

	// ErrNoAsset is returned when a release has no asset for this platform.
	ErrNoAsset = errors.New("no matching release asset")
)

// Asset is a downloadable file attached to a release.
type Asset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Release is a published, semver-tagged release.
type Release struct {
	Tag         string          `json:"tag"`
	Version     *semver.Version `json:"version"`
	Prerelease  bool            `json:"prerelease,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
	Assets      []Asset         `json:"assets,omitempty"`
}

// ReleaseSource lists releases newest first.
type ReleaseSource interface {
	Releases(ctx context.Context) ([]Release, error)
}

// GitHubConfig configures a GitHub release source.
type GitHubConfig struct {
	// Owner and Repo name the repository, e.g. kubernetes-sigs/kind.
	Owner string
	Repo  string

	// Token authenticates API calls. Optional for public repositories.
	Token string

	// IncludePrereleases keeps prerelease versions.
	IncludePrereleases bool

	// Constraint limits versions, e.g. ">= 1.28, < 2".
	Constraint string

	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string

	// HTTPClient is the transport for unauthenticated use.
	HTTPClient *http.Client

	// MaxAttempts bounds attempts per API call.
	MaxAttempts int
}

// GitHubReleases lists releases of one GitHub repository.
type GitHubReleases struct {
	client     *github.Client
	httpClient *http.Client
	owner      string
	repo       string
	prerelease bool
	constraint *semver.Constraints
	rawRange   string
	retrier    retry.Retry[[]*github.RepositoryRelease]
}

// NewGitHubReleases creates a release source.
func NewGitHubReleases(ctx context.Context, cfg GitHubConfig) (*GitHubReleases, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github releases: owner and repo are required")
	}

	httpClient := cfg.HTTPClient
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(ctx, ts)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	client := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github releases: invalid base url: %w", err)
		}
		client.BaseURL = u
	}

	var constraint *semver.Constraints
	if cfg.Constraint != "" {
		c, err := semver.NewConstraint(cfg.Constraint)
		if err != nil {
			return nil, fmt.Errorf("github releases: invalid constraint %q: %w", cfg.Constraint, err)
		}
		constraint = c
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	return &GitHubReleases{
		client:     client,
		httpClient: httpClient,
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		prerelease: cfg.IncludePrereleases,
		constraint: constraint,
		rawRange:   cfg.Constraint,
		retrier: retry.New[[]*github.RepositoryRelease](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       200 * time.Millisecond,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{ErrRepositoryNotFound},
		}),
	}, nil
}

// Repository returns "owner/repo".
func (g *GitHubReleases) Repository() string {
	return g.owner + "/" + g.repo
}

// CacheKey identifies the filtered listing this source produces.
func (g *GitHubReleases) CacheKey() string {
	key := "github:" + g.Repository()
	if g.prerelease {
		key += ":pre"
	}
	if g.rawRange != "" {
		key += ":" + g.rawRange
	}
	return key
}

// Releases returns non-draft releases with semver tags, newest first.
func (g *GitHubReleases) Releases(ctx context.Context) ([]Release, error) {
	var releases []Release

	opts := &github.ListOptions{PerPage: 100}
	for {
		var next int
		page, err := g.retrier.Do(ctx, func(ctx context.Context) ([]*github.RepositoryRelease, error) {
			rs, resp, err := g.client.Repositories.ListReleases(ctx, g.owner, g.repo, opts)
			if err != nil {
				var ger *github.ErrorResponse
				if errors.As(err, &ger) && ger.Response != nil && ger.Response.StatusCode == http.StatusNotFound {
					return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, g.Repository())
				}
				return nil, err
			}
			next = resp.NextPage
			return rs, nil
		})
		if err != nil {
			return nil, err
		}

		for _, r := range page {
			if rel, ok := g.convert(r); ok {
				releases = append(releases, rel)
			}
		}

		if next == 0 {
			break
		}
		opts.Page = next
	}

	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Version.GreaterThan(releases[j].Version)
	})
	return releases, nil
}

func (g *GitHubReleases) convert(r *github.RepositoryRelease) (Release, bool) {
	if r.GetDraft() {
		return Release{}, false
	}
	if r.GetPrerelease() && !g.prerelease {
		return Release{}, false
	}

	v, err := semver.NewVersion(r.GetTagName())
	if err != nil {
		return Release{}, false
	}
	if v.Prerelease() != "" && !g.prerelease {
		return Release{}, false
	}
	if g.constraint != nil && !g.constraint.Check(v) {
		return Release{}, false
	}

	rel := Release{
		Tag:         r.GetTagName(),
		Version:     v,
		Prerelease:  r.GetPrerelease(),
		PublishedAt: r.GetPublishedAt().Time,
	}
	for _, a := range r.Assets {
		rel.Assets = append(rel.Assets, Asset{ID: a.GetID(), Name: a.GetName(), Size: a.GetSize()})
	}
	return rel, true
}

// Latest returns the newest usable release.
func Latest(ctx context.Context, source ReleaseSource) (Release, error) {
	releases, err := source.Releases(ctx)
	if err != nil {
		return Release{}, err
	}
	if len(releases) == 0 {
		return Release{}, ErrNoReleases
	}
	return releases[0], nil
}

var _ ReleaseSource = (*GitHubReleases)(nil)
