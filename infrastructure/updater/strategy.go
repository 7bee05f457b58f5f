package updater

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// NewLatestUpdater resolves the newest release now and returns a predefined
// strategy pinned to it.
func NewLatestUpdater(ctx context.Context, source ReleaseSource, installer Installer) (clitool.Updater, error) {
	latest, err := Latest(ctx, source)
	if err != nil {
		return clitool.Updater{}, err
	}
	return clitool.NewPredefinedUpdater(clitool.PredefinedFunc{
		Target: latest.Version.String(),
		Update: func(ctx context.Context, logger clitool.Logger) error {
			return installer.Install(ctx, latest, logger)
		},
	}), nil
}

// NewFixedUpdater returns a predefined strategy that installs version.
// The release is looked up when the update runs.
func NewFixedUpdater(source ReleaseSource, installer Installer, version string) clitool.Updater {
	choose := VersionChooser(version)
	return clitool.NewPredefinedUpdater(clitool.PredefinedFunc{
		Target: version,
		Update: func(ctx context.Context, logger clitool.Logger) error {
			releases, err := source.Releases(ctx)
			if err != nil {
				return err
			}
			release, err := choose(ctx, releases)
			if err != nil {
				return err
			}
			return installer.Install(ctx, release, logger)
		},
	})
}

// Chooser picks one of the available releases, newest first.
type Chooser func(ctx context.Context, releases []Release) (Release, error)

// NewestChooser always picks the newest release.
func NewestChooser(_ context.Context, releases []Release) (Release, error) {
	if len(releases) == 0 {
		return Release{}, ErrNoReleases
	}
	return releases[0], nil
}

// VersionChooser picks the release with exactly version.
func VersionChooser(version string) Chooser {
	return func(_ context.Context, releases []Release) (Release, error) {
		for _, r := range releases {
			if r.Version.Original() == version || r.Version.String() == version || r.Tag == version {
				return r, nil
			}
		}
		return Release{}, fmt.Errorf("%w: %s", ErrNoReleases, version)
	}
}

// selectableRelease installs whichever release was chosen last.
type selectableRelease struct {
	source    ReleaseSource
	installer Installer
	choose    Chooser

	mu       sync.Mutex
	selected *Release
}

// NewSelectableReleaseUpdater returns a selectable strategy that asks choose
// for a release. Updating without a prior selection installs the newest release.
func NewSelectableReleaseUpdater(source ReleaseSource, installer Installer, choose Chooser) clitool.Updater {
	if choose == nil {
		choose = NewestChooser
	}
	return clitool.NewSelectableUpdater(&selectableRelease{
		source:    source,
		installer: installer,
		choose:    choose,
	})
}

func (s *selectableRelease) SelectVersion(ctx context.Context) (string, error) {
	releases, err := s.source.Releases(ctx)
	if err != nil {
		return "", err
	}
	r, err := s.choose(ctx, releases)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.selected = &r
	s.mu.Unlock()
	return r.Version.String(), nil
}

func (s *selectableRelease) DoUpdate(ctx context.Context, logger clitool.Logger) error {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()

	if selected == nil {
		latest, err := Latest(ctx, s.source)
		if err != nil {
			return err
		}
		selected = &latest
	}
	return s.installer.Install(ctx, *selected, logger)
}
