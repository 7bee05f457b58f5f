package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// Installer installs a release of a tool.
type Installer interface {
	Install(ctx context.Context, release Release, logger clitool.Logger) error
}

// AssetMatcher picks the release asset for the current platform.
type AssetMatcher func(asset Asset) bool

var archAliases = map[string][]string{
	"amd64": {"amd64", "x86_64", "x64"},
	"arm64": {"arm64", "aarch64"},
	"386":   {"386", "i386", "x86"},
}

var skippedSuffixes = []string{".sha256", ".sha256sum", ".sig", ".asc", ".pem", ".txt", ".sbom", ".json"}

// PlatformMatcher matches raw binaries built for goos and goarch.
func PlatformMatcher(goos, goarch string) AssetMatcher {
	arches := archAliases[goarch]
	if len(arches) == 0 {
		arches = []string{goarch}
	}
	return func(a Asset) bool {
		name := strings.ToLower(a.Name)
		for _, suffix := range skippedSuffixes {
			if strings.HasSuffix(name, suffix) {
				return false
			}
		}
		if !strings.Contains(name, goos) {
			return false
		}
		for _, arch := range arches {
			if strings.Contains(name, arch) {
				return true
			}
		}
		return false
	}
}

// PatternMatcher matches assets whose name matches re.
func PatternMatcher(re *regexp.Regexp) AssetMatcher {
	return func(a Asset) bool {
		return re.MatchString(a.Name)
	}
}

// AssetInstaller downloads a release asset into the managed directory and
// reports the new version to the tool.
type AssetInstaller struct {
	source *GitHubReleases
	tool   clitool.Handle
	dir    string
	binary string
	match  AssetMatcher
}

// InstallerOption configures an AssetInstaller.
type InstallerOption func(*AssetInstaller)

// WithAssetMatcher overrides platform asset selection.
func WithAssetMatcher(m AssetMatcher) InstallerOption {
	return func(i *AssetInstaller) {
		i.match = m
	}
}

// WithBinaryName sets the installed file name. Defaults to the tool name.
func WithBinaryName(name string) InstallerOption {
	return func(i *AssetInstaller) {
		i.binary = name
	}
}

// NewAssetInstaller creates an installer for tool writing into dir.
func NewAssetInstaller(source *GitHubReleases, tool clitool.Handle, dir string, opts ...InstallerOption) *AssetInstaller {
	i := &AssetInstaller{
		source: source,
		tool:   tool,
		dir:    dir,
		binary: tool.Name(),
		match:  PlatformMatcher(runtime.GOOS, runtime.GOARCH),
	}
	for _, opt := range opts {
		opt(i)
	}
	if runtime.GOOS == "windows" && !strings.HasSuffix(i.binary, ".exe") {
		i.binary += ".exe"
	}
	return i
}

// Install downloads the matching asset of release and swaps it into place.
func (i *AssetInstaller) Install(ctx context.Context, release Release, logger clitool.Logger) error {
	asset, ok := i.selectAsset(release)
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNoAsset, i.source.Repository(), release.Tag)
	}

	logger.Log(fmt.Sprintf("downloading %s from %s %s", asset.Name, i.source.Repository(), release.Tag))

	rc, redirect, err := i.source.client.Repositories.DownloadReleaseAsset(ctx, i.source.owner, i.source.repo, asset.ID, i.source.httpClient)
	if err != nil {
		return fmt.Errorf("download %s: %w", asset.Name, err)
	}
	if rc == nil {
		rc, err = i.fetch(ctx, redirect)
		if err != nil {
			return fmt.Errorf("download %s: %w", asset.Name, err)
		}
	}
	defer rc.Close()

	dest, err := i.write(rc)
	if err != nil {
		logger.Error(fmt.Sprintf("install of %s failed: %v", release.Tag, err))
		return err
	}

	version := release.Version.String()
	logger.Log(fmt.Sprintf("installed %s %s to %s", i.binary, version, dest))

	i.tool.UpdateVersion(clitool.VersionUpdate{
		Version:            version,
		Path:               dest,
		InstallationSource: clitool.SourceExtension,
	})
	return nil
}

func (i *AssetInstaller) selectAsset(release Release) (Asset, bool) {
	for _, a := range release.Assets {
		if i.match(a) {
			return a, true
		}
	}
	return Asset{}, false
}

func (i *AssetInstaller) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.source.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// write stores r as the tool binary. The temp file lives in dir so the rename is atomic.
func (i *AssetInstaller) write(r io.Reader) (string, error) {
	if err := os.MkdirAll(i.dir, 0o755); err != nil {
		return "", fmt.Errorf("create install dir: %w", err)
	}

	tmp, err := os.CreateTemp(i.dir, "."+i.binary+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write binary: %w", err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return "", fmt.Errorf("chmod binary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close binary: %w", err)
	}

	dest := filepath.Join(i.dir, i.binary)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("replace binary: %w", err)
	}
	return dest, nil
}

var _ Installer = (*AssetInstaller)(nil)
