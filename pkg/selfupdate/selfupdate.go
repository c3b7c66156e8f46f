// Package selfupdate checks GitHub releases for newer dotup builds and
// replaces the running binary in place.
package selfupdate

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/macropower/dotup/pkg/fsutil"
	"github.com/macropower/dotup/pkg/semver"
)

const (
	defaultOwner   = "macropower"
	defaultRepo    = "dotup"
	defaultBinName = "dotup"

	requestTimeout = 30 * time.Second
)

var (
	// ErrUpToDate is returned by Apply when no newer release exists.
	ErrUpToDate = errors.New("already up to date")
	// ErrNotRelease is returned for development builds, which carry no
	// comparable version.
	ErrNotRelease = errors.New("not a release build")
	// ErrNoAsset is returned when the latest release has no asset for the
	// current platform.
	ErrNoAsset = errors.New("no release asset for this platform")
)

// Updater talks to the GitHub Releases API for one repository.
type Updater struct {
	client   *github.Client
	owner    string
	repo     string
	binName  string
	version  string
	execPath string
}

// New creates an [Updater] for the running binary's version.
func New(currentVersion string, opts ...UpdaterOpt) *Updater {
	u := &Updater{
		owner:   defaultOwner,
		repo:    defaultRepo,
		binName: defaultBinName,
		version: strings.TrimPrefix(currentVersion, "v"),
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.client == nil {
		u.client = github.NewClient(&http.Client{Timeout: requestTimeout})
	}

	return u
}

type UpdaterOpt func(u *Updater)

// WithClient sets the GitHub API client.
func WithClient(c *github.Client) UpdaterOpt {
	return func(u *Updater) {
		u.client = c
	}
}

// WithRepo overrides the release repository.
func WithRepo(owner, repo string) UpdaterOpt {
	return func(u *Updater) {
		u.owner = owner
		u.repo = repo
	}
}

// WithExecutablePath replaces the binary at path instead of the running
// executable.
func WithExecutablePath(path string) UpdaterOpt {
	return func(u *Updater) {
		u.execPath = path
	}
}

// Check describes the latest release relative to the running version.
type Check struct {
	// CurrentVersion is the running version, without a v prefix.
	CurrentVersion string `json:"currentVersion"`
	// LatestVersion is the newest published release.
	LatestVersion string `json:"latestVersion"`
	// ReleaseURL is the release page on GitHub.
	ReleaseURL string `json:"releaseUrl"`
	// UpdateAvailable reports whether the latest release is newer.
	UpdateAvailable bool `json:"updateAvailable"`

	assets []*github.ReleaseAsset
}

// Check fetches the latest release and compares it against the running
// version.
func (u *Updater) Check(ctx context.Context) (*Check, error) {
	release, _, err := u.client.Repositories.GetLatestRelease(ctx, u.owner, u.repo)
	if err != nil {
		return nil, fmt.Errorf("fetch latest release: %w", err)
	}

	c := &Check{
		CurrentVersion: u.version,
		LatestVersion:  strings.TrimPrefix(release.GetTagName(), "v"),
		ReleaseURL:     release.GetHTMLURL(),
		assets:         release.Assets,
	}
	c.UpdateAvailable = semver.IsNewer(c.CurrentVersion, c.LatestVersion)

	return c, nil
}

// Apply downloads the latest release and atomically replaces the running
// executable. Development builds are refused; releases that are already
// current return [ErrUpToDate].
func (u *Updater) Apply(ctx context.Context) (*Check, error) {
	_, err := semver.Parse(u.version)
	if err != nil {
		return nil, fmt.Errorf("%w: %q, install a released build to self-update", ErrNotRelease, u.version)
	}

	check, err := u.Check(ctx)
	if err != nil {
		return nil, err
	}

	if !check.UpdateAvailable {
		return check, fmt.Errorf("%w: %s", ErrUpToDate, check.CurrentVersion)
	}

	wantAsset := u.assetName(check.LatestVersion)

	var asset *github.ReleaseAsset
	for _, a := range check.assets {
		if a.GetName() == wantAsset {
			asset = a

			break
		}
	}

	if asset == nil {
		return check, fmt.Errorf("%w: %s/%s (want %s)",
			ErrNoAsset, runtime.GOOS, runtime.GOARCH, wantAsset)
	}

	slog.Debug("downloading release asset",
		slog.String("asset", asset.GetName()),
		slog.String("version", check.LatestVersion),
	)

	rc, _, err := u.client.Repositories.DownloadReleaseAsset(
		ctx, u.owner, u.repo, asset.GetID(), http.DefaultClient)
	if err != nil {
		return check, fmt.Errorf("download release asset: %w", err)
	}

	defer func() {
		_ = rc.Close()
	}()

	binData, err := extractBinary(rc, asset.GetName(), u.binName)
	if err != nil {
		return check, err
	}

	execPath := u.execPath
	if execPath == "" {
		execPath, err = os.Executable()
		if err != nil {
			return check, fmt.Errorf("find current executable: %w", err)
		}

		execPath, err = filepath.EvalSymlinks(execPath)
		if err != nil {
			return check, fmt.Errorf("resolve executable path: %w", err)
		}
	}

	err = replaceBinary(execPath, binData)
	if err != nil {
		return check, err
	}

	slog.Info("binary updated",
		slog.String("path", execPath),
		slog.String("version", check.LatestVersion),
	)

	return check, nil
}

// assetName constructs the archive name published for this platform,
// matching the release pipeline's template.
func (u *Updater) assetName(version string) string {
	ext := "tar.gz"
	if runtime.GOOS == "windows" {
		ext = "zip"
	}

	return fmt.Sprintf("%s_%s_%s_%s.%s", u.binName, version, runtime.GOOS, runtime.GOARCH, ext)
}

func extractBinary(r io.Reader, assetName, binName string) ([]byte, error) {
	if strings.HasSuffix(assetName, ".zip") {
		return extractZip(r, binName)
	}

	return extractTarGz(r, binName)
}

func extractTarGz(r io.Reader, binName string) ([]byte, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(header.Name)
		if name != binName && name != binName+".exe" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read binary from archive: %w", err)
		}

		return data, nil
	}

	return nil, fmt.Errorf("%s not found in archive", binName)
}

// extractZip buffers the archive because zip needs random access.
func extractZip(r io.Reader, binName string) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	for _, f := range zr.File {
		name := filepath.Base(f.Name)
		if name != binName && name != binName+".exe" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip member: %w", err)
		}

		data, err := io.ReadAll(rc)
		_ = rc.Close()

		if err != nil {
			return nil, fmt.Errorf("read binary from archive: %w", err)
		}

		return data, nil
	}

	return nil, fmt.Errorf("%s not found in archive", binName)
}

// replaceBinary swaps the executable. Windows cannot replace a running
// binary, so the current one is renamed aside first.
func replaceBinary(execPath string, data []byte) error {
	if runtime.GOOS == "windows" {
		oldPath := execPath + ".old"
		_ = os.Remove(oldPath)

		err := os.Rename(execPath, oldPath)
		if err != nil {
			return fmt.Errorf("move current binary aside: %w", err)
		}
	}

	err := fsutil.WriteFileAtomic(execPath, data, 0o755)
	if err != nil {
		return fmt.Errorf("write new binary: %w", err)
	}

	return nil
}
