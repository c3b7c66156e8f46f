package selfupdate_test

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/dotup/pkg/selfupdate"
)

// newReleaseServer serves the minimal Releases API surface: the latest
// release document and one downloadable asset with id 1.
func newReleaseServer(t *testing.T, tag, assetName string, archive []byte) *github.Client {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/repos/macropower/dotup/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tag_name": tag,
			"html_url": "https://github.com/macropower/dotup/releases/tag/" + tag,
			"assets": []map[string]any{
				{"id": 1, "name": assetName},
			},
		})
	})

	mux.HandleFunc("/repos/macropower/dotup/releases/assets/1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(archive)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := github.NewClient(srv.Client())

	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)

	client.BaseURL = base
	client.UploadURL = base

	return client
}

// assetArchive builds the archive the release pipeline would publish for
// this platform, containing a single member file.
func assetArchive(t *testing.T, version, member string, content []byte) (string, []byte) {
	t.Helper()

	if runtime.GOOS == "windows" {
		name := fmt.Sprintf("dotup_%s_windows_%s.zip", version, runtime.GOARCH)

		var buf bytes.Buffer

		zw := zip.NewWriter(&buf)

		w, err := zw.Create(member)
		require.NoError(t, err)

		_, err = w.Write(content)
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		return name, buf.Bytes()
	}

	name := fmt.Sprintf("dotup_%s_%s_%s.tar.gz", version, runtime.GOOS, runtime.GOARCH)

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     member,
		Mode:     0o755,
		Size:     int64(len(content)),
		Typeflag: tar.TypeReg,
	}))

	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return name, buf.Bytes()
}

func TestUpdater_Check(t *testing.T) {
	t.Parallel()

	name, archive := assetArchive(t, "1.2.0", "dotup", []byte("bin"))

	tests := map[string]struct {
		current       string
		wantAvailable bool
	}{
		"older version": {
			current:       "1.0.0",
			wantAvailable: true,
		},
		"same version": {
			current:       "1.2.0",
			wantAvailable: false,
		},
		"newer local version": {
			current:       "1.3.0",
			wantAvailable: false,
		},
		"development build": {
			current:       "dev",
			wantAvailable: false,
		},
	}

	for tname, tc := range tests {
		t.Run(tname, func(t *testing.T) {
			t.Parallel()

			client := newReleaseServer(t, "v1.2.0", name, archive)
			u := selfupdate.New(tc.current, selfupdate.WithClient(client))

			check, err := u.Check(t.Context())
			require.NoError(t, err)

			assert.Equal(t, "1.2.0", check.LatestVersion)
			assert.Equal(t, tc.wantAvailable, check.UpdateAvailable)
			assert.Contains(t, check.ReleaseURL, "v1.2.0")
		})
	}
}

func TestUpdater_Apply(t *testing.T) {
	t.Parallel()

	newBinary := []byte("dotup binary v1.2.0")
	name, archive := assetArchive(t, "1.2.0", "dotup", newBinary)
	client := newReleaseServer(t, "v1.2.0", name, archive)

	execPath := filepath.Join(t.TempDir(), "dotup")
	require.NoError(t, os.WriteFile(execPath, []byte("old binary"), 0o755))

	u := selfupdate.New("1.0.0",
		selfupdate.WithClient(client),
		selfupdate.WithExecutablePath(execPath),
	)

	check, err := u.Apply(t.Context())
	require.NoError(t, err)
	assert.True(t, check.UpdateAvailable)

	got, err := os.ReadFile(execPath)
	require.NoError(t, err)
	assert.Equal(t, newBinary, got)

	fi, err := os.Stat(execPath)
	require.NoError(t, err)

	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())
	}
}

func TestUpdater_Apply_UpToDate(t *testing.T) {
	t.Parallel()

	name, archive := assetArchive(t, "1.2.0", "dotup", []byte("bin"))
	client := newReleaseServer(t, "v1.2.0", name, archive)

	execPath := filepath.Join(t.TempDir(), "dotup")
	require.NoError(t, os.WriteFile(execPath, []byte("current binary"), 0o755))

	u := selfupdate.New("v1.2.0",
		selfupdate.WithClient(client),
		selfupdate.WithExecutablePath(execPath),
	)

	check, err := u.Apply(t.Context())
	require.ErrorIs(t, err, selfupdate.ErrUpToDate)
	require.NotNil(t, check)
	assert.False(t, check.UpdateAvailable)

	got, err := os.ReadFile(execPath)
	require.NoError(t, err)
	assert.Equal(t, "current binary", string(got))
}

func TestUpdater_Apply_DevBuild(t *testing.T) {
	t.Parallel()

	name, archive := assetArchive(t, "1.2.0", "dotup", []byte("bin"))
	client := newReleaseServer(t, "v1.2.0", name, archive)

	u := selfupdate.New("abc1234-dirty", selfupdate.WithClient(client))

	_, err := u.Apply(t.Context())
	require.ErrorIs(t, err, selfupdate.ErrNotRelease)
}

func TestUpdater_Apply_NoAsset(t *testing.T) {
	t.Parallel()

	_, archive := assetArchive(t, "1.2.0", "dotup", []byte("bin"))
	client := newReleaseServer(t, "v1.2.0", "dotup_1.2.0_plan9_mips.tar.gz", archive)

	execPath := filepath.Join(t.TempDir(), "dotup")
	require.NoError(t, os.WriteFile(execPath, []byte("old"), 0o755))

	u := selfupdate.New("1.0.0",
		selfupdate.WithClient(client),
		selfupdate.WithExecutablePath(execPath),
	)

	_, err := u.Apply(t.Context())
	require.ErrorIs(t, err, selfupdate.ErrNoAsset)
	assert.Contains(t, err.Error(), runtime.GOOS)
}

func TestUpdater_Apply_BinaryMissingFromArchive(t *testing.T) {
	t.Parallel()

	name, archive := assetArchive(t, "1.2.0", "README.md", []byte("docs"))
	client := newReleaseServer(t, "v1.2.0", name, archive)

	execPath := filepath.Join(t.TempDir(), "dotup")
	require.NoError(t, os.WriteFile(execPath, []byte("old"), 0o755))

	u := selfupdate.New("1.0.0",
		selfupdate.WithClient(client),
		selfupdate.WithExecutablePath(execPath),
	)

	_, err := u.Apply(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")

	got, err := os.ReadFile(execPath)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}
