// pkg/installer/installer_test.go

package installer

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	result *execute.Result
	err    error
}

func (s stubRunner) Run(_ context.Context, _ execute.Options) (*execute.Result, error) {
	return s.result, s.err
}

// rewriteTransport redirects every request to the test server so Install can
// be driven end to end without touching the network.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func linuxProfile() platform.Profile {
	return platform.Profile{OS: "linux", RawArch: "x86_64", Arch: "amd64", Supported: true}
}

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	dir := t.TempDir()
	return config.Settings{
		InstallDir: filepath.Join(dir, "bin"),
		RecordPath: filepath.Join(dir, "installation.json"),
	}
}

func newTestInstaller(t *testing.T, profile platform.Profile, client *http.Client, run execute.Runner) *Installer {
	t.Helper()
	inst, err := New(profile, testSettings(t), client, run)
	require.NoError(t, err)
	return inst
}

// zipWithEntries builds a zip in memory, padding the first entry so the
// archive clears the minimum download size.
func zipWithEntries(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	padded := false
	for name, content := range entries {
		// Store entries uncompressed so the padding is not deflated away
		// and the archive really clears MinArchiveBytes on the wire.
		fw, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		data := []byte(content)
		if !padded {
			data = append(data, bytes.Repeat([]byte{'\n'}, 2*MinArchiveBytes)...)
			padded = true
		}
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestInstallRejectsUnsupportedArch(t *testing.T) {
	profile := platform.Profile{OS: "linux", RawArch: "mips", Arch: "mips", Supported: false}
	inst := newTestInstaller(t, profile, http.DefaultClient, stubRunner{})
	rc := attest_io.NewContext(context.Background(), "test")

	err := inst.Install(rc, Steampipe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mips")
	assert.True(t, attest_err.IsCategory(err, attest_err.CategoryUnsupportedPlatform))

	status := inst.Record().Get("steampipe")
	assert.False(t, status.Installed)
	assert.Contains(t, status.Error, "mips")
}

func TestDownload404IncludesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	inst := newTestInstaller(t, linuxProfile(), srv.Client(), stubRunner{})
	rc := attest_io.NewContext(context.Background(), "test")

	missing := srv.URL + "/steampipe_linux_amd64.zip"
	err := inst.download(rc, missing, filepath.Join(t.TempDir(), "out.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
	assert.True(t, attest_err.IsCategory(err, attest_err.CategoryDownload))
}

func TestDownloadFollowsRedirects(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 2*MinArchiveBytes)
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusFound)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// The download client never auto-follows; the installer must.
	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	inst := newTestInstaller(t, linuxProfile(), client, stubRunner{})
	rc := attest_io.NewContext(context.Background(), "test")

	dest := filepath.Join(t.TempDir(), "out.zip")
	require.NoError(t, inst.download(rc, srv.URL+"/start", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDownloadDeletesUndersizedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>captive portal</html>"))
	}))
	defer srv.Close()

	inst := newTestInstaller(t, linuxProfile(), srv.Client(), stubRunner{})
	rc := attest_io.NewContext(context.Background(), "test")

	dest := filepath.Join(t.TempDir(), "out.zip")
	err := inst.download(rc, srv.URL+"/tiny.zip", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undersized")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "undersized download must be deleted")
}

func TestInstallEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix install path")
	}
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	// Binary nested one level deep, as real release archives sometimes are.
	archiveBytes := zipWithEntries(t, map[string]string{
		"steampipe_linux_amd64/steampipe": "#!/bin/sh\necho fake\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archiveBytes)
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: rewriteTransport{target: target}}

	run := stubRunner{result: &execute.Result{ExitCode: 0, Stdout: "steampipe version 2.1.0\n"}}
	inst := newTestInstaller(t, linuxProfile(), client, run)
	rc := attest_io.NewContext(context.Background(), "test")

	require.NoError(t, inst.Install(rc, Steampipe))

	binPath := filepath.Join(inst.settings.InstallDir, "steampipe")
	info, err := os.Stat(binPath)
	require.NoError(t, err, "binary must be relocated to the install dir root")
	assert.NotZero(t, info.Mode().Perm()&0111, "binary must be executable")

	status := inst.Record().Get("steampipe")
	assert.True(t, status.Installed)
	assert.Empty(t, status.Error)
}

func TestCheckInstalledReflectsFilesystem(t *testing.T) {
	inst := newTestInstaller(t, linuxProfile(), http.DefaultClient, stubRunner{})
	rc := attest_io.NewContext(context.Background(), "test")

	result := inst.CheckInstalled(rc, Powerpipe)
	assert.False(t, result.Installed)

	require.NoError(t, os.MkdirAll(inst.settings.InstallDir, 0755))
	binPath := filepath.Join(inst.settings.InstallDir, "powerpipe")
	require.NoError(t, os.WriteFile(binPath, []byte("bin"), 0755))

	result = inst.CheckInstalled(rc, Powerpipe)
	assert.True(t, result.Installed)
	assert.Equal(t, binPath, result.Path)
}

func TestArchiveNames(t *testing.T) {
	t.Parallel()

	linux := linuxProfile()
	windows := platform.Profile{OS: "windows", RawArch: "amd64", Arch: "amd64", Supported: true}

	assert.Equal(t, "steampipe_linux_amd64.zip", Steampipe.ArchiveName(linux))
	assert.Equal(t, "steampipe_windows_amd64.zip", Steampipe.ArchiveName(windows))
	assert.Equal(t, "powerpipe.linux.amd64.tar.gz", Powerpipe.ArchiveName(linux))
	assert.Equal(t, "powerpipe.windows.amd64.zip", Powerpipe.ArchiveName(windows))

	assert.Equal(t,
		"https://github.com/turbot/steampipe/releases/latest/download/steampipe_linux_amd64.zip",
		Steampipe.DownloadURL(linux))
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "installation.json")

	r, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Empty(t, r.Tools)

	require.NoError(t, r.Set("steampipe", ToolStatus{Installed: true, Checked: true, Path: "/opt/steampipe"}))

	reloaded, err := LoadRecord(path)
	require.NoError(t, err)
	status := reloaded.Get("steampipe")
	assert.True(t, status.Installed)
	assert.Equal(t, "/opt/steampipe", status.Path)
	assert.NotZero(t, status.TimestampMillis)
}

func TestLoadRecordToleratesCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "installation.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	r, err := LoadRecord(path)
	require.NoError(t, err)
	assert.Empty(t, r.Tools)
}
