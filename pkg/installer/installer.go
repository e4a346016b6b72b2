// pkg/installer/installer.go
//
// Binary acquisition for the external engines: resolve a per-platform
// release URL, download with redirect following and size sanity checks,
// extract, locate the binary wherever the archive put it, and verify it
// answers --version.

package installer

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/archive"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/platform"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	cerr "github.com/cockroachdb/errors"
	goversion "github.com/hashicorp/go-version"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// MinArchiveBytes rejects truncated downloads before extraction. A
	// real engine release is tens of megabytes; anything under 1 KB is a
	// captive portal page or a broken mirror.
	MinArchiveBytes = 1024

	// maxRedirects bounds the redirect chain GitHub release downloads
	// bounce through (release page -> S3 -> CDN).
	maxRedirects = 10
)

// CheckResult reports whether a tool's binary exists and where.
type CheckResult struct {
	Tool      string `json:"tool"`
	Installed bool   `json:"installed"`
	Path      string `json:"path,omitempty"`
	Bundled   bool   `json:"bundled,omitempty"`
}

// Installer owns the install directory and the installation record.
type Installer struct {
	profile  platform.Profile
	settings config.Settings
	client   *http.Client
	run      execute.Runner
	record   *Record
}

// New builds an installer, loading (and merging with) any previously
// persisted installation record.
func New(profile platform.Profile, settings config.Settings, client *http.Client, run execute.Runner) (*Installer, error) {
	record, err := LoadRecord(settings.RecordPath)
	if err != nil {
		return nil, err
	}
	return &Installer{
		profile:  profile,
		settings: settings,
		client:   client,
		run:      run,
		record:   record,
	}, nil
}

// Record exposes the installation record for status rendering.
func (i *Installer) Record() *Record {
	return i.record
}

// Location resolves the probe locations for a tool.
func (i *Installer) Location(tool Tool) Location {
	return LocationFor(tool, i.profile.OS, i.settings.InstallDir)
}

// CheckInstalled reports whether the tool's binary exists on disk.
// Existence alone decides; executability and version are checked at
// install time only.
func (i *Installer) CheckInstalled(rc *attest_io.RuntimeContext, tool Tool) CheckResult {
	logger := otelzap.Ctx(rc.Ctx)

	result := CheckResult{Tool: tool.Name}
	if path, bundled, ok := i.Location(tool).Resolve(); ok {
		result.Installed = true
		result.Path = path
		result.Bundled = bundled
	}

	logger.Debug("Checked tool installation",
		zap.String("tool", tool.Name),
		zap.Bool("installed", result.Installed),
		zap.String("path", result.Path))

	if err := i.record.Set(tool.Name, ToolStatus{
		Installed: result.Installed,
		Checked:   true,
		Path:      result.Path,
	}); err != nil {
		logger.Warn("Failed to persist installation record", zap.Error(err))
	}

	return result
}

// Install downloads and installs the tool for the detected platform. Fatal
// failures return a classified error; the caller records them and carries
// on with the rest of the sequence.
func (i *Installer) Install(rc *attest_io.RuntimeContext, tool Tool) (err error) {
	logger := otelzap.Ctx(rc.Ctx)

	defer func() {
		status := ToolStatus{Checked: true}
		if err == nil {
			status.Installed = true
			status.Path = i.Location(tool).FallbackPath
		} else {
			status.Error = err.Error()
		}
		if recErr := i.record.Set(tool.Name, status); recErr != nil {
			logger.Warn("Failed to persist installation record", zap.Error(recErr))
		}
	}()

	if !i.profile.Supported {
		return attest_err.New(attest_err.CategoryUnsupportedPlatform,
			"cannot install %s: architecture %q on %s is not supported (supported: amd64, arm64, arm, 386)",
			tool.Name, i.profile.RawArch, i.profile.OS)
	}

	downloadURL := tool.DownloadURL(i.profile)
	logger.Info("Installing tool",
		zap.String("tool", tool.Name),
		zap.String("url", downloadURL),
		zap.String("os", i.profile.OS),
		zap.String("arch", i.profile.Arch))

	if err := os.MkdirAll(i.settings.InstallDir, xdg.DirPermStandard); err != nil {
		return cerr.Wrap(err, "create install directory")
	}

	archivePath := xdg.CachePath(tool.ArchiveName(i.profile))
	if err := xdg.EnsureDir(archivePath); err != nil {
		return cerr.Wrap(err, "create download directory")
	}

	if err := i.download(rc, downloadURL, archivePath); err != nil {
		return err
	}

	if err := archive.Extract(rc.Ctx, archivePath, i.settings.InstallDir); err != nil {
		return err
	}

	binPath, err := i.locateBinary(rc, tool)
	if err != nil {
		return err
	}

	if i.profile.OS != "windows" {
		if err := os.Chmod(binPath, xdg.FilePermExecutable); err != nil {
			return cerr.Wrapf(err, "chmod %s", binPath)
		}
	}

	i.verifyVersion(rc, tool, binPath)

	// Best effort; a leftover archive in the cache dir is harmless.
	if err := os.Remove(archivePath); err != nil {
		logger.Debug("Could not remove downloaded archive",
			zap.String("path", archivePath), zap.Error(err))
	}

	logger.Info("Tool installed", zap.String("tool", tool.Name), zap.String("path", binPath))
	return nil
}

// download streams the URL to dest, following redirects itself so a chain
// ending in 404 is reported with the URL that actually failed.
func (i *Installer) download(rc *attest_io.RuntimeContext, rawURL, dest string) error {
	logger := otelzap.Ctx(rc.Ctx)

	current := rawURL
	for redirects := 0; ; redirects++ {
		if redirects > maxRedirects {
			return attest_err.New(attest_err.CategoryDownload,
				"too many redirects downloading %s", rawURL)
		}

		req, err := http.NewRequestWithContext(rc.Ctx, http.MethodGet, current, nil)
		if err != nil {
			return attest_err.Wrap(attest_err.CategoryDownload, err, "build request for %s", current)
		}

		resp, err := i.client.Do(req)
		if err != nil {
			return attest_err.Wrap(attest_err.CategoryDownload, err, "download %s", current)
		}

		switch {
		case resp.StatusCode == http.StatusMovedPermanently,
			resp.StatusCode == http.StatusFound,
			resp.StatusCode == http.StatusTemporaryRedirect,
			resp.StatusCode == http.StatusPermanentRedirect:
			next := resp.Header.Get("Location")
			resp.Body.Close()
			if next == "" {
				return attest_err.New(attest_err.CategoryDownload,
					"redirect without Location header from %s", current)
			}
			if resolved, err := url.Parse(next); err == nil {
				if base, err := url.Parse(current); err == nil {
					next = base.ResolveReference(resolved).String()
				}
			}
			logger.Debug("Following redirect", zap.String("from", current), zap.String("to", next))
			current = next
			continue

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return attest_err.New(attest_err.CategoryDownload,
				"binary not available for %s/%s: %s returned 404",
				i.profile.OS, i.profile.Arch, current)

		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return attest_err.New(attest_err.CategoryDownload,
				"download of %s failed with status %d", current, resp.StatusCode)
		}

		written, err := writeStream(dest, resp.Body)
		resp.Body.Close()
		if err != nil {
			_ = os.Remove(dest)
			return attest_err.Wrap(attest_err.CategoryDownload, err, "write %s", dest)
		}

		if written < MinArchiveBytes {
			_ = os.Remove(dest)
			return attest_err.New(attest_err.CategoryDownload,
				"downloaded file is undersized (%d bytes) and was deleted: %s", written, current)
		}

		logger.Info("Downloaded archive",
			zap.String("url", current),
			zap.Int64("bytes", written),
			zap.String("dest", dest))
		return nil
	}
}

func writeStream(dest string, r io.Reader) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

// locateBinary probes, in order: the install dir root, the fallback path,
// the bundled path, and one level of subdirectories (relocating the binary
// up to the root if found nested). Archives do not have a stable layout
// across tools or releases.
func (i *Installer) locateBinary(rc *attest_io.RuntimeContext, tool Tool) (string, error) {
	logger := otelzap.Ctx(rc.Ctx)
	loc := i.Location(tool)
	bin := tool.BinaryName(i.profile.OS)

	rootPath := filepath.Join(loc.InstallDir, bin)
	probed := []string{rootPath}
	if _, err := os.Stat(rootPath); err == nil {
		return rootPath, nil
	}

	if loc.FallbackPath != rootPath {
		probed = append(probed, loc.FallbackPath)
		if _, err := os.Stat(loc.FallbackPath); err == nil {
			return loc.FallbackPath, nil
		}
	}

	if loc.BundledPath != "" {
		probed = append(probed, loc.BundledPath)
		if _, err := os.Stat(loc.BundledPath); err == nil {
			return loc.BundledPath, nil
		}
	}

	entries, err := os.ReadDir(loc.InstallDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			nested := filepath.Join(loc.InstallDir, entry.Name(), bin)
			probed = append(probed, nested)
			if _, err := os.Stat(nested); err != nil {
				continue
			}
			logger.Debug("Relocating nested binary",
				zap.String("from", nested), zap.String("to", rootPath))
			if err := os.Rename(nested, rootPath); err != nil {
				return "", cerr.Wrapf(err, "relocate %s", nested)
			}
			return rootPath, nil
		}
	}

	return "", attest_err.New(attest_err.CategoryBinaryNotFound,
		"%s binary not found after extraction; probed: %s",
		tool.Name, strings.Join(probed, ", "))
}

// verifyVersion invokes --version as a sanity check. Failure is logged but
// not fatal: the binary may still work, and a broken one will fail loudly
// on first real use.
func (i *Installer) verifyVersion(rc *attest_io.RuntimeContext, tool Tool, binPath string) {
	logger := otelzap.Ctx(rc.Ctx)

	result, err := i.run.Run(rc.Ctx, execute.Options{
		Command: binPath,
		Args:    []string{"--version"},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		logger.Warn("Version check failed after install",
			zap.String("tool", tool.Name), zap.Error(err))
		return
	}

	raw := strings.TrimSpace(result.Stdout)
	fields := strings.Fields(raw)
	version := raw
	if len(fields) > 0 {
		version = fields[len(fields)-1]
	}
	if v, err := goversion.NewVersion(strings.TrimPrefix(version, "v")); err == nil {
		version = v.String()
	}

	logger.Info("Verified installed tool",
		zap.String("tool", tool.Name),
		zap.String("version", version))
}
