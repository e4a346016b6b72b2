// pkg/archive/archive.go
//
// Archive extraction for downloaded engine releases. Unix hosts shell out
// to the native tar/unzip utilities; Windows uses the zip library with an
// Expand-Archive / 7-Zip fallback chain. Library readers cover the formats
// mirrors occasionally repackage releases into (.tar.xz, .7z).

package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/platform"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	"github.com/bodgit/sevenzip"
	cerr "github.com/cockroachdb/errors"
	"github.com/xi2/xz"
	"go.uber.org/zap"
)

// Extract unpacks the archive at src into dest, dispatching on OS and
// extension.
func Extract(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(dest, xdg.DirPermStandard); err != nil {
		return attest_err.Wrap(attest_err.CategoryExtraction, err, "create extraction dir %s", dest)
	}

	switch {
	case strings.HasSuffix(src, ".zip"):
		return extractZip(ctx, src, dest)
	case strings.HasSuffix(src, ".7z"):
		return extract7z(src, dest)
	case strings.HasSuffix(src, ".tar"), strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"),
		strings.HasSuffix(src, ".tar.bz2"), strings.HasSuffix(src, ".tar.xz"):
		return extractTar(ctx, src, dest)
	default:
		return attest_err.New(attest_err.CategoryExtraction, "unsupported archive format: %s", src)
	}
}

func extractZip(ctx context.Context, src, dest string) error {
	if runtime.GOOS != "windows" && platform.IsCommandAvailable("unzip") {
		_, err := execute.Run(ctx, execute.Options{
			Command: "unzip",
			Args:    []string{"-o", "-q", src, "-d", dest},
		})
		if err == nil {
			return nil
		}
		zap.L().Warn("unzip failed, falling back to library extraction", zap.Error(err))
	}

	if err := extractZipLibrary(src, dest); err == nil {
		return nil
	} else if runtime.GOOS != "windows" {
		return attest_err.Wrap(attest_err.CategoryExtraction, err, "extract %s", src)
	}

	// Windows fallback chain: Expand-Archive, then 7-Zip.
	if _, err := execute.Run(ctx, execute.Options{
		Command: "powershell",
		Args:    []string{"-NoProfile", "-Command", "Expand-Archive", "-Force", "-Path", src, "-DestinationPath", dest},
	}); err == nil {
		return nil
	}
	if _, err := execute.Run(ctx, execute.Options{
		Command: "7z",
		Args:    []string{"x", "-y", "-o" + dest, src},
	}); err == nil {
		return nil
	}
	return attest_err.New(attest_err.CategoryExtraction,
		"could not extract %s: zip library, Expand-Archive, and 7z all failed", src)
}

func extractZipLibrary(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return cerr.Wrap(err, "open zip")
	}
	defer r.Close()

	for _, f := range r.File {
		path, err := sanitizePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, xdg.DirPermStandard); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), xdg.DirPermStandard); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(path, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(ctx context.Context, src, dest string) error {
	if runtime.GOOS != "windows" && platform.IsCommandAvailable("tar") && !strings.HasSuffix(src, ".tar.xz") {
		_, err := execute.Run(ctx, execute.Options{
			Command: "tar",
			Args:    []string{"-xf", src, "-C", dest},
		})
		if err == nil {
			return nil
		}
		zap.L().Warn("tar failed, falling back to library extraction", zap.Error(err))
	}
	if err := extractTarLibrary(src, dest); err != nil {
		return attest_err.Wrap(attest_err.CategoryExtraction, err, "extract %s", src)
	}
	return nil
}

func extractTarLibrary(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return cerr.Wrap(err, "open archive")
	}
	defer f.Close()

	var reader io.Reader = f
	switch {
	case strings.HasSuffix(src, ".tar.gz"), strings.HasSuffix(src, ".tgz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return cerr.Wrap(err, "gzip reader")
		}
		defer gr.Close()
		reader = gr
	case strings.HasSuffix(src, ".tar.bz2"):
		reader = bzip2.NewReader(f)
	case strings.HasSuffix(src, ".tar.xz"):
		xzr, err := xz.NewReader(f, 0)
		if err != nil {
			return cerr.Wrap(err, "xz reader")
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return cerr.Wrap(err, "read tar entry")
		}

		path, err := sanitizePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, xdg.DirPermStandard); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), xdg.DirPermStandard); err != nil {
				return err
			}
			if err := writeFile(path, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		}
	}
}

func extract7z(src, dest string) error {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return attest_err.Wrap(attest_err.CategoryExtraction, err, "open 7z archive %s", src)
	}
	defer r.Close()

	for _, f := range r.File {
		path, err := sanitizePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, xdg.DirPermStandard); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), xdg.DirPermStandard); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(path, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = xdg.FilePermStandard
	}
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return err
}

// sanitizePath confines archive entries to the destination (zip-slip):
// leading slashes and dot-dot segments are stripped before joining.
func sanitizePath(dest, name string) (string, error) {
	path := filepath.Join(dest, filepath.Clean("/"+name))
	if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) && path != filepath.Clean(dest) {
		return "", attest_err.New(attest_err.CategoryExtraction, "archive entry escapes destination: %s", name)
	}
	return path, nil
}
