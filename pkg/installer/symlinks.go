// pkg/installer/symlinks.go

package installer

import (
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// CreateSymlinks links each installed engine binary into ~/.local/bin so
// operators can invoke the engines directly. Entirely best effort: a
// missing binary or a failed link is logged and skipped, never fatal.
// No-op on Windows.
func (i *Installer) CreateSymlinks(rc *attest_io.RuntimeContext) {
	logger := otelzap.Ctx(rc.Ctx)

	if i.profile.OS == "windows" {
		return
	}

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Debug("Cannot resolve home directory for symlinks", zap.Error(err))
		return
	}
	linkDir := filepath.Join(home, ".local", "bin")
	if err := os.MkdirAll(linkDir, xdg.DirPermStandard); err != nil {
		logger.Debug("Cannot create symlink directory", zap.String("dir", linkDir), zap.Error(err))
		return
	}

	for _, tool := range Tools {
		target, _, ok := i.Location(tool).Resolve()
		if !ok {
			continue
		}
		link := filepath.Join(linkDir, tool.Name)

		// Replace stale links, but never clobber a real file.
		if info, err := os.Lstat(link); err == nil {
			if info.Mode()&os.ModeSymlink == 0 {
				logger.Debug("Not replacing non-symlink", zap.String("path", link))
				continue
			}
			_ = os.Remove(link)
		}

		if err := os.Symlink(target, link); err != nil {
			logger.Debug("Failed to create symlink",
				zap.String("link", link), zap.String("target", target), zap.Error(err))
			continue
		}
		logger.Info("Linked engine binary",
			zap.String("link", link), zap.String("target", target))
	}
}
