// pkg/workspace/workspace.go
//
// Benchmark workspace management. The reporting engine only runs
// benchmarks inside a workspace: a directory with a mod manifest and an
// installed mods tree. The filesystem is the source of truth throughout;
// the engine's own output is only trusted for things the filesystem
// cannot answer.

package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	cerr "github.com/cockroachdb/errors"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

const modInstallTimeout = 5 * time.Minute

// manifestNames are the mod manifest filenames the engine recognizes, in
// preference order.
var manifestNames = []string{"mod.pp", "mod.sp"}

// Workspace wraps one benchmark workspace directory.
type Workspace struct {
	dir      string
	binPath  string
	settings config.Settings
	run      execute.Runner
}

// New builds a workspace handle rooted at settings.WorkspaceDir, driven by
// the reporting engine binary at binPath.
func New(binPath string, settings config.Settings, run execute.Runner) *Workspace {
	return &Workspace{
		dir:      settings.WorkspaceDir,
		binPath:  binPath,
		settings: settings,
		run:      run,
	}
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// ManifestPath returns the path of the existing manifest, or the preferred
// name if none exists yet.
func (w *Workspace) ManifestPath() string {
	for _, name := range manifestNames {
		path := filepath.Join(w.dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(w.dir, manifestNames[0])
}

// Initialized reports whether the workspace has a mod manifest.
func (w *Workspace) Initialized() bool {
	for _, name := range manifestNames {
		if _, err := os.Stat(filepath.Join(w.dir, name)); err == nil {
			return true
		}
	}
	return false
}

// GetOrInit ensures the workspace exists and has a manifest. The engine's
// own `mod init` is preferred; when it fails (old versions lack the
// subcommand) a minimal manifest is written directly.
func (w *Workspace) GetOrInit(rc *attest_io.RuntimeContext) error {
	logger := otelzap.Ctx(rc.Ctx)

	if err := os.MkdirAll(w.dir, xdg.DirPermStandard); err != nil {
		return cerr.Wrap(err, "create workspace directory")
	}
	if w.Initialized() {
		logger.Debug("Workspace already initialized", zap.String("dir", w.dir))
		return nil
	}

	logger.Info("Initializing benchmark workspace", zap.String("dir", w.dir))
	_, err := w.run.Run(rc.Ctx, execute.Options{
		Command: w.binPath,
		Args:    []string{"mod", "init"},
		Dir:     w.dir,
		Timeout: 60 * time.Second,
	})
	if err == nil && w.Initialized() {
		return nil
	}
	if err != nil {
		logger.Debug("mod init failed, writing manifest directly", zap.Error(err))
	}

	return w.writeManifest()
}

// writeManifest writes a minimal local mod manifest.
func (w *Workspace) writeManifest() error {
	f := hclwrite.NewEmptyFile()
	mod := f.Body().AppendNewBlock("mod", []string{"local"})
	mod.Body().SetAttributeValue("title", cty.StringVal("attest evidence workspace"))

	path := filepath.Join(w.dir, manifestNames[0])
	if err := os.WriteFile(path, f.Bytes(), xdg.FilePermStandard); err != nil {
		return cerr.Wrap(err, "write mod manifest")
	}
	return nil
}

// shortModName reduces a mod reference to its repository name:
// "github.com/turbot/steampipe-mod-aws-compliance" -> "steampipe-mod-aws-compliance".
func shortModName(ref string) string {
	ref = strings.TrimSuffix(ref, "/")
	if at := strings.Index(ref, "@"); at >= 0 {
		ref = ref[:at]
	}
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		ref = ref[idx+1:]
	}
	return ref
}

// IsModInstalled checks the installed mods tree for the mod. Install runs
// that died halfway leave a directory without a manifest, which does not
// count.
func (w *Workspace) IsModInstalled(ref string) bool {
	short := shortModName(ref)
	modsDir := filepath.Join(w.dir, ".powerpipe", "mods")

	entries, err := os.ReadDir(modsDir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if dirHoldsMod(filepath.Join(modsDir, entry.Name()), short) {
			return true
		}
	}
	return false
}

// dirHoldsMod recursively checks whether dir (a host dir like github.com,
// or an org dir, or the mod dir itself) contains an installed copy of the
// mod. Mod directories are named either <short> or <short>@<version>.
func dirHoldsMod(dir, short string) bool {
	base := filepath.Base(dir)
	if base == short || strings.HasPrefix(base, short+"@") {
		for _, name := range manifestNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return true
			}
		}
		return false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() && dirHoldsMod(filepath.Join(dir, entry.Name()), short) {
			return true
		}
	}
	return false
}

// InstallMod installs a benchmark mod into the workspace, streaming engine
// progress. Already-installed mods are detected from the filesystem first,
// so repeat runs skip the network entirely.
func (w *Workspace) InstallMod(rc *attest_io.RuntimeContext, ref string) error {
	logger := otelzap.Ctx(rc.Ctx)

	if w.IsModInstalled(ref) {
		logger.Info("Mod already installed", zap.String("mod", shortModName(ref)))
		return nil
	}

	logger.Info("Installing benchmark mod", zap.String("mod", ref))
	result, err := w.run.Run(rc.Ctx, execute.Options{
		Command: w.binPath,
		Args:    []string{"mod", "install", ref},
		Dir:     w.dir,
		Timeout: modInstallTimeout,
		Stream:  true,
	})
	if err != nil {
		if w.IsModInstalled(ref) {
			logger.Info("Mod present despite install error", zap.String("mod", shortModName(ref)))
			return nil
		}
		return attest_err.Wrap(attest_err.CategoryModNotFound, err,
			"install mod %s: %s", ref, summarize(result))
	}

	logger.Info("Mod installed", zap.String("mod", shortModName(ref)))
	return nil
}
