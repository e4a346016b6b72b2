// pkg/installer/tools.go

package installer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/platform"
)

// Tool identifies one of the external engines attest manages.
type Tool struct {
	// Name is the binary name, e.g. "steampipe".
	Name string
	// Repo is the GitHub repository releases are published under.
	Repo string
	// ZipOnUnix is set for tools that ship zip archives on every
	// platform; the rest use tar.gz on unix and zip on windows.
	ZipOnUnix bool
}

// The two engines attest drives. Steampipe exposes cloud resources as SQL
// tables, Powerpipe runs compliance benchmarks against it.
var (
	Steampipe = Tool{Name: "steampipe", Repo: "turbot/steampipe", ZipOnUnix: true}
	Powerpipe = Tool{Name: "powerpipe", Repo: "turbot/powerpipe"}
)

// Tools lists every managed tool in install order.
var Tools = []Tool{Steampipe, Powerpipe}

// ToolByName resolves a tool from its binary name.
func ToolByName(name string) (Tool, bool) {
	for _, t := range Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// BinaryName returns the platform filename of the tool's binary.
func (t Tool) BinaryName(goos string) string {
	if goos == "windows" {
		return t.Name + ".exe"
	}
	return t.Name
}

// ArchiveName returns the release asset filename for the given platform.
// Steampipe publishes steampipe_<os>_<arch>.zip everywhere; Powerpipe
// publishes powerpipe.<os>.<arch>.tar.gz on unix and .zip on windows.
func (t Tool) ArchiveName(p platform.Profile) string {
	if t.ZipOnUnix {
		return fmt.Sprintf("%s_%s_%s.zip", t.Name, p.OS, p.Arch)
	}
	ext := "tar.gz"
	if p.OS == "windows" {
		ext = "zip"
	}
	return fmt.Sprintf("%s.%s.%s.%s", t.Name, p.OS, p.Arch, ext)
}

// DownloadURL returns the release download URL for the given platform.
func (t Tool) DownloadURL(p platform.Profile) string {
	return fmt.Sprintf("https://github.com/%s/releases/latest/download/%s", t.Repo, t.ArchiveName(p))
}

// Location resolves where a tool's binary may live. Resolution order is
// bundled first, fallback second; the first existing path wins.
type Location struct {
	Tool         Tool
	BundledPath  string
	FallbackPath string
	InstallDir   string
}

// LocationFor builds the location for a tool given the install dir.
// The bundled path sits next to the attest executable, for packaged
// distributions that ship the engines.
func LocationFor(tool Tool, goos, installDir string) Location {
	bin := tool.BinaryName(goos)

	bundled := ""
	if exe, err := os.Executable(); err == nil {
		bundled = filepath.Join(filepath.Dir(exe), bin)
	}

	return Location{
		Tool:         tool,
		BundledPath:  bundled,
		FallbackPath: filepath.Join(installDir, bin),
		InstallDir:   installDir,
	}
}

// Resolve returns the first existing path, preferring the bundled binary.
func (l Location) Resolve() (path string, bundled, ok bool) {
	if l.BundledPath != "" {
		if _, err := os.Stat(l.BundledPath); err == nil {
			return l.BundledPath, true, true
		}
	}
	if _, err := os.Stat(l.FallbackPath); err == nil {
		return l.FallbackPath, false, true
	}
	return "", false, false
}
