// pkg/xdg/xdg.go

package xdg

import (
	"os"
	"path/filepath"
)

const appName = "attest"

const (
	// Permission modes (in octal)
	DirPermStandard        = 0755
	DirPermOwnerOnly       = 0700
	FilePermStandard       = 0644
	FilePermOwnerReadWrite = 0600
	FilePermExecutable     = 0755
)

func GetEnvOrDefault(envVar, fallback string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return fallback
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.Getenv("HOME")
}

// ConfigPath returns the path of a file under the attest config dir.
func ConfigPath(file string) string {
	base := GetEnvOrDefault("XDG_CONFIG_HOME", filepath.Join(home(), ".config"))
	return filepath.Join(base, appName, file)
}

// DataPath returns the path of a file under the attest data dir. Installed
// engine binaries and the benchmark workspace live here.
func DataPath(file string) string {
	base := GetEnvOrDefault("XDG_DATA_HOME", filepath.Join(home(), ".local", "share"))
	return filepath.Join(base, appName, file)
}

// StatePath returns the path of a file under the attest state dir. The
// installation record and logs live here.
func StatePath(file string) string {
	base := GetEnvOrDefault("XDG_STATE_HOME", filepath.Join(home(), ".local", "state"))
	return filepath.Join(base, appName, file)
}

// CachePath returns the path of a file under the attest cache dir.
// Downloaded archives are staged here before extraction.
func CachePath(file string) string {
	base := GetEnvOrDefault("XDG_CACHE_HOME", filepath.Join(home(), ".cache"))
	return filepath.Join(base, appName, file)
}

// EnsureDir creates the parent directory of path on demand.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), DirPermStandard)
}
