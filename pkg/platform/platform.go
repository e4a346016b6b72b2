// pkg/platform/platform.go

package platform

import (
	"os/exec"
	"runtime"
)

// Profile describes the host once per process. Derived from the Go runtime,
// normalized to the vocabulary the engine release archives use.
type Profile struct {
	OS        string // linux, darwin, windows
	RawArch   string // as reported by the runtime (or uname on odd hosts)
	Arch      string // normalized: amd64, arm64, arm, 386
	Supported bool
}

// Architectures the engines publish release archives for. Anything else is
// a valid-but-unsupported result, not an error.
var supportedArchs = map[string]bool{
	"amd64": true,
	"arm64": true,
	"arm":   true,
	"386":   true,
}

// Detect returns the platform profile. Pure: no side effects, no errors.
func Detect() Profile {
	return profileFor(runtime.GOOS, runtime.GOARCH)
}

func profileFor(goos, rawArch string) Profile {
	arch := NormalizeArch(rawArch)
	return Profile{
		OS:        goos,
		RawArch:   rawArch,
		Arch:      arch,
		Supported: supportedArchs[arch],
	}
}

// NormalizeArch maps native architecture identifiers to the engines'
// naming scheme. Identifiers from uname-style sources (x86_64, aarch64,
// i686) are folded in so profiles built from remote host facts normalize
// the same way.
func NormalizeArch(raw string) string {
	switch raw {
	case "amd64", "x86_64":
		return "amd64"
	case "arm64", "aarch64":
		return "arm64"
	case "arm", "armv6l", "armv7l":
		return "arm"
	case "386", "i386", "i686":
		return "386"
	default:
		return raw
	}
}

// IsUnix reports whether the host can use pkill/lsof-style process tools.
func IsUnix() bool {
	return runtime.GOOS != "windows"
}

// IsCommandAvailable checks if a command exists in the system PATH.
func IsCommandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
