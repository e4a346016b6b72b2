// pkg/engine/plugin.go
//
// Plugin management. A plugin is the engine's adapter for one cloud
// provider; installing one downloads provider schemas, which can take
// minutes on slow links.

package engine

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	pluginInstallTimeout = 5 * time.Minute

	pluginListAttempts = 3
	pluginListDelay    = 2 * time.Second

	pluginReadyAttempts = 5
	pluginReadyDelay    = time.Second
)

// pluginListEntry is one row of `plugin list --output json`.
type pluginListEntry struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Connections []string `json:"connections"`
}

// InstallPlugin installs the provider plugin, streaming the engine's
// progress output through to the operator. Installing an already-present
// plugin is not an error.
func (m *Manager) InstallPlugin(rc *attest_io.RuntimeContext, name string) error {
	logger := otelzap.Ctx(rc.Ctx)
	logger.Info("Installing plugin", zap.String("plugin", name))

	result, err := m.run.Run(rc.Ctx, execute.Options{
		Command: m.binPath,
		Args:    []string{"plugin", "install", name},
		Timeout: pluginInstallTimeout,
		Stream:  true,
	})
	if err != nil {
		// The engine exits non-zero for "already installed" on some
		// versions. The listing is ground truth.
		if result != nil && strings.Contains(strings.ToLower(result.Combined()), "already installed") {
			logger.Info("Plugin already installed", zap.String("plugin", name))
			return nil
		}
		if installed, checkErr := m.pluginInListing(rc, name); checkErr == nil && installed {
			logger.Info("Plugin present despite install error", zap.String("plugin", name))
			return nil
		}
		return attest_err.Wrap(attest_err.CategoryPluginCheck, err,
			"install plugin %s: %s", name, summarize(result))
	}

	logger.Info("Plugin installed", zap.String("plugin", name))
	return nil
}

// IsPluginInstalled checks the engine's plugin listing for name. The
// listing needs a ready service, so readiness is probed first with a
// short bounded poll.
func (m *Manager) IsPluginInstalled(rc *attest_io.RuntimeContext, name string) (bool, error) {
	ready := false
	for attempt := 0; attempt < pluginReadyAttempts; attempt++ {
		if m.IsReady(rc) {
			ready = true
			break
		}
		select {
		case <-rc.Ctx.Done():
			return false, rc.Ctx.Err()
		case <-time.After(pluginReadyDelay):
		}
	}
	if !ready {
		return false, attest_err.New(attest_err.CategoryServiceNotReady,
			"cannot check plugin %s: service is not ready", name)
	}

	return m.pluginInListing(rc, name)
}

// pluginInListing queries `plugin list` and matches name exactly or as the
// short form of a fully qualified plugin path (hub.steampipe.io/plugins/
// turbot/aws@latest matches "aws").
func (m *Manager) pluginInListing(rc *attest_io.RuntimeContext, name string) (bool, error) {
	logger := otelzap.Ctx(rc.Ctx)

	var lastErr error
	for attempt := 1; attempt <= pluginListAttempts; attempt++ {
		result, err := m.run.Run(rc.Ctx, execute.Options{
			Command: m.binPath,
			Args:    []string{"plugin", "list", "--output", "json"},
			Timeout: 30 * time.Second,
		})
		if err != nil {
			lastErr = err
			logger.Debug("plugin list failed", zap.Int("attempt", attempt), zap.Error(err))
			if attempt < pluginListAttempts {
				select {
				case <-rc.Ctx.Done():
					return false, rc.Ctx.Err()
				case <-time.After(pluginListDelay):
				}
			}
			continue
		}

		var entries []pluginListEntry
		if jsonErr := json.Unmarshal([]byte(strings.TrimSpace(result.Stdout)), &entries); jsonErr != nil {
			// Some engine versions wrap the list in an object.
			var wrapped struct {
				Installed []pluginListEntry `json:"installed"`
			}
			if wrapErr := json.Unmarshal([]byte(strings.TrimSpace(result.Stdout)), &wrapped); wrapErr != nil {
				lastErr = attest_err.Wrap(attest_err.CategoryPluginCheck, jsonErr, "parse plugin list")
				continue
			}
			entries = wrapped.Installed
		}

		for _, entry := range entries {
			if pluginMatches(entry.Name, name) {
				return true, nil
			}
		}
		return false, nil
	}

	return false, attest_err.Wrap(attest_err.CategoryPluginCheck, lastErr,
		"plugin list failed after %d attempts", pluginListAttempts)
}

func pluginMatches(listed, want string) bool {
	if listed == want {
		return true
	}
	// Strip any version suffix, then match the trailing path segment.
	base := listed
	if at := strings.Index(base, "@"); at >= 0 {
		base = base[:at]
	}
	if base == want {
		return true
	}
	if idx := strings.LastIndex(base, "/"); idx >= 0 && base[idx+1:] == want {
		return true
	}
	return false
}
