// pkg/engine/manager.go
//
// Lifecycle management for the query engine's background service. The
// service hosts an embedded database on a well-known port; a previous run
// that died without cleanup leaves orphaned processes holding that port,
// so every start begins by clearing the field.

package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/platform"
	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// State describes the service lifecycle as observed by the manager.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateStuck
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStuck:
		return "stuck"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager drives one engine binary. It holds no OS process handles; all
// state lives in the engine's own service management, observed through
// its CLI.
type Manager struct {
	binPath  string
	settings config.Settings
	run      execute.Runner
	state    State
}

// NewManager builds a manager for the engine binary at binPath.
func NewManager(binPath string, settings config.Settings, run execute.Runner) *Manager {
	return &Manager{
		binPath:  binPath,
		settings: settings,
		run:      run,
		state:    StateStopped,
	}
}

// State returns the last observed lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// KillStuckProcesses force-kills anything left over from a crashed run:
// the engine itself, its embedded database workers, and whatever else is
// squatting on the service port. Every step is best effort; a step that
// finds nothing to kill fails, and that is fine. Unix only.
func (m *Manager) KillStuckProcesses(rc *attest_io.RuntimeContext) {
	logger := otelzap.Ctx(rc.Ctx)

	if !platform.IsCommandAvailable("pkill") {
		logger.Debug("pkill not available, skipping stuck process cleanup")
		return
	}

	var errs *multierror.Error

	steps := [][]string{
		{"pkill", "-9", "-f", "steampipe"},
		{"pkill", "-9", "-f", "postgres.*steampipe"},
	}
	for _, step := range steps {
		if _, err := m.run.Run(rc.Ctx, execute.Options{
			Command: step[0],
			Args:    step[1:],
			Timeout: 10 * time.Second,
		}); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	// Anything else holding the service port dies too.
	if platform.IsCommandAvailable("lsof") {
		result, err := m.run.Run(rc.Ctx, execute.Options{
			Command: "lsof",
			Args:    []string{"-ti", fmt.Sprintf(":%d", m.settings.ServicePort)},
			Timeout: 10 * time.Second,
		})
		if err == nil {
			for _, pid := range strings.Fields(result.Stdout) {
				if _, err := m.run.Run(rc.Ctx, execute.Options{
					Command: "kill",
					Args:    []string{"-9", pid},
					Timeout: 5 * time.Second,
				}); err != nil {
					errs = multierror.Append(errs, err)
				}
			}
		} else {
			errs = multierror.Append(errs, err)
		}
	}

	if errs.ErrorOrNil() != nil {
		// Expected when there was nothing to kill.
		logger.Debug("Stuck process cleanup finished with non-fatal errors",
			zap.Int("steps_failed", len(errs.Errors)))
	}

	time.Sleep(m.settings.SettleDelay)
	m.state = StateStopped
}

// Start brings the service up from a clean slate: kill leftovers, ask the
// engine to stop whatever it thinks is running, kill again, then start.
// The engine reports success before its database accepts connections, so
// Start ends with a fixed settle delay; readiness is verified separately.
func (m *Manager) Start(rc *attest_io.RuntimeContext) error {
	logger := otelzap.Ctx(rc.Ctx)
	m.state = StateStarting

	if platform.IsUnix() {
		m.KillStuckProcesses(rc)
	}

	// Clear the engine's own bookkeeping. Fails when no service is
	// registered, which is the expected case.
	if _, err := m.run.Run(rc.Ctx, execute.Options{
		Command: m.binPath,
		Args:    []string{"service", "stop", "--force"},
		Timeout: 30 * time.Second,
	}); err != nil {
		logger.Debug("service stop --force reported an error (usually no service running)", zap.Error(err))
	}
	time.Sleep(m.settings.SettleDelay)

	if platform.IsUnix() {
		m.KillStuckProcesses(rc)
	}

	logger.Info("Starting engine service", zap.String("binary", m.binPath))
	result, err := m.run.Run(rc.Ctx, execute.Options{
		Command: m.binPath,
		Args:    []string{"service", "start"},
		Timeout: 60 * time.Second,
	})
	if err != nil {
		m.state = StateStuck
		return attest_err.Wrap(attest_err.CategoryServiceNotReady, err,
			"start engine service: %s", summarize(result))
	}

	time.Sleep(m.settings.StartupDelay)
	m.state = StateReady
	return nil
}

// Stop shuts the service down.
func (m *Manager) Stop(rc *attest_io.RuntimeContext) error {
	logger := otelzap.Ctx(rc.Ctx)
	logger.Info("Stopping engine service")

	result, err := m.run.Run(rc.Ctx, execute.Options{
		Command: m.binPath,
		Args:    []string{"service", "stop"},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return attest_err.Wrap(attest_err.CategoryServiceNotReady, err,
			"stop engine service: %s", summarize(result))
	}
	m.state = StateStopped
	return nil
}

// Restart is a full stop/start cycle, including stuck process cleanup.
func (m *Manager) Restart(rc *attest_io.RuntimeContext) error {
	if err := m.Stop(rc); err != nil {
		otelzap.Ctx(rc.Ctx).Debug("Stop before restart failed, continuing", zap.Error(err))
	}
	time.Sleep(m.settings.SettleDelay)
	return m.Start(rc)
}

// IsReady probes the service with a trivial query. The service can be
// "running" per its own bookkeeping while the database is still warming
// up, so this is the only readiness signal the manager trusts.
func (m *Manager) IsReady(rc *attest_io.RuntimeContext) bool {
	_, err := m.run.Run(rc.Ctx, execute.Options{
		Command: m.binPath,
		Args:    []string{"query", "select 1", "--output", "json"},
		Timeout: m.settings.ReadyTimeout,
	})
	if err == nil {
		m.state = StateReady
		return true
	}
	return false
}

// WaitUntilReady polls IsReady with a bounded number of attempts. Running
// out of attempts is fatal: every downstream operation needs the database.
func (m *Manager) WaitUntilReady(rc *attest_io.RuntimeContext) error {
	logger := otelzap.Ctx(rc.Ctx)

	for attempt := 1; attempt <= m.settings.ReadyAttempts; attempt++ {
		if m.IsReady(rc) {
			logger.Info("Engine service is ready", zap.Int("attempt", attempt))
			return nil
		}
		logger.Debug("Engine service not ready yet",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.settings.ReadyAttempts))
		if attempt < m.settings.ReadyAttempts {
			select {
			case <-rc.Ctx.Done():
				return rc.Ctx.Err()
			case <-time.After(m.settings.ReadyDelay):
			}
		}
	}

	m.state = StateStuck
	return attest_err.New(attest_err.CategoryServiceNotReady,
		"engine service did not become ready after %d attempts", m.settings.ReadyAttempts)
}

func summarize(result *execute.Result) string {
	if result == nil {
		return "no output"
	}
	return attest_err.ExtractSummary(result.Combined(), 5)
}
