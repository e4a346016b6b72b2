// pkg/orchestrator/orchestrator.go
//
// Top-level coordination of the evidence collection pipeline: install the
// engines, bring the query service up, configure the provider connection,
// install the plugin and benchmark mod, run benchmarks. All cross-engine
// sequencing lives here; the per-engine packages stay single-purpose.

package orchestrator

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/connection"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/engine"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/httpclient"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/installer"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/platform"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/workspace"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// ProviderContext names the cloud provider being collected against and the
// engine artifacts that serve it.
type ProviderContext struct {
	Provider     string // connection + plugin name, e.g. "aws"
	Subscription string // account/subscription selector, empty for most providers
	ModRef       string // benchmark mod reference
}

// DefaultProvider returns the stock context for a known provider name.
func DefaultProvider(name string) ProviderContext {
	return ProviderContext{
		Provider: name,
		ModRef:   fmt.Sprintf("github.com/turbot/steampipe-mod-%s-compliance", name),
	}
}

// InstallOutcome reports one tool's result from AutoInstall.
type InstallOutcome struct {
	Tool      string `json:"tool"`
	Installed bool   `json:"installed"`
	Error     string `json:"error,omitempty"`
}

// ProgressEvent is one step of EnsurePrerequisites, for CLI progress
// rendering.
type ProgressEvent struct {
	StepIndex int
	StepCount int
	Message   string
	Err       error
}

// ProgressFunc receives progress events. May be nil.
type ProgressFunc func(ProgressEvent)

// EvidenceResult is the outcome of one benchmark evidence run. RunID ties
// the JSON results and markdown report of a single run together in audit
// trails.
type EvidenceResult struct {
	RunID          string   `json:"run_id"`
	Benchmark      string   `json:"benchmark"`
	Success        bool     `json:"success"`
	JSONResults    string   `json:"json_results,omitempty"`
	MarkdownReport string   `json:"markdown_report,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Orchestrator owns the full pipeline. The mutex serializes lifecycle
// operations: concurrent service starts or installs corrupt the engines'
// on-disk state.
type Orchestrator struct {
	mu sync.Mutex

	profile     platform.Profile
	settings    config.Settings
	run         execute.Runner
	installer   *installer.Installer
	connections *connection.Configurator
}

// New assembles an orchestrator with the production wiring.
func New(settings config.Settings) (*Orchestrator, error) {
	return NewWith(platform.Detect(), settings, httpclient.DownloadClient(), execute.ExecRunner{})
}

// NewWith takes the collaborators explicitly, for tests.
func NewWith(profile platform.Profile, settings config.Settings, client *http.Client, run execute.Runner) (*Orchestrator, error) {
	inst, err := installer.New(profile, settings, client, run)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		profile:     profile,
		settings:    settings,
		run:         run,
		installer:   inst,
		connections: connection.New(settings.ConnectionDir),
	}, nil
}

// enginePath resolves a tool's binary path, falling back to the install
// dir location when nothing exists yet (the caller is about to install).
func (o *Orchestrator) enginePath(tool installer.Tool) string {
	loc := o.installer.Location(tool)
	if path, _, ok := loc.Resolve(); ok {
		return path
	}
	return loc.FallbackPath
}

// queryEngine returns the manager for the query engine binary.
func (o *Orchestrator) queryEngine() *engine.Manager {
	return engine.NewManager(o.enginePath(installer.Steampipe), o.settings, o.run)
}

// benchmarkWorkspace returns the workspace driven by the reporting engine.
func (o *Orchestrator) benchmarkWorkspace() *workspace.Workspace {
	return workspace.New(o.enginePath(installer.Powerpipe), o.settings, o.run)
}

// CheckInstallation reports each tool's install state without side effects
// beyond refreshing the installation record.
func (o *Orchestrator) CheckInstallation(rc *attest_io.RuntimeContext) []installer.CheckResult {
	results := make([]installer.CheckResult, 0, len(installer.Tools))
	for _, tool := range installer.Tools {
		results = append(results, o.installer.CheckInstalled(rc, tool))
	}
	return results
}

// AutoInstall installs every missing tool. A failure on one tool is
// recorded in its outcome and the sequence continues; callers decide
// whether partial installation is acceptable.
func (o *Orchestrator) AutoInstall(rc *attest_io.RuntimeContext) []InstallOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoInstallLocked(rc)
}

func (o *Orchestrator) autoInstallLocked(rc *attest_io.RuntimeContext) []InstallOutcome {
	logger := otelzap.Ctx(rc.Ctx)

	outcomes := make([]InstallOutcome, 0, len(installer.Tools))
	for _, tool := range installer.Tools {
		if _, _, ok := o.installer.Location(tool).Resolve(); ok {
			logger.Debug("Tool already installed", zap.String("tool", tool.Name))
			outcomes = append(outcomes, InstallOutcome{Tool: tool.Name, Installed: true})
			continue
		}
		if err := o.installer.Install(rc, tool); err != nil {
			logger.Error("Tool installation failed",
				zap.String("tool", tool.Name), zap.Error(err))
			outcomes = append(outcomes, InstallOutcome{Tool: tool.Name, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, InstallOutcome{Tool: tool.Name, Installed: true})
	}
	return outcomes
}

// CreateSymlinks links installed engine binaries into ~/.local/bin.
func (o *Orchestrator) CreateSymlinks(rc *attest_io.RuntimeContext) {
	o.installer.CreateSymlinks(rc)
}

// prerequisite steps, in order.
const (
	stepInstallTools = iota
	stepStartService
	stepWaitReady
	stepConfigureConnection
	stepRestartService
	stepInstallPlugin
	stepConfirmSchema
	stepInitWorkspace
	stepInstallMod
	stepCount
)

// EnsurePrerequisites drives the full setup sequence for a provider,
// emitting a progress event per step. The first fatal step error aborts
// the sequence.
func (o *Orchestrator) EnsurePrerequisites(rc *attest_io.RuntimeContext, pc ProviderContext, progress ProgressFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	emit := func(step int, msg string, err error) {
		if progress != nil {
			progress(ProgressEvent{StepIndex: step, StepCount: stepCount, Message: msg, Err: err})
		}
	}

	emit(stepInstallTools, "Installing engines", nil)
	for _, outcome := range o.autoInstallLocked(rc) {
		if !outcome.Installed {
			err := attest_err.New(attest_err.CategorySystem,
				"engine %s is not installed: %s", outcome.Tool, outcome.Error)
			emit(stepInstallTools, "Engine installation failed", err)
			return err
		}
	}

	sp := o.queryEngine()

	emit(stepStartService, "Starting query service", nil)
	if err := sp.Start(rc); err != nil {
		emit(stepStartService, "Query service failed to start", err)
		return err
	}

	emit(stepWaitReady, "Waiting for query service", nil)
	if err := sp.WaitUntilReady(rc); err != nil {
		emit(stepWaitReady, "Query service never became ready", err)
		return err
	}

	emit(stepConfigureConnection, fmt.Sprintf("Configuring %s connection", pc.Provider), nil)
	if err := o.connections.Configure(rc, pc.Provider, pc.Subscription); err != nil {
		emit(stepConfigureConnection, "Connection configuration failed", err)
		return err
	}

	// The engine only reads connection config at startup.
	emit(stepRestartService, "Restarting query service to load connection", nil)
	if err := sp.Restart(rc); err != nil {
		emit(stepRestartService, "Query service restart failed", err)
		return err
	}
	if err := sp.WaitUntilReady(rc); err != nil {
		emit(stepRestartService, "Query service never became ready after restart", err)
		return err
	}

	emit(stepInstallPlugin, fmt.Sprintf("Installing %s plugin", pc.Provider), nil)
	if installed, err := sp.IsPluginInstalled(rc, pc.Provider); err != nil || !installed {
		if err := sp.InstallPlugin(rc, pc.Provider); err != nil {
			emit(stepInstallPlugin, "Plugin installation failed", err)
			return err
		}
	}

	// Provider schemas load asynchronously after plugin install; a visible
	// table is the signal setup actually worked.
	emit(stepConfirmSchema, fmt.Sprintf("Waiting for %s schema", pc.Provider), nil)
	schemaSQL := fmt.Sprintf(
		"select table_name from information_schema.tables where table_schema = '%s' limit 1",
		pc.Provider)
	if _, err := sp.QueryWithRetry(rc, schemaSQL); err != nil {
		emit(stepConfirmSchema, "Provider schema never appeared", err)
		return err
	}

	ws := o.benchmarkWorkspace()

	emit(stepInitWorkspace, "Preparing benchmark workspace", nil)
	if err := ws.GetOrInit(rc); err != nil {
		emit(stepInitWorkspace, "Workspace initialization failed", err)
		return err
	}

	emit(stepInstallMod, fmt.Sprintf("Installing benchmark mod %s", pc.ModRef), nil)
	if err := ws.InstallMod(rc, pc.ModRef); err != nil {
		emit(stepInstallMod, "Mod installation failed", err)
		return err
	}

	return nil
}

// CollectEvidence runs one benchmark and returns both machine-readable and
// human-readable renderings. The benchmark executes twice, once per output
// format; the engines provide no single-run dual-format mode.
func (o *Orchestrator) CollectEvidence(rc *attest_io.RuntimeContext, benchmark string) (*EvidenceResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	logger := otelzap.Ctx(rc.Ctx)
	ws := o.benchmarkWorkspace()

	jsonRun, err := ws.RunBenchmark(rc, benchmark, "json")
	if err != nil {
		return nil, err
	}

	result := &EvidenceResult{
		RunID:       uuid.New().String(),
		Benchmark:   benchmark,
		Success:     true,
		JSONResults: jsonRun.Output,
		Warnings:    jsonRun.Warnings,
	}

	mdRun, err := ws.RunBenchmark(rc, benchmark, "md")
	if err != nil {
		// The JSON evidence is already in hand; a failed report render
		// downgrades to a warning.
		logger.Warn("Markdown report generation failed", zap.Error(err))
		result.Warnings = append(result.Warnings, "markdown report generation failed: "+err.Error())
	} else {
		result.MarkdownReport = mdRun.Output
		result.Warnings = append(result.Warnings, mdRun.Warnings...)
	}

	return result, nil
}

// ListBenchmarks lists the benchmarks available from the provider's mod.
func (o *Orchestrator) ListBenchmarks(rc *attest_io.RuntimeContext, pc ProviderContext) ([]string, error) {
	return o.benchmarkWorkspace().ListModBenchmarks(rc, pc.ModRef)
}

// QueryEngine exposes the query engine manager for service subcommands.
func (o *Orchestrator) QueryEngine() *engine.Manager {
	return o.queryEngine()
}

// Workspace exposes the benchmark workspace for mod subcommands.
func (o *Orchestrator) Workspace() *workspace.Workspace {
	return o.benchmarkWorkspace()
}

// Installer exposes the installer for status rendering.
func (o *Orchestrator) Installer() *installer.Installer {
	return o.installer
}
