// pkg/workspace/workspace_test.go

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	handle func(opts execute.Options) (*execute.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, opts execute.Options) (*execute.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{opts.Command}, opts.Args...))
	f.mu.Unlock()
	if f.handle != nil {
		return f.handle(opts)
	}
	return &execute.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestWorkspace(t *testing.T, run execute.Runner) *Workspace {
	t.Helper()
	settings := config.Defaults()
	settings.WorkspaceDir = filepath.Join(t.TempDir(), "workspace")
	settings.BenchmarkTimeout = time.Minute
	return New("/opt/attest/powerpipe", settings, run)
}

func testRC(t *testing.T) *attest_io.RuntimeContext {
	t.Helper()
	return attest_io.NewContext(context.Background(), t.Name())
}

// placeMod fakes an installed mod under the workspace mods tree.
func placeMod(t *testing.T, w *Workspace, pathParts ...string) {
	t.Helper()
	dir := filepath.Join(append([]string{w.Dir(), ".powerpipe", "mods"}, pathParts...)...)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.sp"), []byte(`mod "m" {}`), 0644))
}

func TestShortModName(t *testing.T) {
	t.Parallel()

	tests := []struct{ ref, want string }{
		{"github.com/turbot/steampipe-mod-aws-compliance", "steampipe-mod-aws-compliance"},
		{"github.com/turbot/steampipe-mod-aws-compliance@v0.92", "steampipe-mod-aws-compliance"},
		{"steampipe-mod-aws-compliance", "steampipe-mod-aws-compliance"},
		{"github.com/turbot/steampipe-mod-gcp-compliance/", "steampipe-mod-gcp-compliance"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortModName(tt.ref), tt.ref)
	}
}

func TestModAlias(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "aws_compliance", modAlias("github.com/turbot/steampipe-mod-aws-compliance"))
	assert.Equal(t, "aws_compliance", modAlias("github.com/turbot/steampipe-mod-aws-compliance@v0.92"))
	assert.Equal(t, "aws_thrifty", modAlias("powerpipe-mod-aws-thrifty"))
	assert.Equal(t, "custom_checks", modAlias("custom-checks"))
}

func TestGetOrInitWritesManifestWhenModInitFails(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return nil, cerr.New("unknown command: mod")
	}}
	w := newTestWorkspace(t, run)

	require.NoError(t, w.GetOrInit(testRC(t)))
	require.True(t, w.Initialized())

	data, err := os.ReadFile(w.ManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `mod "local"`)
}

func TestGetOrInitIsIdempotent(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return nil, cerr.New("should not be called twice")
	}}
	w := newTestWorkspace(t, run)
	rc := testRC(t)

	require.NoError(t, w.GetOrInit(rc))
	callsAfterFirst := run.callCount()
	require.NoError(t, w.GetOrInit(rc))
	assert.Equal(t, callsAfterFirst, run.callCount(), "second init must not invoke the engine")
}

func TestIsModInstalled(t *testing.T) {
	t.Parallel()

	w := newTestWorkspace(t, &fakeRunner{})
	require.NoError(t, os.MkdirAll(w.Dir(), 0755))

	ref := "github.com/turbot/steampipe-mod-aws-compliance"
	assert.False(t, w.IsModInstalled(ref), "empty mods tree")

	placeMod(t, w, "github.com", "turbot", "steampipe-mod-aws-compliance@v0.92")
	assert.True(t, w.IsModInstalled(ref), "versioned mod dir must match")
	assert.False(t, w.IsModInstalled("github.com/turbot/steampipe-mod-gcp-compliance"))
}

func TestIsModInstalledIgnoresManifestlessDir(t *testing.T) {
	t.Parallel()

	w := newTestWorkspace(t, &fakeRunner{})
	// A half-finished install: directory exists, no manifest inside.
	dir := filepath.Join(w.Dir(), ".powerpipe", "mods", "github.com", "turbot", "steampipe-mod-aws-compliance")
	require.NoError(t, os.MkdirAll(dir, 0755))

	assert.False(t, w.IsModInstalled("github.com/turbot/steampipe-mod-aws-compliance"))
}

func TestInstallModSkipsWhenAlreadyInstalled(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{}
	w := newTestWorkspace(t, run)
	placeMod(t, w, "github.com", "turbot", "steampipe-mod-aws-compliance")

	require.NoError(t, w.InstallMod(testRC(t), "github.com/turbot/steampipe-mod-aws-compliance"))
	assert.Zero(t, run.callCount(), "installed mod must not trigger the engine")
}

func TestInstallModFailurePropagates(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return &execute.Result{ExitCode: 1, Stderr: "mod not found in registry"}, cerr.New("exit status 1")
	}}
	w := newTestWorkspace(t, run)

	err := w.InstallMod(testRC(t), "github.com/turbot/nope")
	require.Error(t, err)
	assert.True(t, attest_err.IsCategory(err, attest_err.CategoryModNotFound))
	assert.Contains(t, err.Error(), "mod not found")
}

func TestRunBenchmarkFailingControlsIsSuccess(t *testing.T) {
	t.Parallel()

	bigOutput := `{"group_id":"root","summary":{"status":{"alarm":12,"ok":230}},` +
		`"groups":[` + strings.Repeat(`{"group_id":"g"},`, 50) + `{"group_id":"last"}]}`
	run := &fakeRunner{handle: func(opts execute.Options) (*execute.Result, error) {
		require.Equal(t, "benchmark", opts.Args[0])
		return &execute.Result{
			ExitCode: 2,
			Stdout:   bigOutput,
			Stderr:   "Warning: control aws_cis_v400_1_12 returned alarm\n",
		}, cerr.New("exit status 2")
	}}
	w := newTestWorkspace(t, run)

	result, err := w.RunBenchmark(testRC(t), "aws_compliance.benchmark.cis_v400", "json")
	require.NoError(t, err, "non-zero exit with substantial output is findings, not failure")
	assert.Equal(t, bigOutput, result.Output)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "alarm")
}

func TestRunBenchmarkRealFailure(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return &execute.Result{ExitCode: 1, Stdout: "", Stderr: "error: workspace not found"}, cerr.New("exit status 1")
	}}
	w := newTestWorkspace(t, run)

	_, err := w.RunBenchmark(testRC(t), "aws_compliance.benchmark.cis_v400", "json")
	require.Error(t, err)
	assert.True(t, attest_err.IsCategory(err, attest_err.CategoryBenchmark))
}

func TestRunBenchmarkCleanRun(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return &execute.Result{ExitCode: 0, Stdout: `{"group_id":"root","summary":{}}`}, nil
	}}
	w := newTestWorkspace(t, run)

	result, err := w.RunBenchmark(testRC(t), "aws_compliance.benchmark.foundational_security", "json")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	assert.NotNil(t, result.Payload)
}

func TestListModBenchmarksFiltersByMod(t *testing.T) {
	t.Parallel()

	listing := `[
	  {"qualified_name": "aws_compliance.benchmark.cis_v400"},
	  {"qualified_name": "aws_compliance.benchmark.nist_800_53_rev_5"},
	  {"qualified_name": "gcp_compliance.benchmark.cis_v300"}
	]`
	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return &execute.Result{ExitCode: 0, Stdout: listing}, nil
	}}
	w := newTestWorkspace(t, run)

	names, err := w.ListModBenchmarks(testRC(t), "github.com/turbot/steampipe-mod-aws-compliance")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"aws_compliance.benchmark.cis_v400",
		"aws_compliance.benchmark.nist_800_53_rev_5",
	}, names)
}
