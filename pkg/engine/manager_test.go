// pkg/engine/manager_test.go

package engine

import (
	"context"
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

// fakeRunner records every invocation and answers through a programmable
// handler, so tests can script engine behavior without real processes.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	handle func(opts execute.Options) (*execute.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, opts execute.Options) (*execute.Result, error) {
	f.mu.Lock()
	call := append([]string{opts.Command}, opts.Args...)
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.handle != nil {
		return f.handle(opts)
	}
	return &execute.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) callStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

func fastSettings() config.Settings {
	s := config.Defaults()
	s.SettleDelay = time.Millisecond
	s.StartupDelay = time.Millisecond
	s.ReadyTimeout = 50 * time.Millisecond
	s.ReadyAttempts = 3
	s.ReadyDelay = time.Millisecond
	s.SchemaPollRetries = 3
	s.SchemaPollDelay = time.Millisecond
	return s
}

func newTestManager(run execute.Runner) *Manager {
	return NewManager("/opt/attest/steampipe", fastSettings(), run)
}

func testRC(t *testing.T) *attest_io.RuntimeContext {
	t.Helper()
	return attest_io.NewContext(context.Background(), t.Name())
}

func isQuery(opts execute.Options, sql string) bool {
	return len(opts.Args) >= 2 && opts.Args[0] == "query" && opts.Args[1] == sql
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "stuck", StateStuck.String())
}

func TestIsReady(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(opts execute.Options) (*execute.Result, error) {
		if isQuery(opts, "select 1") {
			return &execute.Result{ExitCode: 0, Stdout: `[{"?column?":1}]`}, nil
		}
		return nil, cerr.New("unexpected call")
	}}
	m := newTestManager(run)

	assert.True(t, m.IsReady(testRC(t)))
	assert.Equal(t, StateReady, m.State())
}

func TestWaitUntilReadyExhaustsAttempts(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		return nil, cerr.New("connection refused")
	}}
	m := newTestManager(run)

	err := m.WaitUntilReady(testRC(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not become ready")
	assert.True(t, attest_err.IsCategory(err, attest_err.CategoryServiceNotReady))
	assert.Equal(t, StateStuck, m.State())
	assert.Len(t, run.callStrings(), 3)
}

func TestWaitUntilReadySucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		attempts++
		if attempts < 3 {
			return nil, cerr.New("still warming up")
		}
		return &execute.Result{ExitCode: 0, Stdout: `[{"?column?":1}]`}, nil
	}}
	m := newTestManager(run)

	require.NoError(t, m.WaitUntilReady(testRC(t)))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, StateReady, m.State())
}

func TestStartStopsBeforeStarting(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{}
	m := newTestManager(run)

	require.NoError(t, m.Start(testRC(t)))
	assert.Equal(t, StateReady, m.State())

	calls := run.callStrings()
	stopIdx, startIdx := -1, -1
	for i, call := range calls {
		if strings.Contains(call, "service stop --force") {
			stopIdx = i
		}
		if strings.HasSuffix(call, "service start") {
			startIdx = i
		}
	}
	require.GreaterOrEqual(t, stopIdx, 0, "must force-stop before starting")
	require.GreaterOrEqual(t, startIdx, 0)
	assert.Less(t, stopIdx, startIdx)
}

func TestStartFailurePropagates(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(opts execute.Options) (*execute.Result, error) {
		if len(opts.Args) >= 2 && opts.Args[0] == "service" && opts.Args[1] == "start" {
			return &execute.Result{ExitCode: 1, Stderr: "error: port 9193 in use"}, cerr.New("exit status 1")
		}
		return &execute.Result{ExitCode: 0}, nil
	}}
	m := newTestManager(run)

	err := m.Start(testRC(t))
	require.Error(t, err)
	assert.True(t, attest_err.IsCategory(err, attest_err.CategoryServiceNotReady))
	assert.Contains(t, err.Error(), "port 9193")
	assert.Equal(t, StateStuck, m.State())
}

func TestQueryParsesRows(t *testing.T) {
	t.Parallel()

	run := &fakeRunner{handle: func(opts execute.Options) (*execute.Result, error) {
		require.Equal(t, []string{"query", "select name from aws_s3_bucket", "--output", "json"}, opts.Args)
		return &execute.Result{ExitCode: 0, Stdout: `[{"name":"logs"},{"name":"backups"}]`}, nil
	}}
	m := newTestManager(run)

	result, err := m.Query(testRC(t), "select name from aws_s3_bucket")
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "logs", result.Rows[0]["name"])
}

func TestQueryWithRetryRecoversFromSchemaLoad(t *testing.T) {
	t.Parallel()

	attempts := 0
	run := &fakeRunner{handle: func(execute.Options) (*execute.Result, error) {
		attempts++
		if attempts == 1 {
			return &execute.Result{ExitCode: 1, Stderr: "relation does not exist"}, cerr.New("exit status 1")
		}
		return &execute.Result{ExitCode: 0, Stdout: `[{"count":7}]`}, nil
	}}
	m := newTestManager(run)

	result, err := m.QueryWithRetry(testRC(t), "select count(*) from aws_iam_user")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.Len(t, result.Rows, 1)
}
