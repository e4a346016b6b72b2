// pkg/engine/query.go

package engine

import (
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/parse"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// QueryResult carries the parsed output of one SQL query.
type QueryResult struct {
	SQL     string
	Rows    []map[string]interface{}
	Payload parse.Payload
}

// Query runs one SQL statement through the engine's CLI and parses the
// JSON output. The engine must be ready; callers gate on WaitUntilReady.
func (m *Manager) Query(rc *attest_io.RuntimeContext, sql string) (*QueryResult, error) {
	logger := otelzap.Ctx(rc.Ctx)
	logger.Debug("Running query", zap.String("sql", sql))

	result, err := m.run.Run(rc.Ctx, execute.Options{
		Command: m.binPath,
		Args:    []string{"query", sql, "--output", "json"},
		Timeout: m.settings.QueryTimeout,
	})
	if err != nil {
		return nil, attest_err.Wrap(attest_err.CategorySystem, err,
			"query failed: %s", summarize(result))
	}

	payload := parse.ToolOutput(result.Stdout)
	return &QueryResult{
		SQL:     sql,
		Rows:    payload.RowsOf(),
		Payload: payload,
	}, nil
}

// QueryWithRetry retries a query on failure, for tables whose schema is
// still being discovered right after plugin installation. Cloud provider
// schemas load asynchronously; the first query against a fresh plugin can
// race the loader.
func (m *Manager) QueryWithRetry(rc *attest_io.RuntimeContext, sql string) (*QueryResult, error) {
	logger := otelzap.Ctx(rc.Ctx)

	var lastErr error
	for attempt := 1; attempt <= m.settings.SchemaPollRetries; attempt++ {
		result, err := m.Query(rc, sql)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logger.Debug("Query failed, schema may still be loading",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.settings.SchemaPollRetries),
			zap.Error(err))
		if attempt < m.settings.SchemaPollRetries {
			select {
			case <-rc.Ctx.Done():
				return nil, rc.Ctx.Err()
			case <-time.After(m.settings.SchemaPollDelay):
			}
		}
	}
	return nil, lastErr
}
