// pkg/workspace/benchmark.go
//
// Benchmark execution. Compliance benchmarks are expected to find
// failures, and the engine signals "controls failed" with a non-zero
// exit, so exit codes alone cannot distinguish a broken run from a
// successful run with findings. Substantial output is the success signal.

package workspace

import (
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/parse"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	// benchmarkMaxOutput sizes the capture buffer for benchmark runs. A
	// full compliance benchmark against a large account emits tens of
	// megabytes of JSON.
	benchmarkMaxOutput = 64 * 1024 * 1024

	// minUsefulOutput is the threshold below which a non-zero exit is a
	// real failure rather than "controls failed". Real results are always
	// far larger than this.
	minUsefulOutput = 100
)

// RunResult is the outcome of one benchmark run.
type RunResult struct {
	Benchmark string
	Output    string
	Payload   parse.Payload
	Warnings  []string
}

// RunBenchmark executes one benchmark and returns its output in the given
// format ("json" or "md"). A non-zero exit with substantial output is a
// success with warnings: failing controls are findings, not errors.
func (w *Workspace) RunBenchmark(rc *attest_io.RuntimeContext, benchmark, format string) (*RunResult, error) {
	logger := otelzap.Ctx(rc.Ctx)
	logger.Info("Running benchmark",
		zap.String("benchmark", benchmark),
		zap.String("format", format))

	result, err := w.run.Run(rc.Ctx, execute.Options{
		Command:        w.binPath,
		Args:           []string{"benchmark", "run", benchmark, "--output", format},
		Dir:            w.dir,
		Timeout:        w.settings.BenchmarkTimeout,
		MaxOutputBytes: benchmarkMaxOutput,
	})

	if err != nil {
		if attest_err.IsTimeout(err) {
			return nil, attest_err.Wrap(attest_err.CategoryTimeout, err,
				"benchmark %s exceeded %s", benchmark, w.settings.BenchmarkTimeout)
		}
		if result != nil && len(strings.TrimSpace(result.Stdout)) > minUsefulOutput {
			warnings := splitWarnings(result.Stderr)
			logger.Warn("Benchmark exited non-zero but produced results (failing controls)",
				zap.String("benchmark", benchmark),
				zap.Int("exit_code", result.ExitCode),
				zap.Int("warnings", len(warnings)))
			return w.buildResult(benchmark, format, result, warnings), nil
		}
		return nil, attest_err.Wrap(attest_err.CategoryBenchmark, err,
			"benchmark %s failed: %s", benchmark, summarize(result))
	}

	return w.buildResult(benchmark, format, result, nil), nil
}

func (w *Workspace) buildResult(benchmark, format string, result *execute.Result, warnings []string) *RunResult {
	out := &RunResult{
		Benchmark: benchmark,
		Output:    result.Stdout,
		Warnings:  warnings,
	}
	if format == "json" {
		out.Payload = parse.ToolOutput(result.Stdout)
	}
	return out
}

// splitWarnings turns stderr into individual warning lines, dropping
// blanks and progress spinner noise.
func splitWarnings(stderr string) []string {
	var warnings []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		warnings = append(warnings, line)
	}
	return warnings
}

// ListModBenchmarks lists the benchmarks an installed mod provides, by
// running `benchmark list` and filtering on the mod's short name. Hyphens
// in mod names become underscores in benchmark identifiers.
func (w *Workspace) ListModBenchmarks(rc *attest_io.RuntimeContext, modRef string) ([]string, error) {
	logger := otelzap.Ctx(rc.Ctx)

	result, err := w.run.Run(rc.Ctx, execute.Options{
		Command: w.binPath,
		Args:    []string{"benchmark", "list", "--output", "json"},
		Dir:     w.dir,
		Timeout: 60 * time.Second,
	})
	if err != nil {
		return nil, attest_err.Wrap(attest_err.CategoryBenchmark, err,
			"list benchmarks: %s", summarize(result))
	}

	names := benchmarkNames(parse.ToolOutput(result.Stdout))
	needle := modAlias(modRef)

	var matched []string
	for _, name := range names {
		if strings.Contains(name, needle) || needle == "" {
			matched = append(matched, name)
		}
	}
	logger.Debug("Listed benchmarks",
		zap.Int("total", len(names)),
		zap.Int("matched", len(matched)),
		zap.String("mod", modRef))
	return matched, nil
}

// modAlias derives the identifier a mod's benchmarks are qualified with:
// the repo name minus its engine prefix, hyphens folded to underscores.
// "steampipe-mod-aws-compliance" yields "aws_compliance".
func modAlias(ref string) string {
	short := shortModName(ref)
	for _, prefix := range []string{"steampipe-mod-", "powerpipe-mod-"} {
		short = strings.TrimPrefix(short, prefix)
	}
	return strings.ReplaceAll(short, "-", "_")
}

// benchmarkNames pulls qualified benchmark names out of whatever shape the
// engine's list output takes.
func benchmarkNames(payload parse.Payload) []string {
	var names []string
	for _, row := range payload.RowsOf() {
		for _, key := range []string{"qualified_name", "name"} {
			if v, ok := row[key].(string); ok && v != "" {
				names = append(names, v)
				break
			}
		}
	}
	return names
}

func summarize(result *execute.Result) string {
	if result == nil {
		return "no output"
	}
	return attest_err.ExtractSummary(result.Combined(), 5)
}
