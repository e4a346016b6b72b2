// cmd/benchmark/benchmark.go

package benchmark

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	"github.com/spf13/cobra"
)

var (
	provider  string
	outputDir string
)

// BenchmarkCmd lists and runs compliance benchmarks.
var BenchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "List and run compliance benchmarks",
}

func newOrchestrator() (*orchestrator.Orchestrator, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(settings)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List benchmarks available from the provider's mod",
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator()
		if err != nil {
			return err
		}
		names, err := o.ListBenchmarks(rc, orchestrator.DefaultProvider(provider))
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no benchmarks found; is the mod installed? (attest setup " + provider + ")")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}),
}

var runCmd = &cobra.Command{
	Use:   "run <benchmark>",
	Short: "Run a benchmark and write evidence reports",
	Long: `Runs the named benchmark and writes the JSON results and the markdown
report to the output directory. Failing controls are findings, not
errors: the run succeeds as long as the benchmark produced results.`,
	Args: cobra.ExactArgs(1),
	RunE: attest_cli.WrapExtended(25*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator()
		if err != nil {
			return err
		}

		result, err := o.CollectEvidence(rc, args[0])
		if err != nil {
			return err
		}

		if err := os.MkdirAll(outputDir, xdg.DirPermStandard); err != nil {
			return err
		}
		stamp := time.Now().Format("20060102-150405")
		base := filepath.Join(outputDir, fmt.Sprintf("%s-%s", sanitizeName(args[0]), stamp))

		jsonPath := base + ".json"
		if err := os.WriteFile(jsonPath, []byte(result.JSONResults), xdg.FilePermStandard); err != nil {
			return err
		}
		fmt.Println("wrote", jsonPath)

		if result.MarkdownReport != "" {
			mdPath := base + ".md"
			if err := os.WriteFile(mdPath, []byte(result.MarkdownReport), xdg.FilePermStandard); err != nil {
				return err
			}
			fmt.Println("wrote", mdPath)
		}

		for _, w := range result.Warnings {
			fmt.Fprintln(os.Stderr, "warning:", w)
		}
		return nil
	}),
}

// sanitizeName makes a benchmark identifier safe as a filename stem.
func sanitizeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func init() {
	BenchmarkCmd.PersistentFlags().StringVar(&provider, "provider", "aws", "cloud provider")
	runCmd.Flags().StringVar(&outputDir, "output-dir", xdg.DataPath("evidence"), "directory for evidence reports")
	BenchmarkCmd.AddCommand(listCmd)
	BenchmarkCmd.AddCommand(runCmd)
}
