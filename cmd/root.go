/* cmd/root.go */

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	// Subcommands
	"github.com/CodeMonkeyCybersecurity/attest/cmd/benchmark"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/configure"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/install"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/mod"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/plugin"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/query"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/service"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/setup"
	"github.com/CodeMonkeyCybersecurity/attest/cmd/status"
)

// RootCmd is the base command for attest.
var RootCmd = &cobra.Command{
	Use:   "attest",
	Short: "Attest collects cloud compliance evidence",
	Long: `Attest installs and drives the query and benchmark engines to collect
compliance evidence from cloud provider accounts: it manages the engine
binaries, the query service, provider plugins, benchmark mods, and runs
benchmarks to produce machine-readable and human-readable reports.`,

	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		fmt.Println("No subcommand provided. Try `attest help`.")
		return cmd.Help()
	}),
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	// Accept underscore spellings of flags (--output_dir == --output-dir).
	RootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	RootCmd.AddCommand(status.StatusCmd)
	RootCmd.AddCommand(install.InstallCmd)
	RootCmd.AddCommand(service.ServiceCmd)
	RootCmd.AddCommand(plugin.PluginCmd)
	RootCmd.AddCommand(mod.ModCmd)
	RootCmd.AddCommand(benchmark.BenchmarkCmd)
	RootCmd.AddCommand(query.QueryCmd)
	RootCmd.AddCommand(configure.ConfigureCmd)
	RootCmd.AddCommand(setup.SetupCmd)
}

// Execute runs the root command.
func Execute() {
	RegisterCommands()
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
