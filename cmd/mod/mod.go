// cmd/mod/mod.go

package mod

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/workspace"
	"github.com/spf13/cobra"
)

// ModCmd manages benchmark mods in the workspace.
var ModCmd = &cobra.Command{
	Use:   "mod",
	Short: "Manage benchmark mods",
}

func benchmarkWorkspace() (*workspace.Workspace, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	o, err := orchestrator.New(settings)
	if err != nil {
		return nil, err
	}
	return o.Workspace(), nil
}

var installCmd = &cobra.Command{
	Use:   "install <ref>",
	Short: "Install a benchmark mod into the workspace",
	Long: `Installs a benchmark mod, e.g.
github.com/turbot/steampipe-mod-aws-compliance. The workspace is
initialized first if needed.`,
	Args: cobra.ExactArgs(1),
	RunE: attest_cli.WrapExtended(10*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		ws, err := benchmarkWorkspace()
		if err != nil {
			return err
		}
		if err := ws.GetOrInit(rc); err != nil {
			return err
		}
		if err := ws.InstallMod(rc, args[0]); err != nil {
			return err
		}
		fmt.Printf("mod %s installed\n", args[0])
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status <ref>",
	Short: "Check whether a benchmark mod is installed",
	Args:  cobra.ExactArgs(1),
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		ws, err := benchmarkWorkspace()
		if err != nil {
			return err
		}
		if ws.IsModInstalled(args[0]) {
			fmt.Printf("mod %s is installed\n", args[0])
		} else {
			fmt.Printf("mod %s is not installed\n", args[0])
		}
		return nil
	}),
}

func init() {
	ModCmd.AddCommand(installCmd)
	ModCmd.AddCommand(statusCmd)
}
