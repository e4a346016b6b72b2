// cmd/install/install.go

package install

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/installer"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var withSymlinks bool

// InstallCmd installs one or both engine binaries.
var InstallCmd = &cobra.Command{
	Use:   "install [tool]",
	Short: "Install the query and benchmark engines",
	Long: `Downloads and installs the engine binaries for this platform. With no
argument both engines are installed; pass "steampipe" or "powerpipe" to
install one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: attest_cli.WrapExtended(15*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		o, err := orchestrator.New(settings)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			tool, ok := installer.ToolByName(args[0])
			if !ok {
				return attest_err.NewExpectedError(
					fmt.Errorf("unknown tool %q (expected steampipe or powerpipe)", args[0]))
			}
			if err := o.Installer().Install(rc, tool); err != nil {
				return err
			}
			fmt.Printf("%s installed\n", tool.Name)
		} else {
			failures := 0
			for _, outcome := range o.AutoInstall(rc) {
				if outcome.Installed {
					fmt.Printf("%-10s installed\n", outcome.Tool)
				} else {
					failures++
					fmt.Printf("%-10s FAILED: %s\n", outcome.Tool, outcome.Error)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d engines failed to install", failures, len(installer.Tools))
			}
		}

		if withSymlinks {
			o.CreateSymlinks(rc)
		}
		return nil
	}),
}

func init() {
	InstallCmd.Flags().BoolVar(&withSymlinks, "symlinks", false, "link installed binaries into ~/.local/bin")
}
