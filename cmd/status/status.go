// cmd/status/status.go

package status

import (
	"encoding/json"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var jsonOutput bool

// StatusCmd reports the install state of both engines.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine installation status",
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		o, err := orchestrator.New(settings)
		if err != nil {
			return err
		}

		results := o.CheckInstallation(rc)

		if jsonOutput {
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		for _, r := range results {
			state := "not installed"
			if r.Installed {
				state = "installed at " + r.Path
				if r.Bundled {
					state += " (bundled)"
				}
			}
			fmt.Printf("%-10s %s\n", r.Tool, state)
		}
		return nil
	}),
}

func init() {
	StatusCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit JSON")
}
