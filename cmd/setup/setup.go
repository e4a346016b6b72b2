// cmd/setup/setup.go

package setup

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var (
	modRef       string
	subscription string
)

// SetupCmd runs the full prerequisite sequence for a provider.
var SetupCmd = &cobra.Command{
	Use:   "setup <provider>",
	Short: "Install and configure everything needed to collect evidence",
	Long: `Runs the full setup sequence for a provider: installs the engines,
starts the query service, writes the connection config, installs the
provider plugin and the compliance benchmark mod. Safe to re-run; steps
already satisfied are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: attest_cli.WrapExtended(30*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		o, err := orchestrator.New(settings)
		if err != nil {
			return err
		}

		pc := orchestrator.DefaultProvider(args[0])
		if modRef != "" {
			pc.ModRef = modRef
		}
		pc.Subscription = subscription

		err = o.EnsurePrerequisites(rc, pc, func(e orchestrator.ProgressEvent) {
			if e.Err != nil {
				fmt.Printf("[%d/%d] %s: %v\n", e.StepIndex+1, e.StepCount, e.Message, e.Err)
				return
			}
			fmt.Printf("[%d/%d] %s\n", e.StepIndex+1, e.StepCount, e.Message)
		})
		if err != nil {
			return err
		}

		fmt.Printf("setup complete; run `attest benchmark list --provider %s` to see benchmarks\n", args[0])
		return nil
	}),
}

func init() {
	SetupCmd.Flags().StringVar(&modRef, "mod", "", "override the benchmark mod reference")
	SetupCmd.Flags().StringVar(&subscription, "subscription", "", "subscription/account id for providers that need one")
}
