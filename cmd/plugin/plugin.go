// cmd/plugin/plugin.go

package plugin

import (
	"fmt"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/engine"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/spf13/cobra"
)

// PluginCmd manages query engine provider plugins.
var PluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage provider plugins",
}

func queryEngine() (*engine.Manager, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	o, err := orchestrator.New(settings)
	if err != nil {
		return nil, err
	}
	return o.QueryEngine(), nil
}

var installCmd = &cobra.Command{
	Use:   "install <name>",
	Short: "Install a provider plugin",
	Args:  cobra.ExactArgs(1),
	RunE: attest_cli.WrapExtended(10*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		m, err := queryEngine()
		if err != nil {
			return err
		}
		if err := m.InstallPlugin(rc, args[0]); err != nil {
			return err
		}
		fmt.Printf("plugin %s installed\n", args[0])
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Check whether a provider plugin is installed",
	Args:  cobra.ExactArgs(1),
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		m, err := queryEngine()
		if err != nil {
			return err
		}
		installed, err := m.IsPluginInstalled(rc, args[0])
		if err != nil {
			return err
		}
		if installed {
			fmt.Printf("plugin %s is installed\n", args[0])
		} else {
			fmt.Printf("plugin %s is not installed\n", args[0])
		}
		return nil
	}),
}

func init() {
	PluginCmd.AddCommand(installCmd)
	PluginCmd.AddCommand(statusCmd)
}
