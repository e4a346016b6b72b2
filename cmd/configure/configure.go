// cmd/configure/configure.go

package configure

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/connection"
	"github.com/spf13/cobra"
)

var subscription string

// ConfigureCmd writes the connection config for a provider.
var ConfigureCmd = &cobra.Command{
	Use:   "configure <provider>",
	Short: "Write the query engine connection for a provider",
	Long: `Writes the provider's connection file into the query engine's config
directory, replacing any existing file. Credentials are never written:
the plugin resolves them from the provider's own credential chain.`,
	Args: cobra.ExactArgs(1),
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		c := connection.New(settings.ConnectionDir)
		if err := c.Configure(rc, args[0], subscription); err != nil {
			return err
		}
		fmt.Println("wrote", c.Path(args[0]))
		fmt.Println("restart the query service to load it: attest service restart")
		return nil
	}),
}

func init() {
	ConfigureCmd.Flags().StringVar(&subscription, "subscription", "", "subscription/account id for providers that need one")
}
