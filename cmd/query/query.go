// cmd/query/query.go

package query

import (
	"encoding/json"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_cli"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/config"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var withRetry bool

// QueryCmd runs a SQL statement through the query engine.
var QueryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a SQL query against the cloud provider tables",
	Args:  cobra.ExactArgs(1),
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		o, err := orchestrator.New(settings)
		if err != nil {
			return err
		}
		m := o.QueryEngine()

		run := m.Query
		if withRetry {
			run = m.QueryWithRetry
		}
		result, err := run(rc, args[0])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(result.Rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}),
}

func init() {
	QueryCmd.Flags().BoolVar(&withRetry, "retry", false, "retry while provider schemas finish loading")
}
