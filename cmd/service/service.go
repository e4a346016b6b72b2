// cmd/service/service.go

package service

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

// ServiceCmd manages the query engine's background service.
var ServiceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the query engine service",
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

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the query service",
	RunE: attest_cli.WrapExtended(5*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		m, err := queryEngine()
		if err != nil {
			return err
		}
		if err := m.Start(rc); err != nil {
			return err
		}
		if err := m.WaitUntilReady(rc); err != nil {
			return err
		}
		fmt.Println("query service is ready")
		return nil
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the query service",
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		m, err := queryEngine()
		if err != nil {
			return err
		}
		if err := m.Stop(rc); err != nil {
			return err
		}
		fmt.Println("query service stopped")
		return nil
	}),
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the query service",
	RunE: attest_cli.WrapExtended(5*time.Minute, func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		m, err := queryEngine()
		if err != nil {
			return err
		}
		if err := m.Restart(rc); err != nil {
			return err
		}
		if err := m.WaitUntilReady(rc); err != nil {
			return err
		}
		fmt.Println("query service is ready")
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe query service readiness",
	RunE: attest_cli.Wrap(func(rc *attest_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		m, err := queryEngine()
		if err != nil {
			return err
		}
		if m.IsReady(rc) {
			fmt.Println("query service is ready")
		} else {
			fmt.Println("query service is not ready")
		}
		return nil
	}),
}

func init() {
	ServiceCmd.AddCommand(startCmd)
	ServiceCmd.AddCommand(stopCmd)
	ServiceCmd.AddCommand(restartCmd)
	ServiceCmd.AddCommand(statusCmd)
}
