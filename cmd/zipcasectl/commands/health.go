package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/credentials"
	"github.com/zipcase/zipcase/internal/cli/output"
	"github.com/zipcase/zipcase/internal/cli/timeutil"
	"github.com/zipcase/zipcase/pkg/apiclient"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	Long: `Display the health of the connected ZipCase server.

This checks the readiness endpoint, which also probes the server's
case-state store. No authentication is required.

Examples:
  # Check the connected server
  zipcasectl health

  # Check a specific server
  zipcasectl health --server http://localhost:8080

  # Output as JSON
  zipcasectl health -o json`,
	RunE: runHealth,
}

// ServerHealth represents the server health for display.
type ServerHealth struct {
	Server  string `json:"server" yaml:"server"`
	Status  string `json:"status" yaml:"status"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Store   string `json:"store,omitempty" yaml:"store,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	// Server from flag, else from the stored context. Health needs no
	// token, so a missing login only matters when no --server is given.
	serverURL := cmdutil.Flags.ServerURL
	if serverURL == "" {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server configured. Run 'zipcasectl login --server <url>' or pass --server")
		}
		serverURL = ctx.ServerURL
	}

	health := ServerHealth{
		Server:  serverURL,
		Status:  "unreachable",
		Healthy: false,
	}

	client := apiclient.New(serverURL).WithTimeout(5 * time.Second)
	resp, err := client.Ready()
	if err != nil {
		// An API error means the server answered; it is degraded, not
		// unreachable.
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			health.Status = "unavailable"
			health.Error = apiErr.Message
		} else {
			health.Error = err.Error()
		}
	} else {
		health.Status = resp.Status
		health.Healthy = resp.Status == "ok"
		health.Version = resp.Version
		health.Uptime = resp.Uptime
		health.Store = resp.Store
		health.Error = resp.Error
	}

	// Output based on format
	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, health)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, health)
	default:
		printHealthTable(health)
	}

	return nil
}

func printHealthTable(health ServerHealth) {
	fmt.Println()
	fmt.Println("ZipCase Server Health")
	fmt.Println("=====================")
	fmt.Println()
	fmt.Printf("  Server:     %s\n", health.Server)

	if health.Healthy {
		fmt.Printf("  Status:     \033[32m● %s\033[0m\n", health.Status)
	} else if health.Status == "unreachable" {
		fmt.Printf("  Status:     \033[31m○ %s\033[0m\n", health.Status)
	} else {
		fmt.Printf("  Status:     \033[33m● %s\033[0m\n", health.Status)
	}

	if health.Version != "" {
		fmt.Printf("  Version:    %s\n", health.Version)
	}
	if health.Uptime != "" {
		fmt.Printf("  Uptime:     %s\n", timeutil.FormatUptime(health.Uptime))
	}
	if health.Store != "" {
		fmt.Printf("  Store:      %s\n", health.Store)
	}
	if health.Error != "" {
		fmt.Printf("  Error:      %s\n", health.Error)
	}
	fmt.Println()
}
