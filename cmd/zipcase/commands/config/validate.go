package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the ZipCase configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  zipcase config validate

  # Validate specific config file
  zipcase config validate --config /etc/zipcase/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check JWT secret is configured
	if cfg.API.JWTSecret == "" {
		warnings = append(warnings, "JWT secret not configured - API authentication will fail")
	}

	// Check portal URL is set
	if cfg.Portal.BaseURL == "" {
		warnings = append(warnings, "portal.base_url not set - portal searches will fail")
	}

	// Check challenge solver is reachable when portals challenge logins
	if cfg.Waf.Endpoint == "" {
		warnings = append(warnings, "waf.endpoint not set - challenged portal logins cannot be solved")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Store type:      %s\n", cfg.Store.Type)
	fmt.Printf("  Queues type:     %s\n", cfg.Queues.Type)
	fmt.Printf("  Secrets provider: %s\n", cfg.Secrets.Provider)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
