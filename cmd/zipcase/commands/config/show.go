package config

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/internal/cli/output"
	"github.com/zipcase/zipcase/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current ZipCase configuration.

Secret values (token secret, encryption passphrase, cloud credentials,
challenge service key) are redacted in the output.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  zipcase config show

  # Show as JSON
  zipcase config show --output json

  # Show specific config file
  zipcase config show --config /etc/zipcase/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	redacted := redactSecrets(cfg)

	// Parse output format
	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	// Print configuration
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, redacted)
	default:
		return output.PrintYAML(os.Stdout, redacted)
	}
}

const redactedValue = "[redacted]"

// redactSecrets returns a copy of the configuration with secret values
// masked so they never end up in terminals or pasted support output.
func redactSecrets(cfg *config.Config) *config.Config {
	c := *cfg

	mask := func(s *string) {
		if *s != "" {
			*s = redactedValue
		}
	}

	mask(&c.API.JWTSecret)
	mask(&c.Store.Dynamo.SecretAccessKey)
	mask(&c.Queues.SecretAccessKey)
	mask(&c.Secrets.KMS.SecretAccessKey)
	mask(&c.Secrets.Local.Passphrase)
	mask(&c.Waf.APIKey)
	mask(&c.Uploads.SecretAccessKey)

	return &c
}
