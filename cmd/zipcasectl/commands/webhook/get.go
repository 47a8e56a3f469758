package webhook

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Show webhook settings",
	Long: `Show the current webhook registration.

The shared secret is masked in table output; use -o json to see it.

Examples:
  # Show registration
  zipcasectl webhook get

  # As JSON (includes the shared secret)
  zipcasectl webhook get -o json`,
	RunE: runGet,
}

// SettingsView renders webhook settings with the secret masked.
type SettingsView zipcase.WebhookSettings

// Headers implements TableRenderer.
func (sv SettingsView) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (sv SettingsView) Rows() [][]string {
	secret := "-"
	if sv.SharedSecret != "" {
		secret = "(set)"
	}
	return [][]string{
		{"Webhook URL", cmdutil.EmptyOr(sv.WebhookURL, "-")},
		{"Shared Secret", secret},
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	settings, err := client.GetWebhookSettings()
	if err != nil {
		return fmt.Errorf("failed to get webhook settings: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, settings, settings.WebhookURL == "",
		"No webhook registered. Use 'zipcasectl webhook set <url>' to register one.", SettingsView(*settings))
}
