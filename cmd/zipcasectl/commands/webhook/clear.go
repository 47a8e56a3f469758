package webhook

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the webhook registration",
	Long: `Remove the webhook registration.

The server stops sending completion callbacks for your cases.

Examples:
  # Remove the registration
  zipcasectl webhook clear`,
	RunE: runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	if _, err := client.SaveWebhookSettings(zipcase.WebhookSettings{}); err != nil {
		return fmt.Errorf("failed to clear webhook settings: %w", err)
	}

	cmdutil.PrintSuccess("Webhook registration cleared")
	return nil
}
