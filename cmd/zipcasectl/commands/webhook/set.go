package webhook

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

var setSecret string

var setCmd = &cobra.Command{
	Use:   "set <url>",
	Short: "Register a webhook",
	Long: `Register a webhook URL for case completion callbacks.

The URL must be http or https. Setting a new URL replaces any previous
registration.

Examples:
  # Register a webhook
  zipcasectl webhook set https://example.com/hooks/zipcase

  # With a shared secret for delivery authentication
  zipcasectl webhook set https://example.com/hooks/zipcase --secret s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

func init() {
	setCmd.Flags().StringVar(&setSecret, "secret", "", "Shared secret echoed back on deliveries")
}

func runSet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	saved, err := client.SaveWebhookSettings(zipcase.WebhookSettings{
		WebhookURL:   args[0],
		SharedSecret: setSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to save webhook settings: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, saved,
		fmt.Sprintf("Webhook registered: %s", saved.WebhookURL))
}
