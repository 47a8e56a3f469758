// Package webhook implements webhook settings commands for zipcasectl.
package webhook

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for webhook settings.
var Cmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage webhook settings",
	Long: `Manage the webhook the server calls when case fetches complete.

Registering a URL opts you into completion callbacks; the optional
shared secret is echoed back on deliveries so your receiver can
authenticate them.

Examples:
  # Show current registration
  zipcasectl webhook get

  # Register a webhook
  zipcasectl webhook set https://example.com/hooks/zipcase --secret s3cret

  # Remove the registration
  zipcasectl webhook clear`,
}

func init() {
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(clearCmd)
}
