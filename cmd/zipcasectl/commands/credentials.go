package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/prompt"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage portal credentials",
	Long: `Manage the court portal credentials the server searches with.

The server logs into the portal on your behalf; it needs your portal
username and password. Credentials are verified with a live login
before being stored, and are encrypted at rest.

Examples:
  # Set credentials (prompts for both)
  zipcasectl credentials set

  # Set with flags (less secure; shows up in shell history)
  zipcasectl credentials set -u someone@example.com -p secret`,
}

var (
	credUsername string
	credPassword string
)

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set portal credentials",
	Long: `Verify and store portal credentials.

Verification performs a live portal login, which can take a couple of
minutes when a bot challenge has to be solved. A rejected login leaves
any previously stored credentials untouched.

Examples:
  # Prompt for username and password
  zipcasectl credentials set`,
	RunE: runCredentialsSet,
}

func init() {
	credentialsSetCmd.Flags().StringVarP(&credUsername, "username", "u", "", "Portal username")
	credentialsSetCmd.Flags().StringVarP(&credPassword, "password", "p", "", "Portal password")

	credentialsCmd.AddCommand(credentialsSetCmd)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	// Get username (prompt if not provided)
	username := credUsername
	if username == "" {
		username, err = prompt.InputRequired("Portal username")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	// Get password (prompt if not provided). No length rules here; the
	// portal owns the password policy.
	password := credPassword
	if password == "" {
		password, err = prompt.Password("Portal password")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	fmt.Println("Verifying credentials with the portal (this can take a minute)...")
	resp, err := client.SaveCredentials(username, password)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	return cmdutil.PrintResourceWithSuccess(os.Stdout, resp,
		fmt.Sprintf("Portal credentials for '%s' verified and saved", resp.Username))
}
