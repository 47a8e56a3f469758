package commands

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/credentials"
	"github.com/zipcase/zipcase/internal/cli/prompt"
	"github.com/zipcase/zipcase/pkg/apiclient"
)

var (
	loginServer string
	loginToken  string
	loginUser   string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a bearer token for a ZipCase server",
	Long: `Store a bearer token for a ZipCase server.

ZipCase uses bearer tokens minted by the identity frontend (or by
'zipcasectl token mint' when you hold the shared secret). Login verifies
the token against the server and saves it for subsequent commands.

On first login, you must specify the server URL. Subsequent logins will
use the stored server URL unless overridden.

Examples:
  # First login to a server (prompts for the token)
  zipcasectl login --server http://localhost:8080

  # Login with token on command line (less secure)
  zipcasectl login --server http://localhost:8080 --token eyJhbGci...

  # Re-login to stored server
  zipcasectl login`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL (required on first login)")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "Bearer token (prompted if not provided)")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "User ID (defaults to the token's subject)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	// Load credential store
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	// Determine server URL
	serverURLStr := loginServer
	if serverURLStr == "" {
		// Try to get from current context
		ctx, err := store.GetCurrentContext()
		if err != nil || ctx == nil || ctx.ServerURL == "" {
			return fmt.Errorf("no server URL specified and no saved context found\n\n" +
				"Specify server URL:\n" +
				"  zipcasectl login --server http://localhost:8080")
		}
		serverURLStr = ctx.ServerURL
	}

	// Validate server URL
	parsedURL, err := url.Parse(serverURLStr)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "http"
		serverURLStr = parsedURL.String()
	}

	// Get token (prompt if not provided; hidden input, it is a credential)
	token := loginToken
	if token == "" {
		token, err = prompt.Password("Token")
		if err != nil {
			return cmdutil.HandleAbort(err)
		}
	}

	// Read the subject and expiry out of the token. The signature is the
	// server's to check; we only need the claims for display and for
	// local expiry warnings.
	userID, expiresAt, err := inspectToken(token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if loginUser != "" {
		userID = loginUser
	}

	// Verify the token against the server before saving it. The webhook
	// settings endpoint requires a valid token and works for every user.
	client := apiclient.New(serverURLStr).WithToken(token)

	fmt.Printf("Verifying token with %s...\n", serverURLStr)
	if _, err := client.GetWebhookSettings(); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuthError() {
			return fmt.Errorf("server rejected the token: %w", err)
		}
		return fmt.Errorf("failed to reach server: %w", err)
	}

	// Determine context name
	contextName := store.GetCurrentContextName()
	if contextName == "" {
		contextName = credentials.GenerateContextName(serverURLStr)
	}

	// Save credentials
	ctx := &credentials.Context{
		ServerURL: serverURLStr,
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}

	if err := store.SetContext(contextName, ctx); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	if err := store.UseContext(contextName); err != nil {
		return fmt.Errorf("failed to set current context: %w", err)
	}

	if userID != "" {
		fmt.Printf("Logged in successfully as %s\n", userID)
	} else {
		fmt.Println("Logged in successfully")
	}
	fmt.Printf("Context: %s\n", contextName)
	if !expiresAt.IsZero() {
		fmt.Printf("Token expires: %s\n", expiresAt.Local().Format(time.RFC1123))
	}
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())

	return nil
}

// inspectToken extracts the subject and expiry claims without verifying
// the signature.
func inspectToken(tokenString string) (userID string, expiresAt time.Time, err error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", time.Time{}, err
	}

	userID, _ = token.Claims.GetSubject()
	if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return userID, expiresAt, nil
}
