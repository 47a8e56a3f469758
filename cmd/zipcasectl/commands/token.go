package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/credentials"
	"github.com/zipcase/zipcase/internal/cli/output"
	"github.com/zipcase/zipcase/pkg/api/auth"
	"github.com/zipcase/zipcase/pkg/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Bearer token utilities",
	Long: `Mint and inspect ZipCase bearer tokens.

Tokens are HS256 JWTs signed with the server's shared secret. In
production they come from the identity frontend; mint exists for
development and operations work where you hold the same secret.

Examples:
  # Mint a 24h token for a user
  zipcasectl token mint --user user-1

  # Mint with an explicit TTL and save it into the current context
  zipcasectl token mint --user user-1 --ttl 1h --save

  # Inspect a token's claims
  zipcasectl token inspect eyJhbGci...`,
}

var (
	mintUser   string
	mintSecret string
	mintTTL    time.Duration
	mintSave   bool
)

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a bearer token",
	Long: fmt.Sprintf(`Mint a signed bearer token for a user.

The signing secret comes from --secret or the %s
environment variable. It must match the server's api.jwt_secret or the
server will reject the token. Prefer the environment variable; flags
show up in shell history.

Examples:
  # Mint a token (secret from environment)
  export %s=...
  zipcasectl token mint --user user-1

  # Mint and store it for subsequent commands
  zipcasectl token mint --user user-1 --save`, config.EnvJWTSecret, config.EnvJWTSecret),
	RunE: runTokenMint,
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Show a token's claims",
	Long: `Decode a bearer token and display its claims.

The signature is not checked; this only reads the claims.

Examples:
  # Inspect a token
  zipcasectl token inspect eyJhbGci...

  # As JSON
  zipcasectl token inspect eyJhbGci... -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenInspect,
}

func init() {
	tokenMintCmd.Flags().StringVarP(&mintUser, "user", "u", "", "User ID the token is for (required)")
	tokenMintCmd.Flags().StringVar(&mintSecret, "secret", "", "Signing secret (defaults to "+config.EnvJWTSecret+")")
	tokenMintCmd.Flags().DurationVar(&mintTTL, "ttl", 0, "Token lifetime (default 24h)")
	tokenMintCmd.Flags().BoolVar(&mintSave, "save", false, "Store the token in the current context")
	_ = tokenMintCmd.MarkFlagRequired("user")

	tokenCmd.AddCommand(tokenMintCmd)
	tokenCmd.AddCommand(tokenInspectCmd)
}

// MintedToken is the mint output for JSON/YAML rendering.
type MintedToken struct {
	Token     string    `json:"token" yaml:"token"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

func runTokenMint(cmd *cobra.Command, args []string) error {
	secret := mintSecret
	if secret == "" {
		secret = os.Getenv(config.EnvJWTSecret)
	}
	if secret == "" {
		return fmt.Errorf("no signing secret. Pass --secret or set %s", config.EnvJWTSecret)
	}

	svc, err := auth.NewTokenService(secret, mintTTL)
	if err != nil {
		return err
	}

	token, err := svc.Issue(mintUser)
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}

	ttl := mintTTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenDuration
	}
	expiresAt := time.Now().Add(ttl)

	if mintSave {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		if store.GetCurrentContextName() == "" {
			return fmt.Errorf("no current context to save into. Run 'zipcasectl login --server <url>' first")
		}
		if err := store.UpdateToken(token, expiresAt); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
	}

	minted := MintedToken{Token: token, UserID: mintUser, ExpiresAt: expiresAt}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return cmdutil.PrintResource(os.Stdout, minted, nil)
	}

	fmt.Printf("Minted token for %s\n", mintUser)
	fmt.Printf("Expires: %s\n", expiresAt.Local().Format(time.RFC1123))
	if mintSave {
		fmt.Println("Saved to current context.")
	}
	fmt.Println()
	fmt.Println(token)
	return nil
}

// TokenInfo represents decoded token claims for output.
type TokenInfo struct {
	Subject   string `json:"subject" yaml:"subject"`
	Issuer    string `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	IssuedAt  string `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired   bool   `json:"expired" yaml:"expired"`
}

// Headers implements TableRenderer.
func (ti TokenInfo) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (ti TokenInfo) Rows() [][]string {
	return [][]string{
		{"Subject", cmdutil.EmptyOr(ti.Subject, "-")},
		{"Issuer", cmdutil.EmptyOr(ti.Issuer, "-")},
		{"Issued", cmdutil.EmptyOr(ti.IssuedAt, "-")},
		{"Expires", cmdutil.EmptyOr(ti.ExpiresAt, "-")},
		{"Expired", cmdutil.BoolToYesNo(ti.Expired)},
	}
}

func runTokenInspect(cmd *cobra.Command, args []string) error {
	token, _, err := jwt.NewParser().ParseUnverified(args[0], jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	info := TokenInfo{}
	info.Subject, _ = token.Claims.GetSubject()
	info.Issuer, _ = token.Claims.GetIssuer()
	if iat, err := token.Claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Local().Format(time.RFC1123)
	}
	if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Local().Format(time.RFC1123)
		info.Expired = exp.Before(time.Now())
	}

	return cmdutil.PrintResource(os.Stdout, info, info)
}
