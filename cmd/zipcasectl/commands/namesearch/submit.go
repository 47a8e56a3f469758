package namesearch

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/output"
	"github.com/zipcase/zipcase/pkg/apiclient"
)

var (
	submitDOB          string
	submitSoundsLike   bool
	submitCriminalOnly bool
	submitUserAgent    string
)

var submitCmd = &cobra.Command{
	Use:   "submit <name>",
	Short: "Submit a name search",
	Long: `Submit a party-name search.

Names are matched in "Last, First" form; anything else is normalized
before searching. The search runs in the background and the returned
search ID is the handle for polling.

Examples:
  # Search for a party
  zipcasectl namesearch submit "Smith, John"

  # Restrict to criminal cases with a date of birth (YYYY-MM-DD)
  zipcasectl namesearch submit "Smith, John" --dob 1985-02-20 --criminal-only`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitDOB, "dob", "", "Date of birth filter (YYYY-MM-DD)")
	submitCmd.Flags().BoolVar(&submitSoundsLike, "sounds-like", false, "Include phonetic matches")
	submitCmd.Flags().BoolVar(&submitCriminalOnly, "criminal-only", false, "Restrict to criminal cases")
	submitCmd.Flags().StringVar(&submitUserAgent, "user-agent", "", "User-Agent the server presents to the portal")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	req := apiclient.NameSearchRequest{
		Name:         strings.Join(args, " "),
		DateOfBirth:  submitDOB,
		SoundsLike:   submitSoundsLike,
		CriminalOnly: submitCriminalOnly,
		UserAgent:    submitUserAgent,
	}

	resp, err := client.NameSearch(req)
	if err != nil {
		return fmt.Errorf("name search failed: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return cmdutil.PrintResource(os.Stdout, resp, nil)
	}

	fmt.Println("Name search submitted")
	fmt.Printf("  Search ID: %s\n", resp.SearchID)
	fmt.Println()
	fmt.Println("Poll with:")
	fmt.Printf("  zipcasectl namesearch get %s\n", resp.SearchID)
	return nil
}
