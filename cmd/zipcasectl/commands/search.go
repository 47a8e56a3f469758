package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

var searchUserAgent string

var searchCmd = &cobra.Command{
	Use:   "search <text>...",
	Short: "Search for court cases",
	Long: `Submit free-form search text to the server.

Every recognizable case number in the text is queued for fetching and
the current per-case state comes back immediately. Fetching continues
in the background; poll with 'zipcasectl status' or 'zipcasectl case'.

Examples:
  # Queue two cases
  zipcasectl search "22CR123456-789 19CRS004321"

  # Case numbers can be pasted straight from a docket
  zipcasectl search 22CR123456-789

  # As JSON
  zipcasectl search 22CR123456-789 -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchUserAgent, "user-agent", "", "User-Agent the server presents to the portal")
}

// CaseResultList renders per-case results sorted by case number.
type CaseResultList map[string]zipcase.SearchResult

// Headers implements TableRenderer.
func (rl CaseResultList) Headers() []string {
	return []string{"CASE NUMBER", "STATUS", "CASE NAME", "COURT", "UPDATED"}
}

// Rows implements TableRenderer.
func (rl CaseResultList) Rows() [][]string {
	numbers := make([]string, 0, len(rl))
	for n := range rl {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	rows := make([][]string, 0, len(numbers))
	for _, n := range numbers {
		r := rl[n]

		status := string(r.ZipCase.FetchStatus.Status)
		if r.ZipCase.FetchStatus.Message != "" {
			status = fmt.Sprintf("%s (%s)", status, r.ZipCase.FetchStatus.Message)
		}

		name, court := "-", "-"
		if r.CaseSummary != nil {
			name = cmdutil.EmptyOr(r.CaseSummary.CaseName, "-")
			court = cmdutil.EmptyOr(r.CaseSummary.Court, "-")
		}

		updated := "-"
		if !r.ZipCase.LastUpdated.IsZero() {
			updated = r.ZipCase.LastUpdated.Local().Format("2006-01-02 15:04")
		}

		rows = append(rows, []string{n, status, name, court, updated})
	}
	return rows
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	results, err := client.Search(strings.Join(args, " "), searchUserAgent)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, results, len(results) == 0, "No case numbers recognized.", CaseResultList(results))
}
