package namesearch

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/output"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

var getCmd = &cobra.Command{
	Use:   "get <search-id>",
	Short: "Poll a name search",
	Long: `Poll a previously submitted name search.

Shows every case the search has discovered so far and its fetch state.
The search is complete once the portal search itself has finished;
individual cases keep settling after that.

Examples:
  # Poll a search
  zipcasectl namesearch get 1b4e28ba-2fa1-11d2-883f-b9a761bde3fb

  # As JSON
  zipcasectl namesearch get 1b4e28ba-2fa1-11d2-883f-b9a761bde3fb -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

// ResultList renders discovered cases sorted by case number.
type ResultList map[string]zipcase.SearchResult

// Headers implements TableRenderer.
func (rl ResultList) Headers() []string {
	return []string{"CASE NUMBER", "STATUS", "CASE NAME", "COURT"}
}

// Rows implements TableRenderer.
func (rl ResultList) Rows() [][]string {
	numbers := make([]string, 0, len(rl))
	for n := range rl {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	rows := make([][]string, 0, len(numbers))
	for _, n := range numbers {
		r := rl[n]

		name, court := "-", "-"
		if r.CaseSummary != nil {
			name = cmdutil.EmptyOr(r.CaseSummary.CaseName, "-")
			court = cmdutil.EmptyOr(r.CaseSummary.Court, "-")
		}

		rows = append(rows, []string{n, string(r.ZipCase.FetchStatus.Status), name, court})
	}
	return rows
}

func runGet(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	resp, err := client.GetNameSearch(args[0])
	if err != nil {
		return fmt.Errorf("failed to get name search: %w", err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return cmdutil.PrintResource(os.Stdout, resp, nil)
	}

	fmt.Printf("Search ID: %s\n", resp.SearchID)
	fmt.Printf("Complete:  %s\n", cmdutil.BoolToYesNo(resp.Success))
	if resp.Error != "" {
		fmt.Printf("Error:     %s\n", resp.Error)
	}
	fmt.Println()

	if len(resp.Results) == 0 {
		fmt.Println("No cases discovered yet.")
		return nil
	}
	return output.PrintTable(os.Stdout, ResultList(resp.Results))
}
