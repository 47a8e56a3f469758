package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
)

var statusCmd = &cobra.Command{
	Use:   "status <case-number>...",
	Short: "Poll case fetch status",
	Long: `Poll the current state of cases without queueing anything.

Case numbers the server has never seen are absent from the result.
Use 'zipcasectl search' to queue new cases.

Examples:
  # Poll two cases
  zipcasectl status 22CR123456-789 19CRS004321

  # Comma-separated works too
  zipcasectl status 22CR123456-789,19CRS004321

  # As JSON
  zipcasectl status 22CR123456-789 -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCaseStatus,
}

func runCaseStatus(cmd *cobra.Command, args []string) error {
	var caseNumbers []string
	for _, arg := range args {
		caseNumbers = append(caseNumbers, cmdutil.ParseCommaSeparatedList(arg)...)
	}

	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	results, err := client.Status(caseNumbers)
	if err != nil {
		return fmt.Errorf("status poll failed: %w", err)
	}

	return cmdutil.PrintOutput(os.Stdout, results, len(results) == 0, "None of the requested cases are known to the server.", CaseResultList(results))
}
