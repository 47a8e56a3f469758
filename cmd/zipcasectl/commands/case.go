package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zipcase/zipcase/cmd/zipcasectl/cmdutil"
	"github.com/zipcase/zipcase/internal/cli/output"
	"github.com/zipcase/zipcase/pkg/zipcase"
)

var caseCmd = &cobra.Command{
	Use:   "case <case-number>",
	Short: "Get a single case",
	Long: `Get the details of a single case.

If the case still needs fetching it is queued, and the command reports
the in-flight state. Re-run it (or use 'zipcasectl status') until the
fetch settles.

Examples:
  # Get case details as table
  zipcasectl case 22CR123456-789

  # Get as JSON
  zipcasectl case 22CR123456-789 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runCase,
}

// CaseDetails is the single-case output: the per-case state plus whether
// the fetch is still in flight.
type CaseDetails struct {
	zipcase.SearchResult
	Pending bool `json:"pending" yaml:"pending"`
}

// Headers implements TableRenderer.
func (cd CaseDetails) Headers() []string {
	return []string{"FIELD", "VALUE"}
}

// Rows implements TableRenderer.
func (cd CaseDetails) Rows() [][]string {
	c := cd.ZipCase

	rows := [][]string{
		{"Case Number", c.CaseNumber},
		{"Status", string(c.FetchStatus.Status)},
	}
	if c.FetchStatus.Message != "" {
		rows = append(rows, []string{"Message", c.FetchStatus.Message})
	}
	if c.FetchStatus.TryCount > 0 {
		rows = append(rows, []string{"Attempt", strconv.Itoa(c.FetchStatus.TryCount)})
	}
	if c.CaseID != "" {
		rows = append(rows, []string{"Case ID", c.CaseID})
	}
	if !c.LastUpdated.IsZero() {
		rows = append(rows, []string{"Updated", c.LastUpdated.Local().Format("2006-01-02 15:04:05")})
	}

	if cd.CaseSummary == nil {
		return rows
	}
	s := cd.CaseSummary

	rows = append(rows,
		[]string{"Case Name", cmdutil.EmptyOr(s.CaseName, "-")},
		[]string{"Court", cmdutil.EmptyOr(s.Court, "-")},
	)
	if s.ArrestOrCitationDate != "" {
		label := cmdutil.EmptyOr(s.ArrestOrCitationType, "Arrest/Citation")
		rows = append(rows, []string{label, s.ArrestOrCitationDate})
	}

	rows = append(rows, []string{"Charges", strconv.Itoa(len(s.Charges))})
	for i, ch := range s.Charges {
		desc := ch.Description
		if ch.Statute != "" {
			desc = fmt.Sprintf("%s (%s)", desc, ch.Statute)
		}
		rows = append(rows, []string{fmt.Sprintf("  %d.", i+1), desc})

		for _, d := range ch.Dispositions {
			dd := d.Description
			if dd == "" {
				dd = d.Code
			}
			if d.Date != "" {
				dd = fmt.Sprintf("%s (%s)", dd, d.Date)
			}
			rows = append(rows, []string{"", "disposed: " + dd})
		}
	}

	return rows
}

func runCase(cmd *cobra.Command, args []string) error {
	client, err := cmdutil.GetAuthenticatedClient()
	if err != nil {
		return err
	}

	status, err := client.GetCase(args[0])
	if err != nil {
		return fmt.Errorf("failed to get case: %w", err)
	}

	details := CaseDetails{SearchResult: status.Result, Pending: status.Pending}

	if err := cmdutil.PrintResource(os.Stdout, details, details); err != nil {
		return err
	}

	// Hint at the polling loop while the fetch is in flight.
	if format, err := cmdutil.GetOutputFormatParsed(); err == nil && format == output.FormatTable && details.Pending {
		fmt.Println()
		fmt.Println("Fetch in progress. Poll again with 'zipcasectl case " + details.ZipCase.CaseNumber + "'.")
	}

	return nil
}
