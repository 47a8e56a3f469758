// Package namesearch implements party-name search commands for zipcasectl.
package namesearch

import (
	"github.com/spf13/cobra"
)

// Cmd is the parent command for name searches.
var Cmd = &cobra.Command{
	Use:   "namesearch",
	Short: "Search cases by party name",
	Long: `Search for cases by party name.

A name search runs on the portal in the background: submit returns a
search ID immediately, and every case the search discovers is queued
for fetching. Poll the search ID to watch cases appear and settle.

Examples:
  # Submit a search
  zipcasectl namesearch submit "Smith, John"

  # Narrow by date of birth, include phonetic matches
  zipcasectl namesearch submit "Smith, John" --dob 1985-02-20 --sounds-like

  # Poll it
  zipcasectl namesearch get <search-id>`,
}

func init() {
	Cmd.AddCommand(submitCmd)
	Cmd.AddCommand(getCmd)
}
