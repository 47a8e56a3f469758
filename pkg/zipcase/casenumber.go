package zipcase

import (
	"regexp"
	"strings"
)

// Canonical case numbers look like 22CR714844-590: two-digit year,
// two-letter case type, six-digit sequence, dash, three-digit county
// code.
//
// Free-form input may instead carry the Lexis-Nexis layout, which puts
// the county first and spells the year out in full:
//
//	<county:3><century:2><year:2><type:2>?<separator>?<sequence:6>
//
// e.g. "5902022CR 714844". Those substrings are rewritten to the
// canonical layout before extraction; a missing case type defaults to
// CR.
var (
	caseNumberRe = regexp.MustCompile(`\d{2}[A-Za-z]{2}\d{6}-\d{3}`)

	lexisNexisRe = regexp.MustCompile(`(\d{3})\d{2}(\d{2})([A-Za-z]{2})?(?:\sS?)?(\d{6})`)
)

// ParseCaseNumbers extracts every case number from free-form text and
// returns them in canonical uppercase form, in order of appearance.
// Duplicates are preserved; callers that need a set (the pipeline
// coordinator does) de-duplicate themselves.
//
// Text with no recognizable case numbers yields an empty slice, never an
// error: unparseable input is the caller's "nothing to do" signal.
// Canonical case numbers pass through unchanged, so the function is
// idempotent over its own output.
func ParseCaseNumbers(input string) []string {
	normalized := lexisNexisRe.ReplaceAllStringFunc(input, func(m string) string {
		sub := lexisNexisRe.FindStringSubmatch(m)
		county, year, caseType, sequence := sub[1], sub[2], sub[3], sub[4]
		if caseType == "" {
			caseType = "CR"
		}
		return year + caseType + sequence + "-" + county
	})

	matches := caseNumberRe.FindAllString(normalized, -1)
	results := make([]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, strings.ToUpper(m))
	}
	return results
}

// NormalizeCaseNumber uppercases and trims a single case number. Storage
// keys, queue group IDs and dedup IDs are always composed from the
// normalized form so that mixed-case input maps to one record.
func NormalizeCaseNumber(caseNumber string) string {
	return strings.ToUpper(strings.TrimSpace(caseNumber))
}
