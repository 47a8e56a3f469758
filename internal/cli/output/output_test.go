package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "uppercase accepted", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "surrounding whitespace", input: "  table  ", want: FormatTable},
		{name: "unknown format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type fakeListing struct{}

func (fakeListing) Headers() []string { return []string{"Case", "Status"} }
func (fakeListing) Rows() [][]string {
	return [][]string{
		{"22CR123456-789", "complete"},
		{"23CR000001-100", "queued"},
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, fakeListing{}))

	out := buf.String()
	assert.Contains(t, out, "CASE")
	assert.Contains(t, out, "22CR123456-789")
	assert.Contains(t, out, "queued")
}

func TestPrintJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]int{"queued": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got["queued"])
}

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintYAML(&buf, map[string]string{"status": "found"}))
	assert.Contains(t, buf.String(), "status: found")
}

func TestPrinterColor(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatTable, true).Success("done")
	assert.Contains(t, buf.String(), "\033[32m")
	assert.Contains(t, buf.String(), "done")

	buf.Reset()
	NewPrinter(&buf, FormatTable, false).Error("broken")
	assert.NotContains(t, buf.String(), "\033[")
	assert.Contains(t, buf.String(), "broken")
}
