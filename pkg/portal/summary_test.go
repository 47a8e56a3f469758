package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caseDetailPayload = `{
  "CaseSummaryHeader": {
    "Style": "STATE VERSUS JANE DOE",
    "Court": "Wake County District Court",
    "CaseType": "Infraction"
  },
  "Charges": [
    {
      "ChargeOffense": {
        "ChargeOffenseDescription": "SPEEDING",
        "Statute": "20-141(B)",
        "Degree": "IFR"
      },
      "FiledDate": "01/20/2024",
      "Dispositions": [
        {
          "DispositionDate": "03/01/2024",
          "DispositionTypeCode": "GU",
          "DispositionTypeDescription": "Guilty - responsible"
        }
      ]
    },
    {
      "ChargeOffense": {
        "ChargeOffenseDescription": "EXPIRED REGISTRATION",
        "Statute": "20-111(2)"
      },
      "FiledDate": "2024-01-20"
    }
  ],
  "Events": [
    {"EventType": "HRG", "EventDate": "2024-03-01"},
    {"EventType": "LPSD", "EventDate": "2024-02-01"},
    {"EventType": "CIT", "EventDate": "2024-01-15"}
  ]
}`

func newDetailServer(t *testing.T, status int, payload string) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cases/{caseID}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "enc-abc", r.PathValue("caseID"))
		w.WriteHeader(status)
		fmt.Fprint(w, payload)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return NewClient(Config{BaseURL: srv.URL, CaseURL: srv.URL + "/api/cases"})
}

func TestFetchCaseSummary(t *testing.T) {
	client := newDetailServer(t, http.StatusOK, caseDetailPayload)

	summary, err := client.FetchCaseSummary(context.Background(), NewJar(), "test-agent", "enc-abc")
	require.NoError(t, err)
	require.NoError(t, summary.Validate())

	assert.Equal(t, "STATE VERSUS JANE DOE", summary.CaseName)
	assert.Equal(t, "Wake County District Court", summary.Court)

	require.Len(t, summary.Charges, 2)
	speeding := summary.Charges[0]
	assert.Equal(t, "SPEEDING", speeding.Description)
	assert.Equal(t, "20-141(B)", speeding.Statute)
	assert.Equal(t, "IFR", speeding.Degree)
	assert.Equal(t, "2024-01-20", speeding.FileDate, "US-form dates normalize to ISO")
	require.Len(t, speeding.Dispositions, 1)
	assert.Equal(t, "2024-03-01", speeding.Dispositions[0].Date)
	assert.Equal(t, "GU", speeding.Dispositions[0].Code)

	registration := summary.Charges[1]
	assert.Empty(t, registration.Dispositions)
	assert.NotNil(t, registration.Dispositions, "dispositions stay list-typed")

	// The citation predates the arrest, so it wins.
	assert.Equal(t, "2024-01-15", summary.ArrestOrCitationDate)
	assert.Equal(t, "Citation", summary.ArrestOrCitationType)
}

func TestFetchCaseSummaryNoRelevantEvents(t *testing.T) {
	payload := `{
  "CaseSummaryHeader": {"Style": "STATE VERSUS JOHN SMITH", "Court": "Durham County Superior Court"},
  "Events": [{"EventType": "HRG", "EventDate": "2024-03-01"}]
}`
	client := newDetailServer(t, http.StatusOK, payload)

	summary, err := client.FetchCaseSummary(context.Background(), NewJar(), "", "enc-abc")
	require.NoError(t, err)
	require.NoError(t, summary.Validate(), "zero charges must still validate as a list")

	assert.Empty(t, summary.ArrestOrCitationDate)
	assert.Empty(t, summary.ArrestOrCitationType)
	assert.NotNil(t, summary.Charges)
	assert.Empty(t, summary.Charges)
}

func TestFetchCaseSummaryArrestOnly(t *testing.T) {
	payload := `{
  "CaseSummaryHeader": {"Style": "S", "Court": "C"},
  "Events": [{"EventType": "LPSD", "EventDate": "02/01/2024"}]
}`
	client := newDetailServer(t, http.StatusOK, payload)

	summary, err := client.FetchCaseSummary(context.Background(), NewJar(), "", "enc-abc")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", summary.ArrestOrCitationDate)
	assert.Equal(t, "Arrest", summary.ArrestOrCitationType)
}

func TestFetchCaseSummaryServerError(t *testing.T) {
	client := newDetailServer(t, http.StatusInternalServerError, "")

	_, err := client.FetchCaseSummary(context.Background(), NewJar(), "", "enc-abc")
	assert.Error(t, err)
}

func TestFetchCaseSummaryNotJSON(t *testing.T) {
	client := newDetailServer(t, http.StatusOK, "<html>surprise sign-in page</html>")

	_, err := client.FetchCaseSummary(context.Background(), NewJar(), "", "enc-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestFetchCaseSummaryRequiresEndpoint(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://portal.example"})

	_, err := client.FetchCaseSummary(context.Background(), NewJar(), "", "enc-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-15", "2024-01-15"},
		{"01/15/2024", "2024-01-15"},
		{"1/5/2024", "2024-01-05"},
		{"2024-01-15T10:30:00", "2024-01-15"},
		{"", ""},
		{"not a date", "not a date"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeDate(tt.in))
		})
	}
}
