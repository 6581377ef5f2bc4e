package processing_test

import (
	"testing"
	"time"

	"github.com/DeafMist/parcel-search/internal/models"
	"github.com/DeafMist/parcel-search/internal/processing"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "entities", input: "Smith &amp; Sons", want: "Smith & Sons"},
		{name: "collapse whitespace", input: "  123\tMain\n\nSt ", want: "123 Main St"},
		{name: "keeps dashes", input: "17-10-100-000-0000", want: "17-10-100-000-0000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processing.NormalizeQuery(tt.input); got != tt.want {
				t.Fatalf("NormalizeQuery(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "123 main st acme co", processing.CleanText("123 Main St - Acme, Co."))
	require.Equal(t, "", processing.CleanText(""))
}

func TestExtractKeywords(t *testing.T) {
	got := processing.ExtractKeywords("123 N Michigan Ave - Michigan Bakery, the Loop", 3, 3)
	require.Equal(t, []string{"michigan", "bakery", "loop"}, got)

	require.Nil(t, processing.ExtractKeywords("", 5, 3))
	require.Nil(t, processing.ExtractKeywords("123 N St", 5, 3))
	require.Len(t, processing.ExtractKeywords("alpha beta gamma delta", 0, 1), 4)
}

func TestClassifyQuery(t *testing.T) {
	require.Equal(t, models.SearchPIN, processing.ClassifyQuery("17-10-100-000-0000"))
	require.Equal(t, models.SearchPIN, processing.ClassifyQuery("1710100000"))
	require.Equal(t, models.SearchAddress, processing.ClassifyQuery("123 Main St"))
	require.Equal(t, models.SearchBusiness, processing.ClassifyQuery("Acme Co"))
	require.Equal(t, models.SearchType(""), processing.ClassifyQuery("  "))
}

func TestBuildEventID(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	ev := models.ActivityEvent{SessionID: "s1", Kind: models.ActivitySearch, Query: "main", Timestamp: ts}

	id1 := processing.BuildEventID(ev)
	id2 := processing.BuildEventID(ev)
	require.Equal(t, id1, id2)
	require.Len(t, id1, 40)

	ev.Timestamp = ts.In(time.FixedZone("CST", -6*3600))
	require.Equal(t, id1, processing.BuildEventID(ev))

	ev.Query = "main st"
	require.NotEqual(t, id1, processing.BuildEventID(ev))
}
