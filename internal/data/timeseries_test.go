package data

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTimeseriesXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("timeseries")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "timeseries.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestImportTimeseriesXLSX(t *testing.T) {
	path := createTimeseriesXLSX(t, [][]string{
		{"week_end_date", "cases", "hospitalizations", "ed_visits", "vaccination_age_65_plus"},
		{"2025-11-10", "52", "3", "8", "0.71"},
		{"2025-11-03", "40", "2", "", ""},
	})

	observations, err := ImportTimeseriesXLSX(path)
	require.NoError(t, err)
	require.Len(t, observations, 2)

	// Sorted by week end date regardless of input order.
	first := observations[0]
	assert.Equal(t, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), first.WeekEndDate)
	assert.InDelta(t, 40.0, first.Cases, 1e-9)
	require.NotNil(t, first.Hospitalizations)
	assert.InDelta(t, 2.0, *first.Hospitalizations, 1e-9)
	assert.Nil(t, first.EDVisits)
	assert.Empty(t, first.Vaccinations)

	second := observations[1]
	require.NotNil(t, second.EDVisits)
	assert.InDelta(t, 8.0, *second.EDVisits, 1e-9)
	assert.InDelta(t, 0.71, second.Vaccinations["age_65_plus"], 1e-9)
}

func TestImportTimeseriesCSV(t *testing.T) {
	csv := strings.NewReader(
		"week_end_date,cases\n" +
			"2025-11-03,40\n" +
			"2025-11-10,55\n",
	)

	observations, err := ImportTimeseriesCSV(csv)
	require.NoError(t, err)
	require.Len(t, observations, 2)
	assert.InDelta(t, 55.0, observations[1].Cases, 1e-9)
	assert.Nil(t, observations[0].Hospitalizations)
}

func TestImportTimeseries_MissingRequiredColumns(t *testing.T) {
	_, err := ImportTimeseriesCSV(strings.NewReader("week_end_date\n2025-11-03\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cases")

	_, err = ImportTimeseriesCSV(strings.NewReader("cases\n40\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "week_end_date")
}

func TestImportTimeseries_RejectsBadValues(t *testing.T) {
	_, err := ImportTimeseriesCSV(strings.NewReader("week_end_date,cases\nnot-a-date,40\n"))
	require.Error(t, err)

	_, err = ImportTimeseriesCSV(strings.NewReader("week_end_date,cases\n2025-11-03,-5\n"))
	require.Error(t, err)

	_, err = ImportTimeseriesCSV(strings.NewReader("week_end_date,cases,hospitalizations\n2025-11-03,40,abc\n"))
	require.Error(t, err)
}

func TestImportTimeseries_RequiresObservations(t *testing.T) {
	_, err := ImportTimeseriesCSV(strings.NewReader("week_end_date,cases\n"))
	require.Error(t, err)
}

func TestImportTimeseries_AlternateDateFormats(t *testing.T) {
	observations, err := ImportTimeseriesCSV(strings.NewReader("week_end_date,cases\n11/3/2025,40\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), observations[0].WeekEndDate)
}
