package data

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// vaccinationPrefix marks per-age-group vaccination coverage columns, e.g.
// vaccination_age_65_plus.
const vaccinationPrefix = "vaccination_"

// dateLayouts are tried in order when parsing week end dates.
var dateLayouts = []string{"2006-01-02", "1/2/2006", "01-02-06", time.RFC3339}

// ImportTimeseriesXLSX reads weekly surveillance observations from the first
// sheet of an XLSX workbook. The first row must be a header naming at least
// week_end_date and cases.
func ImportTimeseriesXLSX(path string) ([]model.WeeklyObservation, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "data: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("data: xlsx has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}

	return parseTimeseriesRows(rows)
}

// ImportTimeseriesCSV reads weekly surveillance observations from CSV with
// the same header contract as the XLSX importer.
func ImportTimeseriesCSV(r io.Reader) ([]model.WeeklyObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "data: read csv row")
		}
		rows = append(rows, record)
	}

	return parseTimeseriesRows(rows)
}

func parseTimeseriesRows(rows [][]string) ([]model.WeeklyObservation, error) {
	if len(rows) < 2 {
		return nil, eris.New("data: timeseries needs a header row and at least one observation")
	}

	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}

	dateIdx, ok := header["week_end_date"]
	if !ok {
		return nil, eris.New("data: timeseries missing week_end_date column")
	}
	casesIdx, ok := header["cases"]
	if !ok {
		return nil, eris.New("data: timeseries missing cases column")
	}

	observations := make([]model.WeeklyObservation, 0, len(rows)-1)
	for n, row := range rows[1:] {
		obs, err := parseObservation(row, header, dateIdx, casesIdx)
		if err != nil {
			return nil, eris.Wrapf(err, "data: timeseries row %d", n+2)
		}
		observations = append(observations, obs)
	}

	sort.Slice(observations, func(i, j int) bool {
		return observations[i].WeekEndDate.Before(observations[j].WeekEndDate)
	})
	return observations, nil
}

func parseObservation(row []string, header map[string]int, dateIdx, casesIdx int) (model.WeeklyObservation, error) {
	var obs model.WeeklyObservation

	date, err := parseDate(cellAt(row, dateIdx))
	if err != nil {
		return obs, err
	}
	obs.WeekEndDate = date

	cases, err := strconv.ParseFloat(cellAt(row, casesIdx), 64)
	if err != nil || cases < 0 {
		return obs, eris.Errorf("invalid cases value %q", cellAt(row, casesIdx))
	}
	obs.Cases = cases

	obs.Hospitalizations, err = optionalFloat(row, header, "hospitalizations")
	if err != nil {
		return obs, err
	}
	obs.EDVisits, err = optionalFloat(row, header, "ed_visits")
	if err != nil {
		return obs, err
	}

	for name, idx := range header {
		if !strings.HasPrefix(name, vaccinationPrefix) {
			continue
		}
		raw := cellAt(row, idx)
		if raw == "" {
			continue
		}
		coverage, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return obs, eris.Errorf("invalid %s value %q", name, raw)
		}
		if obs.Vaccinations == nil {
			obs.Vaccinations = make(map[string]float64)
		}
		obs.Vaccinations[strings.TrimPrefix(name, vaccinationPrefix)] = coverage
	}

	return obs, nil
}

func optionalFloat(row []string, header map[string]int, name string) (*float64, error) {
	idx, ok := header[name]
	if !ok {
		return nil, nil
	}
	raw := cellAt(row, idx)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, eris.Errorf("invalid %s value %q", name, raw)
	}
	return &v, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("invalid week_end_date %q", raw)
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
