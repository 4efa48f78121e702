package report

import (
	"fmt"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// PopulationStats is the mean and standard deviation of the national
// population over a year range.
type PopulationStats struct {
	FromYear int
	ToYear   int
	Mean     float64
	StdDev   float64
}

func PopulationStatsReport(pop dataframe.DataFrame, fromYear, toYear int) (*PopulationStats, error) {
	filtered := pop.
		Filter(dataframe.F{Colname: "Year", Comparator: series.GreaterEq, Comparando: fromYear}).
		Filter(dataframe.F{Colname: "Year", Comparator: series.LessEq, Comparando: toYear})
	if filtered.Err != nil {
		return nil, fmt.Errorf("filter population years: %w", filtered.Err)
	}
	if filtered.Nrow() == 0 {
		return nil, fmt.Errorf("no population rows between %d and %d", fromYear, toYear)
	}

	col := filtered.Col("Population")
	return &PopulationStats{
		FromYear: fromYear,
		ToYear:   toYear,
		Mean:     col.Mean(),
		StdDev:   col.StdDev(),
	}, nil
}

// BestYear is the year with the largest summed value for one series.
type BestYear struct {
	SeriesID string
	Year     int
	Value    float64
}

func BestYearsReport(ts dataframe.DataFrame) ([]BestYear, error) {
	grouped := ts.GroupBy("series_id", "year")
	if grouped.Err != nil {
		return nil, fmt.Errorf("group time series: %w", grouped.Err)
	}

	sums := grouped.Aggregation(
		[]dataframe.AggregationType{dataframe.Aggregation_SUM},
		[]string{"value"},
	)
	if sums.Err != nil {
		return nil, fmt.Errorf("sum series values: %w", sums.Err)
	}

	best := make(map[string]BestYear)
	for _, row := range sums.Maps() {
		seriesID := asString(row["series_id"])
		year := asInt(row["year"])
		total := asFloat(row["value_SUM"])

		current, seen := best[seriesID]
		if !seen || total > current.Value || (total == current.Value && year < current.Year) {
			best[seriesID] = BestYear{SeriesID: seriesID, Year: year, Value: total}
		}
	}

	result := make([]BestYear, 0, len(best))
	for _, b := range best {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SeriesID < result[j].SeriesID })

	return result, nil
}

// SeriesPopulationRow pairs one series observation with the national
// population for its year.
type SeriesPopulationRow struct {
	SeriesID   string
	Year       int
	Period     string
	Value      float64
	Population int64
}

func SeriesPopulationReport(ts, pop dataframe.DataFrame, seriesID, period string) ([]SeriesPopulationRow, error) {
	filtered := ts.
		Filter(dataframe.F{Colname: "series_id", Comparator: series.Eq, Comparando: seriesID}).
		Filter(dataframe.F{Colname: "period", Comparator: series.Eq, Comparando: period})
	if filtered.Err != nil {
		return nil, fmt.Errorf("filter time series: %w", filtered.Err)
	}
	if filtered.Nrow() == 0 {
		return nil, nil
	}

	popByYear := pop.Select([]string{"Year", "Population"}).Rename("year", "Year")
	if popByYear.Err != nil {
		return nil, fmt.Errorf("project population columns: %w", popByYear.Err)
	}

	joined := filtered.LeftJoin(popByYear, "year")
	if joined.Err != nil {
		return nil, fmt.Errorf("join population by year: %w", joined.Err)
	}

	rows := make([]SeriesPopulationRow, 0, joined.Nrow())
	for _, row := range joined.Maps() {
		rows = append(rows, SeriesPopulationRow{
			SeriesID:   asString(row["series_id"]),
			Year:       asInt(row["year"]),
			Period:     asString(row["period"]),
			Value:      asFloat(row["value"]),
			Population: int64(asFloat(row["Population"])),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Year < rows[j].Year })

	return rows, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
