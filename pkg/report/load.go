package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// LoadPopulation reads the landed JSONL population dataset into a
// dataframe. Column names are stripped of spaces and the Year column is
// coerced to int so it can serve as a join key.
func LoadPopulation(r io.Reader) (dataframe.DataFrame, error) {
	var rows []map[string]interface{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("decode population record: %w", err)
		}
		row := make(map[string]interface{}, len(record))
		for k, v := range record {
			key := strings.ReplaceAll(strings.TrimSpace(k), " ", "")
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
			row[key] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read population dataset: %w", err)
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("population dataset is empty")
	}

	df := dataframe.LoadMaps(rows)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load population dataframe: %w", df.Err)
	}

	years := make([]int, df.Nrow())
	for i, f := range df.Col("Year").Float() {
		years[i] = int(f)
	}
	df = df.Mutate(series.New(years, series.Int, "Year"))
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("coerce population year column: %w", df.Err)
	}

	return df, nil
}

// LoadTimeSeries reads the tab-delimited BLS current file into a dataframe
// with year as int and value as float. Fields arrive padded with
// whitespace; everything is trimmed before typing.
func LoadTimeSeries(r io.Reader) (dataframe.DataFrame, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	raw, err := reader.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read time series file: %w", err)
	}
	if len(raw) < 2 {
		return dataframe.DataFrame{}, fmt.Errorf("time series file has no data rows")
	}

	records := make([][]string, 0, len(raw))
	width := len(raw[0])
	for _, row := range raw {
		trimmed := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			trimmed[i] = strings.TrimSpace(row[i])
		}
		records = append(records, trimmed)
	}

	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(map[string]series.Type{
			"year":  series.Int,
			"value": series.Float,
		}),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("load time series dataframe: %w", df.Err)
	}

	return df, nil
}
