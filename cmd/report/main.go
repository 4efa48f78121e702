package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"blsync/pkg/config"
	"blsync/pkg/logger"
	"blsync/pkg/pipeline"
	"blsync/pkg/report"

	"github.com/go-gota/gota/dataframe"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "path to config file (required with -from-store)")
		tsFile     = flag.String("ts-file", "", "local path to the time series file")
		popFile    = flag.String("pop-file", "", "local path to the population JSONL file")
		fromStore  = flag.Bool("from-store", false, "read inputs from the configured destination store")
		tsKey      = flag.String("ts-key", "pr.data.0.Current", "store key of the time series file (relative to prefix)")
		seriesID   = flag.String("series", "PRS30006032", "series id for the join report")
		period     = flag.String("period", "Q01", "period for the join report")
		fromYear   = flag.Int("from-year", 2013, "first year for the population stats report")
		toYear     = flag.Int("to-year", 2018, "last year for the population stats report")
	)
	flag.Parse()

	ts, pop, err := loadInputs(*configPath, *tsFile, *popFile, *fromStore, *tsKey)
	if err != nil {
		logger.Error("failed to load report inputs", err, nil)
		return 1
	}

	stats, err := report.PopulationStatsReport(pop, *fromYear, *toYear)
	if err != nil {
		logger.Error("population stats report failed", err, nil)
		return 1
	}
	fmt.Printf("Population %d-%d: mean=%.2f stddev=%.2f\n",
		stats.FromYear, stats.ToYear, stats.Mean, stats.StdDev)

	bestYears, err := report.BestYearsReport(ts)
	if err != nil {
		logger.Error("best years report failed", err, nil)
		return 1
	}
	fmt.Println("\nBest year per series:")
	for _, b := range bestYears {
		fmt.Printf("%s\t%d\t%.3f\n", b.SeriesID, b.Year, b.Value)
	}

	rows, err := report.SeriesPopulationReport(ts, pop, *seriesID, *period)
	if err != nil {
		logger.Error("series population report failed", err, nil)
		return 1
	}
	fmt.Printf("\nSeries %s period %s with population:\n", *seriesID, *period)
	for _, row := range rows {
		fmt.Printf("%s\t%d\t%s\t%.3f\t%d\n",
			row.SeriesID, row.Year, row.Period, row.Value, row.Population)
	}

	return 0
}

func loadInputs(configPath, tsFile, popFile string, fromStore bool, tsKey string) (dataframe.DataFrame, dataframe.DataFrame, error) {
	var zero dataframe.DataFrame

	if fromStore {
		if configPath == "" {
			return zero, zero, fmt.Errorf("-config is required with -from-store")
		}
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return zero, zero, err
		}

		store, prefix, err := pipeline.NewStore(cfg)
		if err != nil {
			return zero, zero, err
		}
		defer func() {
			_ = store.Close()
		}()

		ctx := context.Background()
		tsData, err := store.Get(ctx, prefix+tsKey)
		if err != nil {
			return zero, zero, fmt.Errorf("fetch time series from store: %w", err)
		}
		popData, err := store.Get(ctx, cfg.API.DestinationKey)
		if err != nil {
			return zero, zero, fmt.Errorf("fetch population data from store: %w", err)
		}
		return loadFrames(bytes.NewReader(tsData), bytes.NewReader(popData))
	}

	if tsFile == "" || popFile == "" {
		return zero, zero, fmt.Errorf("-ts-file and -pop-file are required without -from-store")
	}

	tsReader, err := os.Open(tsFile)
	if err != nil {
		return zero, zero, err
	}
	defer func() {
		_ = tsReader.Close()
	}()

	popReader, err := os.Open(popFile)
	if err != nil {
		return zero, zero, err
	}
	defer func() {
		_ = popReader.Close()
	}()

	return loadFrames(tsReader, popReader)
}

func loadFrames(tsReader, popReader io.Reader) (dataframe.DataFrame, dataframe.DataFrame, error) {
	var zero dataframe.DataFrame

	ts, err := report.LoadTimeSeries(tsReader)
	if err != nil {
		return zero, zero, err
	}
	pop, err := report.LoadPopulation(popReader)
	if err != nil {
		return zero, zero, err
	}
	return ts, pop, nil
}
