// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

// Package main implements windowctl, the offline dataset tool.
//
// windowctl turns labeled raw observation CSVs into fixed-width training
// records: it optionally fits a Box-Cox power transform over the whole
// dataset, slides a time window over each (label, beacon) group, and writes
// one feature row per window position after the warm-up skip.
//
// Example:
//
//	windowctl -input day1.csv,day2.csv -output train.csv \
//	  -catalog "8-302:0,8-302:1,8-303:0" -window 30s \
//	  -boxcox lambdas.json -weighted
//
// The input CSVs need a header with at least the columns label, ble_id,
// place, detector, timestamp, and proxi, in any order.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mizulab/aqualoc/internal/logging"
	"github.com/mizulab/aqualoc/internal/window"
)

type options struct {
	inputs   []string
	output   string
	catalog  []string
	window   time.Duration
	sentinel float64
	weighted bool
	boxcox   string
	beacon   string
	appendTo bool
	force    bool
}

func main() {
	logging.Init(logging.Config{Level: "info", Format: "console"})

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		logging.Fatal().Err(err).Msg("Invalid arguments")
	}
	if err := run(opts); err != nil {
		logging.Fatal().Err(err).Msg("windowctl failed")
	}
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("windowctl", flag.ContinueOnError)

	input := fs.String("input", "", "comma-separated input CSV files (required)")
	output := fs.String("output", "", "output CSV file (required)")
	catalog := fs.String("catalog", "", "comma-separated place:detector pairs (required)")
	windowDur := fs.Duration("window", 30*time.Second, "sliding window length")
	sentinel := fs.Float64("sentinel", window.SentinelRaw, "fill value for columns without readings")
	weighted := fs.Bool("weighted", false, "use recency-weighted means")
	boxcox := fs.String("boxcox", "", "fit a Box-Cox transform and write lambdas to this JSON file")
	beacon := fs.String("beacon", "", "only process this BLE ID")
	appendTo := fs.Bool("append", false, "append to the output file without a header")
	force := fs.Bool("force", false, "overwrite existing output files")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *input == "" || *output == "" || *catalog == "" {
		return nil, fmt.Errorf("-input, -output, and -catalog are required")
	}

	opts := &options{
		inputs:   splitList(*input),
		output:   *output,
		catalog:  splitList(*catalog),
		window:   *windowDur,
		sentinel: *sentinel,
		weighted: *weighted,
		boxcox:   *boxcox,
		beacon:   *beacon,
		appendTo: *appendTo,
		force:    *force,
	}
	return opts, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(opts *options) error {
	catalog, err := window.ParseCatalog(opts.catalog)
	if err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	rows, err := readInputs(opts.inputs, opts.beacon)
	if err != nil {
		return err
	}
	logging.Info().
		Int("observations", len(rows)).
		Int("files", len(opts.inputs)).
		Msg("Input loaded")
	if len(rows) == 0 {
		return fmt.Errorf("no observations to process")
	}

	sentinel := opts.sentinel
	if opts.boxcox != "" {
		if !opts.force {
			if _, err := os.Stat(opts.boxcox); err == nil {
				return fmt.Errorf("%s already exists, use -force to overwrite", opts.boxcox)
			}
		}

		obs := make([]window.Observation, len(rows))
		for i, r := range rows {
			obs[i] = r.obs
		}
		transformed, params, err := window.FitPowerTransform(obs)
		if err != nil {
			return fmt.Errorf("power transform fit failed: %w", err)
		}
		for i := range rows {
			rows[i].obs = transformed[i]
		}
		if err := params.Save(opts.boxcox); err != nil {
			return err
		}
		sentinel = window.SentinelBoxCox
		logging.Info().
			Int("groups", len(params)).
			Str("path", opts.boxcox).
			Msg("Power transform fitted")
	}

	aggregator, err := window.NewAggregator(catalog, opts.window, sentinel, opts.weighted)
	if err != nil {
		return fmt.Errorf("invalid aggregation settings: %w", err)
	}

	var records []window.FeatureRecord
	for _, g := range groupRows(rows) {
		records = append(records, aggregator.Aggregate(g.label, g.bleID, g.obs)...)
	}
	logging.Info().Int("records", len(records)).Msg("Windows aggregated")

	if err := writeOutput(opts, catalog, records); err != nil {
		return err
	}
	logging.Info().Str("path", opts.output).Msg("Output written")
	return nil
}
