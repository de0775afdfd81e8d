// Aqualoc - BLE Beacon Room Presence Classification
// Copyright 2026 Mizutani Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mizulab/aqualoc

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mizulab/aqualoc/internal/window"
)

// row pairs one observation with its beacon identity. The window package
// keys groups by label only; the offline tool additionally separates by
// BLE ID so two tags worn by the same person stay distinct.
type row struct {
	label string
	bleID string
	obs   window.Observation
}

// group is all observations of one (label, beacon) pair in input order.
type group struct {
	label string
	bleID string
	obs   []window.Observation
}

// requiredColumns are the input CSV columns windowctl consumes. Extra
// columns (batt, id) are ignored.
var requiredColumns = []string{"label", "ble_id", "place", "detector", "timestamp", "proxi"}

// readInputs loads and concatenates the observation CSVs. An optional
// beacon filter keeps only that BLE ID.
func readInputs(paths []string, beacon string) ([]row, error) {
	var rows []row
	for _, path := range paths {
		fileRows, err := readCSV(path, beacon)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func readCSV(path, beacon string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []row
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		bleID := record[cols["ble_id"]]
		if beacon != "" && bleID != beacon {
			continue
		}

		ts, err := strconv.ParseInt(record[cols["timestamp"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp: %w", line, err)
		}
		proxi, err := strconv.ParseFloat(record[cols["proxi"]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad proxi: %w", line, err)
		}

		rows = append(rows, row{
			label: record[cols["label"]],
			bleID: bleID,
			obs: window.Observation{
				BeaconLabel: record[cols["label"]],
				Place:       record[cols["place"]],
				DetectorID:  record[cols["detector"]],
				Timestamp:   ts,
				Proximity:   proxi,
			},
		})
	}
	return rows, nil
}

// groupRows splits rows into per-(label, beacon) groups, preserving the
// order of first appearance.
func groupRows(rows []row) []group {
	index := make(map[string]int)
	var groups []group
	for _, r := range rows {
		key := r.label + "\x00" + r.bleID
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{label: r.label, bleID: r.bleID})
		}
		groups[i].obs = append(groups[i].obs, r.obs)
	}
	return groups
}

// writeOutput writes the feature records as CSV. In append mode the header
// is skipped; otherwise an existing file needs -force.
func writeOutput(opts *options, catalog *window.Catalog, records []window.FeatureRecord) error {
	flags := os.O_CREATE | os.O_WRONLY
	writeHeader := !opts.appendTo
	if opts.appendTo {
		flags |= os.O_APPEND
		if info, err := os.Stat(opts.output); err != nil || info.Size() == 0 {
			// Appending to a missing or empty file still needs a header.
			writeHeader = true
		}
	} else {
		if !opts.force {
			if _, err := os.Stat(opts.output); err == nil {
				return fmt.Errorf("%s already exists, use -append or -force", opts.output)
			}
		}
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(opts.output, flags, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		header := append([]string{"label", "ble_id"}, catalog.Columns()...)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	record := make([]string, 0, 2+catalog.Len())
	for _, rec := range records {
		record = record[:0]
		record = append(record, rec.Label, rec.BeaconID)
		for _, f := range rec.Features {
			record = append(record, strconv.FormatFloat(f, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
