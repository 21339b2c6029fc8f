// Package csvio reads input microdata and writes synthetic microdata as
// CSV, in the column layout the rest of the run works with: a run of
// geographic attribute columns followed by a run of query attribute
// columns.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/synthcensus/topdown/microdata"
	"github.com/synthcensus/topdown/topderr"
	"github.com/synthcensus/topdown/tree"
)

const phase = "csvio"

// LoadRecords reads path as CSV, using its header row to locate geoCols
// and queryCols by name (order in the file need not match geoCols/queryCols order).
func LoadRecords(path string, geoCols, queryCols []string) ([]tree.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, topderr.Wrap(topderr.InputError, phase, nil, "could not open input CSV", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, topderr.Wrap(topderr.InputError, phase, nil, "could not read input CSV header", err)
	}
	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		colIndex[name] = i
	}

	geoIdx, err := resolveColumns(colIndex, geoCols)
	if err != nil {
		return nil, err
	}
	queryIdx, err := resolveColumns(colIndex, queryCols)
	if err != nil {
		return nil, err
	}

	var records []tree.Record
	lineNo := 1
	for {
		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, topderr.Wrap(topderr.InputError, phase, nil, fmt.Sprintf("could not read input CSV row %d", lineNo), err)
		}
		lineNo++

		geoValues := make([]string, len(geoIdx))
		for i, idx := range geoIdx {
			geoValues[i] = row[idx]
		}
		queryTuple := make([]string, len(queryIdx))
		for i, idx := range queryIdx {
			queryTuple[i] = row[idx]
		}
		records = append(records, tree.Record{GeoValues: geoValues, QueryTuple: queryTuple})
	}
	return records, nil
}

func resolveColumns(colIndex map[string]int, names []string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, name := range names {
		j, ok := colIndex[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return nil, topderr.New(topderr.InputError, phase, missing, "input CSV is missing required columns")
	}
	return idx, nil
}

// WriteMicrodata writes synthesized records to path as CSV, with a header
// naming geoCols followed by queryCols.
func WriteMicrodata(path string, geoCols, queryCols []string, records []microdata.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return topderr.Wrap(topderr.StateError, phase, nil, "could not create output CSV", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string(nil), geoCols...), queryCols...)
	if err := w.Write(header); err != nil {
		return topderr.Wrap(topderr.StateError, phase, nil, "could not write output CSV header", err)
	}
	for _, rec := range records {
		row := append(append([]string(nil), rec.GeoValues...), rec.QueryTuple...)
		if err := w.Write(row); err != nil {
			return topderr.Wrap(topderr.StateError, phase, nil, "could not write output CSV row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return topderr.Wrap(topderr.StateError, phase, nil, "could not flush output CSV", err)
	}
	return nil
}
