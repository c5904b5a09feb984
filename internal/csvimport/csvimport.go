// Package csvimport bulk-loads calendar sources from an
// administrator-uploaded CSV file (C12), upserting by primary URL.
package csvimport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/roomcal/roomcal/internal/model"
)

// requiredColumns must be present in the header row, in any order.
var requiredColumns = []string{"primary_url"}

// Upserter persists one calendar source, keyed by its primary URL.
type Upserter interface {
	UpsertSourceByURL(ctx context.Context, src model.CalendarSource) error
}

// Result summarizes one import run.
type Result struct {
	Imported int
	Skipped  int
	Errors   []string
}

// Import reads standard RFC 4180 CSV from r and upserts one calendar
// source per data row. A header row is required; unknown columns are
// ignored rather than rejected, so administrators can keep
// spreadsheet-only notes columns without breaking the importer.
func Import(ctx context.Context, r io.Reader, store Upserter) (Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	colIndex, err := resolveColumns(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	rowNum := 1
	for {
		rowNum++
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			res.Skipped++
			continue
		}

		src, ok := rowToSource(record, colIndex)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: missing primary_url", rowNum))
			res.Skipped++
			continue
		}

		if err := store.UpsertSourceByURL(ctx, src); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			res.Skipped++
			continue
		}
		res.Imported++
	}

	return res, nil
}

func resolveColumns(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return idx, nil
}

func rowToSource(record []string, idx map[string]int) (model.CalendarSource, bool) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	primaryURL := get("primary_url")
	if primaryURL == "" {
		return model.CalendarSource{}, false
	}

	enabled := true
	if v := get("enabled"); v != "" {
		enabled = strings.EqualFold(v, "true") || v == "1"
	}

	return model.CalendarSource{
		PrimaryURL:   primaryURL,
		ICSURL:       get("ics_url"),
		DisplayName:  get("display_name"),
		Color:        get("color"),
		Enabled:      enabled,
		Building:     get("building"),
		Room:         get("room"),
		EmailAddress: get("email_address"),
		Notes:        get("notes"),
	}, true
}
