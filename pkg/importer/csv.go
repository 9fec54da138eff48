package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// readCSV reads a header-indexed CSV export and hands each well-formed row
// to parseRow. Rows that fail to parse or have the wrong column count become
// warnings.
func readCSV(data []byte, required string, foldHeader func(string) string, parseRow func(get func(string) string) (*item, string)) (*ImportResult, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV header: %v", ErrInvalidFormat, err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[foldHeader(col)] = i
	}
	if _, ok := colIndex[required]; !ok {
		return nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidFormat, required)
	}

	result := newResult()
	var items []*item

	rowNum := 1
	for {
		rowNum++
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) != len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)", rowNum, len(header), len(row)))
			continue
		}

		get := func(col string) string {
			if idx, ok := colIndex[col]; ok {
				return row[idx]
			}
			return ""
		}
		it, skipReason := parseRow(get)
		if it == nil {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: get(required), Reason: skipReason})
			continue
		}
		items = append(items, it)
	}

	flatten(result, items)
	return result, nil
}
