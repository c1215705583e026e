package importexport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pitabwire/entityconfig/model"
)

// File formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const sheetName = "Fields"

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Writer renders rows to a file format.
type Writer interface {
	Write(w io.Writer, header []string, rows []map[string]string) error
	ContentType() string
}

// WriterFor returns the writer of format.
func WriterFor(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case FormatCSV, "":
		return CSVWriter{}, nil
	case FormatXLSX:
		return XLSXWriter{}, nil
	default:
		return nil, model.NewBadRequestError(fmt.Sprintf("unsupported format %q (supported: csv, xlsx)", format))
	}
}

// CSVWriter writes comma-separated values.
type CSVWriter struct{}

// ContentType returns the MIME type of CSV files.
func (CSVWriter) ContentType() string { return "text/csv; charset=utf-8" }

// Write writes header and rows as CSV.
func (CSVWriter) Write(w io.Writer, header []string, rows []map[string]string) error {
	buffered := bufio.NewWriter(w)
	cw := csv.NewWriter(buffered)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, h := range header {
			record[i] = row[h]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return buffered.Flush()
}

// XLSXWriter writes a single-sheet workbook.
type XLSXWriter struct{}

// ContentType returns the MIME type of XLSX files.
func (XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Write writes header and rows as an XLSX workbook.
func (XLSXWriter) Write(w io.Writer, header []string, rows []map[string]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	for r, row := range rows {
		cells := make([]any, len(header))
		for i, h := range header {
			cells[i] = row[h]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", r+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// ParseRows reads a CSV or XLSX payload into rows keyed by the header line.
// Blank lines are skipped and short rows are padded with empty values.
func ParseRows(format string, payload []byte) ([]map[string]any, error) {
	var records [][]string
	switch strings.ToLower(format) {
	case FormatCSV, "":
		reader := bufio.NewReader(bytes.NewReader(payload))
		if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
			_, _ = reader.Discard(len(byteOrderMark))
		}
		cr := csv.NewReader(reader)
		cr.FieldsPerRecord = -1
		var err error
		if records, err = cr.ReadAll(); err != nil {
			return nil, model.NewBadRequestError(fmt.Sprintf("malformed csv: %v", err))
		}
	case FormatXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(payload))
		if err != nil {
			return nil, model.NewBadRequestError(fmt.Sprintf("malformed xlsx: %v", err))
		}
		defer func() { _ = f.Close() }()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, model.NewBadRequestError("xlsx file has no sheets")
		}
		if records, err = f.GetRows(sheets[0]); err != nil {
			return nil, fmt.Errorf("read xlsx rows: %w", err)
		}
	default:
		return nil, model.NewBadRequestError(fmt.Sprintf("unsupported format %q (supported: csv, xlsx)", format))
	}

	var header []string
	var rows []map[string]any
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		if header == nil {
			header = make([]string, len(rec))
			for i, h := range rec {
				header[i] = strings.TrimSpace(h)
			}
			continue
		}
		row := make(map[string]any, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if header == nil {
		return nil, model.NewBadRequestError("file has no header row")
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Flatten renders a normalized row as strings. Lists of maps, such as enum
// options, expand to "key.N.attr" columns.
func Flatten(row map[string]any) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		switch list := v.(type) {
		case []map[string]any:
			for i, item := range list {
				flattenItem(out, k, i, item)
			}
		case []any:
			if !allMaps(list) {
				out[k] = formatValue(v)
				continue
			}
			for i, item := range list {
				flattenItem(out, k, i, item.(map[string]any))
			}
		default:
			out[k] = formatValue(v)
		}
	}
	return out
}

func flattenItem(out map[string]string, key string, i int, item map[string]any) {
	for attr, v := range item {
		out[key+"."+strconv.Itoa(i)+"."+attr] = formatValue(v)
	}
}

func allMaps(list []any) bool {
	for _, item := range list {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return len(list) > 0
}

// Header orders columns: id, fieldName, type and entity.id first, then the
// remaining columns sorted.
func Header(rows []map[string]string) []string {
	fixed := []string{KeyID, KeyFieldName, KeyType, KeyEntityID}
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row {
			seen[k] = true
		}
	}
	for _, k := range fixed {
		delete(seen, k)
	}
	return append(fixed, slices.Sorted(maps.Keys(seen))...)
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int32, int64:
		return fmt.Sprintf("%d", v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
