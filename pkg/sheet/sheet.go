// Package sheet reads and writes the xlsx workbooks operators exchange with
// the tooling.
package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrNoSheets = errors.New("workbook has no sheets")

// Row maps a header cell to the value below it.
type Row map[string]string

// Table is one worksheet.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Strings converts string cells for a Table.
func Strings(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = make([]any, len(r))
		for j, v := range r {
			out[i][j] = v
		}
	}
	return out
}

// Pairs converts name/value rows for a Table.
func Pairs(rows [][2]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{r[0], r[1]}
	}
	return out
}

// Write saves tables to path, one worksheet each in the given order. The
// parent directory is created when missing.
func Write(path string, tables ...Table) error {
	if len(tables) == 0 {
		return ErrNoSheets
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(first, t.Name); err != nil {
				return fmt.Errorf("sheet %q: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("sheet %q: %w", t.Name, err)
		}
		if err := writeTable(f, t); err != nil {
			return fmt.Errorf("sheet %q: %w", t.Name, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeTable(f *excelize.File, t Table) error {
	line := 1
	if len(t.Header) > 0 {
		header := make([]any, len(t.Header))
		for i, h := range t.Header {
			header[i] = h
		}
		if err := setRow(f, t.Name, line, header); err != nil {
			return err
		}
		line++
	}
	for _, r := range t.Rows {
		if err := setRow(f, t.Name, line, r); err != nil {
			return err
		}
		line++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, line int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// Read returns the rows of the first worksheet keyed by its header row.
// Header names are trimmed; completely empty rows are skipped.
func Read(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	header := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		header[i] = strings.TrimSpace(h)
	}
	var rows []Row
	for _, cells := range raw[1:] {
		row := Row{}
		empty := true
		for i, name := range header {
			if name == "" {
				continue
			}
			var v string
			if i < len(cells) {
				v = strings.TrimSpace(cells[i])
			}
			if v != "" {
				empty = false
			}
			row[name] = v
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Missing returns the names that are not columns of the rows' header. An
// empty slice of rows has no columns.
func Missing(rows []Row, names ...string) []string {
	var missing []string
	if len(rows) == 0 {
		return names
	}
	for _, n := range names {
		if _, ok := rows[0][n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}
