package batch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/sheet"
)

var ErrNoIDColumn = errors.New("imported rows have no id column")

// RowError points at an imported row whose id could not be used. Line is the
// spreadsheet line, counting the header as line 1.
type RowError struct {
	Line  int
	Value string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: id %q: %v", e.Line, e.Value, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IDsFromRows extracts event ids from the named column. Every row is checked
// and all problems are returned together, so nothing is mutated when any row
// is bad.
func IDsFromRows(rows []sheet.Row, column string) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if _, ok := rows[0][column]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoIDColumn, column)
	}

	ids := make([]int64, 0, len(rows))
	var errs []error
	for i, row := range rows {
		value := strings.TrimSpace(row[column])
		id, err := parseID(value)
		if err != nil {
			errs = append(errs, &RowError{Line: i + 2, Value: value, Err: err})
			continue
		}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// parseID accepts integers, including the "123.0" form spreadsheets produce
// for numeric cells.
func parseID(value string) (int64, error) {
	if value == "" {
		return 0, errors.New("missing")
	}
	value = strings.TrimSuffix(value, ".0")
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	if id <= 0 {
		return 0, errors.New("must be positive")
	}
	return id, nil
}
