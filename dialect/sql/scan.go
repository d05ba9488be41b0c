package sql

import (
	"database/sql"
	"fmt"
	"time"
)

// ScanMaps scans all rows into a slice of column-name → value maps, in
// result order. Byte slices are copied to strings since drivers may reuse
// their buffers between calls to Next.
func ScanMaps(rows ColumnScanner) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sql/scan: get columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		for i := range values {
			values[i] = new(any)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, fmt.Errorf("sql/scan: scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, c := range columns {
			v := *(values[i].(*any))
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[c] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ScanOne scans exactly one value from the first row and column.
// It returns sql.ErrNoRows if the result set is empty.
func ScanOne(rows ColumnScanner, v any) error {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(v)
}

// ScanInt64 scans the first value of the first row as an int64.
func ScanInt64(rows ColumnScanner) (int64, error) {
	var n sql.NullInt64
	if err := ScanOne(rows, &n); err != nil {
		return 0, err
	}
	return n.Int64, nil
}

// ScanFloat64 scans the first value of the first row as a float64.
func ScanFloat64(rows ColumnScanner) (float64, error) {
	var n sql.NullFloat64
	if err := ScanOne(rows, &n); err != nil {
		return 0, err
	}
	return n.Float64, nil
}

// ScanString scans the first value of the first row as a string.
func ScanString(rows ColumnScanner) (string, error) {
	var n sql.NullString
	if err := ScanOne(rows, &n); err != nil {
		return "", err
	}
	return n.String, nil
}

// ScanBool scans the first value of the first row as a bool.
func ScanBool(rows ColumnScanner) (bool, error) {
	var n sql.NullBool
	if err := ScanOne(rows, &n); err != nil {
		return false, err
	}
	return n.Bool, nil
}

// ScanValues scans the first column of every row into a slice.
func ScanValues(rows ColumnScanner) ([]any, error) {
	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// NullableTime converts a scanned value to a *time.Time, accepting the
// time and textual representations drivers commonly return.
func NullableTime(v any) (*time.Time, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if t, err := time.Parse(layout, v); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("sql/scan: unparsable time %q", v)
	case []byte:
		return NullableTime(string(v))
	default:
		return nil, fmt.Errorf("sql/scan: unexpected time type %T", v)
	}
}
