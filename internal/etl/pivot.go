package etl

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Pivot ──────────────────────────────────────────────────
// SetFirstColumn → Reorder turns flat rows into {pivot: {rest}} records.
// Both steps are pure: the input dataset is never modified.

// SetFirstColumn returns a copy of d with column moved to the front.
// The remaining columns keep their relative order.
func SetFirstColumn(d Dataset, column string) (Dataset, error) {
	if len(d.Columns) == 0 && len(d.Rows) == 0 {
		return Dataset{Columns: []string{}, Rows: []Record{}}, nil
	}
	idx := slices.Index(d.Columns, column)
	if idx < 0 {
		return Dataset{}, &SchemaError{Column: column, Available: slices.Clone(d.Columns)}
	}

	cols := make([]string, 0, len(d.Columns))
	cols = append(cols, column)
	cols = append(cols, d.Columns[:idx]...)
	cols = append(cols, d.Columns[idx+1:]...)

	rows := make([]Record, len(d.Rows))
	for i, r := range d.Rows {
		rows[i] = Record{Data: maps.Clone(r.Data)}
	}
	return Dataset{Columns: cols, Rows: rows}, nil
}

// Reorder emits one ReshapedRecord per row, keyed by the first column.
// Rows sharing a key stay separate records.
func Reorder(d Dataset) []ReshapedRecord {
	out := make([]ReshapedRecord, 0, len(d.Rows))
	for _, r := range d.Rows {
		fields := orderedmap.New[string, any](max(len(d.Columns)-1, 0))
		var key string
		for i, c := range d.Columns {
			if i == 0 {
				key = KeyString(r.Data[c])
				continue
			}
			fields.Set(c, r.Data[c])
		}
		out = append(out, ReshapedRecord{Key: key, Fields: fields})
	}
	return out
}

// ProcessData pivots d on column and reshapes every row.
func ProcessData(d Dataset, column string) ([]ReshapedRecord, error) {
	pivoted, err := SetFirstColumn(d, column)
	if err != nil {
		return nil, err
	}
	return Reorder(pivoted), nil
}

// KeyString renders a pivot value as a record key.
func KeyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, bits)
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
