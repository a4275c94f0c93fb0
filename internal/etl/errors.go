package etl

import (
	"fmt"
	"strings"
)

// SchemaError reports a pivot column that the dataset does not have.
type SchemaError struct {
	Column    string
	Available []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column %q not in dataset (have: %s)", e.Column, strings.Join(e.Available, ", "))
}

// MalformedRecordError reports a named record that does not have exactly
// one key. Index is the position in its batch, or -1 when unknown.
type MalformedRecordError struct {
	Index int
	Keys  []string
}

func (e *MalformedRecordError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("named record must have exactly one key, got %d", len(e.Keys))
	}
	return fmt.Sprintf("record %d: named record must have exactly one key, got %d", e.Index, len(e.Keys))
}
