package etl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records; the pivot stage turns a Dataset of
// Records into ReshapedRecords, and sinks consume NamedRecords.

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean" | "datetime"
}

// Schema describes the shape of records coming from a source.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
}

// ── Dataset ────────────────────────────────────────────────

// Dataset is a batch of rows sharing one column order.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// NewDataset builds a dataset from records. Column order follows schema;
// keys present in the records but missing from schema are appended in
// sorted order.
func NewDataset(schema *Schema, records []Record) Dataset {
	var cols []string
	seen := make(map[string]bool)
	if schema != nil {
		for _, name := range schema.FieldNames() {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	var extra []string
	for _, r := range records {
		for k := range r.Data {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return Dataset{Columns: append(cols, extra...), Rows: records}
}

// FillNulls returns a copy of d where absent or nil values are "".
func FillNulls(d Dataset) Dataset {
	rows := make([]Record, len(d.Rows))
	for i, r := range d.Rows {
		data := make(map[string]any, len(d.Columns))
		for k, v := range r.Data {
			data[k] = v
		}
		for _, c := range d.Columns {
			if data[c] == nil {
				data[c] = ""
			}
		}
		rows[i] = Record{Data: data}
	}
	return Dataset{Columns: slices.Clone(d.Columns), Rows: rows}
}

// ── ReshapedRecord ─────────────────────────────────────────

// ReshapedRecord is a row keyed by its pivot value. Fields keep the
// dataset's column order minus the pivot column.
type ReshapedRecord struct {
	Key    string
	Fields *orderedmap.OrderedMap[string, any]
}

// MarshalJSON encodes the record as {"<key>": {<fields>}}.
func (r ReshapedRecord) MarshalJSON() ([]byte, error) {
	fields := r.Fields
	if fields == nil {
		fields = orderedmap.New[string, any]()
	}
	return singleKeyJSON(r.Key, fields)
}

// Named returns the record as a NamedRecord keyed by its pivot value.
func (r ReshapedRecord) Named() NamedRecord {
	return NamedRecord{Name: r.Key, Payload: r.Fields}
}

// ── NamedRecord ────────────────────────────────────────────

// NamedRecord is a single-key object: the company name and its payload.
// Payloads decoded from JSON stay json.RawMessage and are written back as-is.
type NamedRecord struct {
	Name    string
	Payload any
}

// MarshalJSON encodes the record as {"<name>": <payload>}.
func (r NamedRecord) MarshalJSON() ([]byte, error) {
	return singleKeyJSON(r.Name, r.Payload)
}

// singleKeyJSON encodes {"<key>": value} without HTML escaping so names
// such as "P&G" stay readable on the wire.
func singleKeyJSON(key string, value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	if err := writeJSON(&buf, enc, key); err != nil {
		return nil, err
	}
	buf.WriteByte(':')
	if err := writeJSON(&buf, enc, value); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeJSON appends v to buf through enc. Ordered maps are walked here:
// their own MarshalJSON runs json.Marshal per value, which escapes '&'.
func writeJSON(buf *bytes.Buffer, enc *json.Encoder, v any) error {
	om, ok := v.(*orderedmap.OrderedMap[string, any])
	if !ok || om == nil {
		if err := enc.Encode(v); err != nil {
			return err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends '\n'
		return nil
	}

	buf.WriteByte('{')
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		if pair != om.Oldest() {
			buf.WriteByte(',')
		}
		if err := writeJSON(buf, enc, pair.Key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeJSON(buf, enc, pair.Value); err != nil {
			return fmt.Errorf("field %q: %w", pair.Key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// EncodeJSON marshals v without HTML escaping.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes a single-key object. Any other shape is a
// *MalformedRecordError.
func (r *NamedRecord) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode named record: %w", err)
	}
	if len(obj) != 1 {
		return &MalformedRecordError{Index: -1, Keys: sortedKeys(obj)}
	}
	for k, v := range obj {
		r.Name = k
		r.Payload = v
	}
	return nil
}

// ParseNamedRecords decodes a JSON array of single-key objects. The first
// entry with zero or several keys aborts the whole batch.
func ParseNamedRecords(data []byte) ([]NamedRecord, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record batch: %w", err)
	}
	out := make([]NamedRecord, len(raw))
	for i, item := range raw {
		if err := out[i].UnmarshalJSON(item); err != nil {
			var me *MalformedRecordError
			if errors.As(err, &me) {
				me.Index = i
				return nil, me
			}
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
