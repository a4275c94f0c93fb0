package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"purify/internal/etl"
)

// ── JSON Rows ──────────────────────────────────────────────
// Shared by the http and json_file sources and the reshape route.
// Objects are decoded into ordered maps so the column order of the
// payload survives.

// DecodeRows navigates dataPath and returns the rows plus the column
// order: first-seen key order across all objects.
func DecodeRows(data []byte, dataPath string) (*etl.Schema, []etl.Record, error) {
	raw := json.RawMessage(data)
	if dataPath != "" {
		for _, part := range strings.Split(dataPath, ".") {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, nil, fmt.Errorf("invalid data path: %q is not inside an object", part)
			}
			next, ok := obj[part]
			if !ok {
				return nil, nil, fmt.Errorf("invalid data path: %q not found", part)
			}
			raw = next
		}
	}

	var items []json.RawMessage
	switch firstByte(raw) {
	case '[':
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, fmt.Errorf("parse json: %w", err)
		}
	case '{':
		items = []json.RawMessage{raw}
	default:
		return nil, nil, fmt.Errorf("parse json: expected an array or object")
	}

	schema := &etl.Schema{}
	seen := make(map[string]bool)
	records := make([]etl.Record, 0, len(items))
	for i, item := range items {
		if firstByte(item) != '{' {
			return nil, nil, fmt.Errorf("parse json: row %d is not an object", i)
		}
		om := orderedmap.New[string, json.RawMessage]()
		if err := json.Unmarshal(item, om); err != nil {
			return nil, nil, fmt.Errorf("parse json: row %d: %w", i, err)
		}
		data := make(map[string]any, om.Len())
		for pair := om.Oldest(); pair != nil; pair = pair.Next() {
			v, err := decodeValue(pair.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("parse json: row %d, field %q: %w", i, pair.Key, err)
			}
			data[pair.Key] = v
			if !seen[pair.Key] {
				seen[pair.Key] = true
				schema.Fields = append(schema.Fields, etl.Field{Name: pair.Key, Type: inferType(v)})
			}
		}
		records = append(records, etl.Record{Data: data})
	}
	return schema, records, nil
}

func firstByte(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

// decodeValue keeps scalars, numbers as json.Number. Nested objects and
// arrays stay as their compacted JSON text.
func decodeValue(raw json.RawMessage) (any, error) {
	switch firstByte(raw) {
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func inferType(v any) string {
	switch v.(type) {
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return "text"
	}
}
