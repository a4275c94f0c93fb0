package etl

// NameCleaner canonicalizes one company name.
type NameCleaner interface {
	Clean(name string) string
}

// RewriteKeys returns a new batch with every name cleaned.
// Payloads are shared with the input, not copied.
func RewriteKeys(records []NamedRecord, c NameCleaner) []NamedRecord {
	out := make([]NamedRecord, len(records))
	for i, r := range records {
		out[i] = NamedRecord{Name: c.Clean(r.Name), Payload: r.Payload}
	}
	return out
}

// CleanTextData validates a batch of decoded single-key objects and
// cleans their keys. Nothing is rewritten unless every entry is valid.
func CleanTextData(batch []map[string]any, c NameCleaner) ([]NamedRecord, error) {
	records := make([]NamedRecord, len(batch))
	for i, obj := range batch {
		if len(obj) != 1 {
			return nil, &MalformedRecordError{Index: i, Keys: sortedKeys(obj)}
		}
		for k, v := range obj {
			records[i] = NamedRecord{Name: k, Payload: v}
		}
	}
	return RewriteKeys(records, c), nil
}
