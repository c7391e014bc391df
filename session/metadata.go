package session

import "encoding/json"

// stripMetadataKeys deletes the named keys from a JSON object blob, leaving
// everything else untouched. A blob that isn't a JSON object (empty, null,
// or malformed) is dropped entirely — fail closed rather than pass through
// metadata we can't inspect.
func stripMetadataKeys(raw json.RawMessage, keys []string) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	for _, k := range keys {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil
	}
	cleaned, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return cleaned
}
