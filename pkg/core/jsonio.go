package core

import (
	"encoding/json"
	"io"
)

// MarshalItems pretty-prints report items as a JSON array for humans or
// pipelines that want a single document rather than the JSONL report file.
func MarshalItems(w io.Writer, items []ReportItem) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// UnmarshalItems decodes a JSON array of report items, useful for ingestion
// tests against a previously captured run.
func UnmarshalItems(r io.Reader) ([]ReportItem, error) {
	var items []ReportItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}
