package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/codefirst/internal/ir"
	"github.com/roach88/codefirst/internal/metadata"
)

// MarshalMapping converts a mapping to canonical JSON TEXT for storage.
// Go types are not part of the snapshot; callers rebind them on load.
func MarshalMapping(mapping *metadata.DatabaseMapping) (string, error) {
	v, err := ir.FromGo(mapping)
	if err != nil {
		return "", fmt.Errorf("marshal mapping: %w", err)
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal mapping: %w", err)
	}
	return string(data), nil
}

// UnmarshalMapping parses a stored mapping.
func UnmarshalMapping(data string) (*metadata.DatabaseMapping, error) {
	if data == "" {
		return nil, fmt.Errorf("unmarshal mapping: empty snapshot")
	}
	var m metadata.DatabaseMapping
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal mapping: %w", err)
	}
	if m.Model == nil || m.Database == nil {
		return nil, fmt.Errorf("unmarshal mapping: incomplete snapshot")
	}
	return &m, nil
}
