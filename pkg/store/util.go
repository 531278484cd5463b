package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MakeKey creates a standardized key for a resource.
func MakeKey(resourceType, pipeline, name string) []byte {
	return []byte(fmt.Sprintf("%s/%s/%s", resourceType, pipeline, name))
}

// MakePrefix creates a prefix for listing resources by type and
// pipeline. The trailing slash keeps pipeline names from matching
// their own prefixes.
func MakePrefix(resourceType, pipeline string) []byte {
	if pipeline == "" || pipeline == "*" {
		return []byte(fmt.Sprintf("%s/", resourceType))
	}
	return []byte(fmt.Sprintf("%s/%s/", resourceType, pipeline))
}

// ParseKey parses a key into its components.
func ParseKey(key []byte) (resourceType, pipeline, name string, ok bool) {
	parts := strings.SplitN(string(key), "/", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// UnmarshalResource converts a stored value to a target type through a
// JSON round trip. The store keeps resources as loosely typed JSON;
// this is how callers get their concrete types back.
func UnmarshalResource(source interface{}, target interface{}) error {
	jsonData, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}

	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal resource: %w", err)
	}

	return nil
}
