package config

import (
	"fmt"
	"os"
	"path/filepath"

	yaml "gopkg.in/yaml.v3"
)

// readConfigMap loads a slipfile as a generic document so edits keep
// settings this version does not know about.
func readConfigMap(path string) (map[string]interface{}, error) {
	doc := make(map[string]interface{})

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}
	return doc, nil
}

func writeConfigMap(path string, doc map[string]interface{}) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	// Owner-only: connections may carry credentials.
	return os.WriteFile(path, data, 0o600)
}

func decodeConnections(doc map[string]interface{}) ([]IndexConnection, error) {
	raw, ok := doc["connections"]
	if !ok {
		return nil, nil
	}

	// Round-trip through YAML so the generic slice decodes into the
	// typed form.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var conns []IndexConnection
	if err := yaml.Unmarshal(data, &conns); err != nil {
		return nil, fmt.Errorf("connections section is malformed: %w", err)
	}
	return conns, nil
}

// ListConnections reads the connections stored in a slipfile.
func ListConnections(path string) ([]IndexConnection, error) {
	doc, err := readConfigMap(path)
	if err != nil {
		return nil, err
	}
	return decodeConnections(doc)
}

// AddConnection inserts or replaces a connection in a slipfile,
// creating the file if needed.
func AddConnection(path string, conn IndexConnection) error {
	if conn.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	if conn.Repository == "" {
		return fmt.Errorf("connection repository URL is required")
	}

	doc, err := readConfigMap(path)
	if err != nil {
		return err
	}
	conns, err := decodeConnections(doc)
	if err != nil {
		return err
	}

	replaced := false
	for i := range conns {
		if conns[i].Name == conn.Name {
			conns[i] = conn
			replaced = true
		}
	}
	if !replaced {
		conns = append(conns, conn)
	}

	doc["connections"] = conns
	return writeConfigMap(path, doc)
}

// RemoveConnection deletes a connection by name. Removing a name that
// is not present is an error so typos surface.
func RemoveConnection(path string, name string) error {
	doc, err := readConfigMap(path)
	if err != nil {
		return err
	}
	conns, err := decodeConnections(doc)
	if err != nil {
		return err
	}

	kept := conns[:0]
	found := false
	for _, conn := range conns {
		if conn.Name == name {
			found = true
			continue
		}
		kept = append(kept, conn)
	}
	if !found {
		return fmt.Errorf("index connection %q is not configured in %s", name, path)
	}

	doc["connections"] = kept
	return writeConfigMap(path, doc)
}
