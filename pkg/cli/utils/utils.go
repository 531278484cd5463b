// Package utils holds small helpers shared by the CLI commands.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IsDirectory checks if a path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// HasYAMLExtension checks if a file has a YAML extension.
func HasYAMLExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// YAMLFilesInDirectory returns all YAML files in a directory,
// descending into subdirectories when recursive is set.
func YAMLFilesInDirectory(dirPath string, recursive bool) ([]string, error) {
	if !IsDirectory(dirPath) {
		return nil, fmt.Errorf("not a directory: %s", dirPath)
	}

	var files []string
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dirPath && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if HasYAMLExtension(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// ExpandFilePaths expands arguments into concrete YAML file paths:
// directories contribute their YAML files, glob patterns are expanded,
// plain paths must exist.
func ExpandFilePaths(paths []string, recursive bool) ([]string, error) {
	var expanded []string

	for _, path := range paths {
		if IsDirectory(path) {
			dirFiles, err := YAMLFilesInDirectory(path, recursive)
			if err != nil {
				return nil, fmt.Errorf("error reading directory %s: %w", path, err)
			}
			expanded = append(expanded, dirFiles...)
			continue
		}

		if strings.ContainsAny(path, "*?[") {
			matches, err := filepath.Glob(path)
			if err != nil {
				return nil, fmt.Errorf("error expanding glob pattern %s: %w", path, err)
			}
			for _, match := range matches {
				if IsDirectory(match) {
					dirFiles, err := YAMLFilesInDirectory(match, recursive)
					if err != nil {
						return nil, fmt.Errorf("error reading directory %s: %w", match, err)
					}
					expanded = append(expanded, dirFiles...)
				} else {
					expanded = append(expanded, match)
				}
			}
			continue
		}

		if !FileExists(path) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		expanded = append(expanded, path)
	}

	return expanded, nil
}
