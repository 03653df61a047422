package config

import (
	"os"
	"path/filepath"
	"strings"
)

// FileFinder locates files with respect to a search path, a list of path
// prefixes tried in order. Experiment YAML, data files, and rules files can
// then be named relative to wherever a lab keeps them.
type FileFinder struct {
	searchPath []string
}

// NewFileFinder creates a finder over the given path prefixes.
func NewFileFinder(searchPath []string) *FileFinder {
	return &FileFinder{searchPath: searchPath}
}

// SearchPath returns the configured path prefixes.
func (f *FileFinder) SearchPath() []string {
	return f.searchPath
}

// Find locates the given path with respect to the search path:
//   - An absolute path is returned as-is, with any leading ~ expanded.
//   - Otherwise each search path prefix is tried in order, and the first
//     prefixed path that exists wins.
//   - With no match, the original path is returned with ~ expanded, so
//     not-yet-existing output paths still resolve sensibly.
func (f *FileFinder) Find(original string) (string, error) {
	expanded, err := expandHome(original)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	for _, prefix := range f.searchPath {
		prefixExpanded, err := expandHome(prefix)
		if err != nil {
			return "", err
		}
		candidate := filepath.Join(prefixExpanded, expanded)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return expanded, nil
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "~" {
		return os.UserHomeDir()
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
