// Package pathutil provides path manipulation utilities.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ in path with the user's home directory.
// If the home directory cannot be determined, the path is returned unchanged.
func ExpandHome(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ResolveWithin joins rel onto base and reports whether the result stays
// inside base. rel must be relative; ".." segments that escape base are
// rejected. The returned path is cleaned.
func ResolveWithin(base, rel string) (string, bool) {
	if rel == "" {
		return filepath.Clean(base), true
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, `\`) || filepath.VolumeName(rel) != "" {
		return "", false
	}
	joined := filepath.Join(base, rel)
	r, err := filepath.Rel(filepath.Clean(base), joined)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}
