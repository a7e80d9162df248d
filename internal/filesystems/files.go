package filesystems

import (
	"strings"
)

// FindFile looks for a file with the given name (case-insensitive) in dir.
// Returns the actual path with correct case if found, empty string if not found.
func FindFile(filesystem FileSystem, dir, filename string) (string, error) {
	for entry, err := range filesystem.ReadDir(dir) {
		if err != nil {
			return "", err
		}
		if !entry.IsDir() && strings.EqualFold(entry.Name(), filename) {
			return filesystem.Join(dir, entry.Name()), nil
		}
	}

	return "", nil
}

// FindFirst returns the first of the candidate files present in dir
func FindFirst(filesystem FileSystem, dir string, candidates ...string) (string, error) {
	for _, candidate := range candidates {
		found, err := FindFile(filesystem, dir, candidate)
		if err != nil || found != "" {
			return found, err
		}
	}
	return "", nil
}
