// Package validation checks entry names and local output paths.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidName is wrapped by every ValidateName failure.
var ErrInvalidName = errors.New("invalid name")

// ValidateName validates a single entry name (not a path) for rename, create
// and upload. A name must be non-empty and must not contain '/', '\\', ':' or
// a null byte. "." and ".." are rejected as well.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}

	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: name contains null byte", ErrInvalidName)
	}

	if strings.ContainsAny(name, `/\:`) {
		return fmt.Errorf(`%w: %q cannot contain "/", "\" or ":"`, ErrInvalidName, name)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return nil
}

// IsValidName reports whether ValidateName accepts name.
func IsValidName(name string) bool {
	return ValidateName(name) == nil
}

// ValidatePathInDirectory validates that path, resolved against baseDir,
// stays within baseDir. Downloads use it before writing a server-named file.
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanBase, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cleanBase, resolved)
	}

	rel, err := filepath.Rel(cleanBase, resolved)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}

	return nil
}
