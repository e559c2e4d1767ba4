package contents

import (
	"context"
	"fmt"

	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/pathutil"
	"github.com/rescale/notebook-filetree/internal/validation"
)

// Manager implements DocumentManager over any Backend.
type Manager struct {
	backend Backend
}

// NewManager wraps backend.
func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// Backend returns the wrapped backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// IsValidName reports whether name can be used for a file or directory.
func (m *Manager) IsValidName(name string) bool {
	return validation.IsValidName(name)
}

// Rename moves oldPath to newPath after validating the new base name.
func (m *Manager) Rename(ctx context.Context, oldPath, newPath string) (*models.Entry, error) {
	if err := validation.ValidateName(pathutil.Base(newPath)); err != nil {
		return nil, err
	}
	entry, err := m.backend.Rename(ctx, oldPath, newPath)
	if err != nil {
		return nil, fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
	}
	return entry, nil
}

// CreateDirectory creates an untitled directory inside dir.
func (m *Manager) CreateDirectory(ctx context.Context, dir string) (*models.Entry, error) {
	entry, err := m.backend.NewUntitled(ctx, pathutil.Normalize(dir), models.TypeDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create folder in %q: %w", dir, err)
	}
	return entry, nil
}

// CreateFile creates an empty text file at path. An existing entry is an
// ErrConflict.
func (m *Manager) CreateFile(ctx context.Context, path string) (*models.Entry, error) {
	path = pathutil.Normalize(path)
	if err := validation.ValidateName(pathutil.Base(path)); err != nil {
		return nil, err
	}

	if _, err := m.backend.Get(ctx, path, GetOptions{}); err == nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, ErrConflict)
	} else if !IsNotFound(err) {
		return nil, fmt.Errorf("failed to check %s: %w", path, err)
	}

	empty := ""
	entry, err := m.backend.Save(ctx, path, &models.SaveModel{
		Name:    pathutil.Base(path),
		Path:    path,
		Type:    models.TypeFile,
		Format:  models.FormatText,
		Content: &empty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return entry, nil
}

// DeleteFile removes path (recursively for directories).
func (m *Manager) DeleteFile(ctx context.Context, path string) error {
	if err := m.backend.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
