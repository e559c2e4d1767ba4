package contents_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/contents/memstore"
	"github.com/rescale/notebook-filetree/internal/models"
	"github.com/rescale/notebook-filetree/internal/validation"
)

func TestStatusError_Sentinels(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, contents.ErrNotFound},
		{http.StatusForbidden, contents.ErrForbidden},
		{http.StatusUnauthorized, contents.ErrForbidden},
		{http.StatusConflict, contents.ErrConflict},
	}
	for _, tt := range tests {
		err := fmt.Errorf("failed to get: %w", &contents.StatusError{Op: "get", Path: "x", Code: tt.code})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d does not match %v", tt.code, tt.want)
		}
	}

	plain := &contents.StatusError{Op: "save", Path: "x", Code: 500, Message: "boom"}
	if contents.IsNotFound(plain) || contents.IsConflict(plain) || contents.IsForbidden(plain) {
		t.Error("500 should not match any sentinel")
	}
	if plain.StatusCode() != 500 {
		t.Errorf("StatusCode() = %d", plain.StatusCode())
	}
	if got := plain.Error(); got != "save x: 500 Internal Server Error: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestManager_IsValidName(t *testing.T) {
	m := contents.NewManager(memstore.New())
	for name, want := range map[string]bool{
		"ok.txt": true,
		"":       false,
		"a/b":    false,
		`a\b`:    false,
		"a:b":    false,
	} {
		if got := m.IsValidName(name); got != want {
			t.Errorf("IsValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestManager_Rename(t *testing.T) {
	store := memstore.New()
	store.WriteFile("dir/a.txt", []byte("a"))
	m := contents.NewManager(store)
	ctx := context.Background()

	if _, err := m.Rename(ctx, "dir/a.txt", "dir/b.txt"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if !store.Exists("dir/b.txt") {
		t.Error("dir/b.txt missing after rename")
	}

	_, err := m.Rename(ctx, "dir/b.txt", "dir/c:d")
	if !errors.Is(err, validation.ErrInvalidName) {
		t.Errorf("Rename to invalid name = %v, want ErrInvalidName", err)
	}
}

func TestManager_CreateFile(t *testing.T) {
	store := memstore.New()
	store.MkdirAll("docs")
	m := contents.NewManager(store)
	ctx := context.Background()

	e, err := m.CreateFile(ctx, "docs/new.md")
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if e.Path != "docs/new.md" || e.SizeOrZero() != 0 {
		t.Errorf("created entry = %+v", e)
	}

	if _, err := m.CreateFile(ctx, "docs/new.md"); !contents.IsConflict(err) {
		t.Errorf("second CreateFile = %v, want conflict", err)
	}
	if _, err := m.CreateFile(ctx, "docs/bad:name"); !errors.Is(err, validation.ErrInvalidName) {
		t.Errorf("CreateFile invalid = %v, want ErrInvalidName", err)
	}
}

func TestManager_CreateDirectoryAndDelete(t *testing.T) {
	store := memstore.New()
	m := contents.NewManager(store)
	ctx := context.Background()

	e, err := m.CreateDirectory(ctx, "")
	if err != nil {
		t.Fatalf("CreateDirectory() error = %v", err)
	}
	if e.Path != "Untitled Folder" || !e.IsDir() {
		t.Errorf("created = %+v", e)
	}

	if err := m.DeleteFile(ctx, e.Path); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if err := m.DeleteFile(ctx, e.Path); !contents.IsNotFound(err) {
		t.Errorf("DeleteFile missing = %v, want not found", err)
	}
}

func TestWithBasePath(t *testing.T) {
	store := memstore.New()
	store.WriteFile("home/user/a.txt", []byte("hi"))
	store.MkdirAll("home/user/sub")
	ctx := context.Background()

	b := contents.WithBasePath(store, "/home/user/")
	root, err := b.Get(ctx, "", contents.GetOptions{Content: true})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if root.Path != "" {
		t.Errorf("root path = %q, want empty", root.Path)
	}
	if len(root.Children) != 2 || root.Children[0].Path != "a.txt" || root.Children[1].Path != "sub" {
		t.Errorf("children = %+v", root.Children)
	}

	c := "new"
	if _, err := b.Save(ctx, "sub/n.txt", &models.SaveModel{Path: "sub/n.txt", Type: models.TypeFile, Format: models.FormatText, Content: &c}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !store.Exists("home/user/sub/n.txt") {
		t.Error("save did not land under the base path")
	}

	data, err := contents.ReadFile(ctx, b, "a.txt")
	if err != nil || string(data) != "hi" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}

	if contents.WithBasePath(store, "") != contents.Backend(store) {
		t.Error("empty base path should return the backend unchanged")
	}
}

func TestAutoConfirmer(t *testing.T) {
	ctx := context.Background()
	yes := contents.AutoConfirmer{Answer: true}
	no := contents.AutoConfirmer{}

	if ok, _ := yes.ConfirmOverwrite(ctx, "x"); !ok {
		t.Error("yes.ConfirmOverwrite = false")
	}
	if ok, _ := no.ConfirmLargeUpload(ctx, "x", 1); ok {
		t.Error("no.ConfirmLargeUpload = true")
	}
	if ok, _ := no.Confirm(ctx, "Delete", "sure?"); ok {
		t.Error("no.Confirm = true")
	}
}
