package contents

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/rescale/notebook-filetree/internal/models"
)

// Download writes the file at path to w. Backends that implement Downloader
// stream the body; others fall back to fetching the content as base64.
func Download(ctx context.Context, store Store, path string, w io.Writer) (int64, error) {
	if d, ok := store.(Downloader); ok {
		return d.Download(ctx, path, w)
	}

	data, err := ReadFile(ctx, store, path)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFile fetches the whole payload of the file at path.
func ReadFile(ctx context.Context, store Store, path string) ([]byte, error) {
	entry, err := store.Get(ctx, path, GetOptions{Content: true, Format: models.FormatBase64, Type: models.TypeFile})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	if entry.IsDir() {
		return nil, fmt.Errorf("failed to read %s: is a directory", path)
	}

	if entry.Format == models.FormatBase64 {
		data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(entry.Data, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return data, nil
	}
	return []byte(entry.Data), nil
}
