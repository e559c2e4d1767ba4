package contents

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rescale/notebook-filetree/internal/models"
)

// UntitledName returns the n-th candidate name for a new untitled entry,
// following the notebook server: "Untitled Folder", "Untitled Folder 1", ...
// for directories and "untitled", "untitled1", ... for files.
func UntitledName(typ models.EntryType, n int) string {
	if typ == models.TypeDirectory {
		if n == 0 {
			return "Untitled Folder"
		}
		return fmt.Sprintf("Untitled Folder %d", n)
	}
	if n == 0 {
		return "untitled"
	}
	return fmt.Sprintf("untitled%d", n)
}

// TypeForPath infers the entry type of a file from its name.
func TypeForPath(path string) models.EntryType {
	if strings.HasSuffix(path, ".ipynb") {
		return models.TypeNotebook
	}
	return models.TypeFile
}

// DecodeSaveContent returns the raw bytes carried by a save model.
func DecodeSaveContent(model *models.SaveModel) ([]byte, error) {
	if model.Content == nil {
		return nil, nil
	}
	if model.Format != models.FormatBase64 {
		return []byte(*model.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(*model.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("bad base64 content: %w", err)
	}
	return data, nil
}

// SetPayload stores data on a file entry in the requested format. An empty
// format picks text for valid UTF-8 and base64 otherwise.
func SetPayload(entry *models.Entry, data []byte, format string) {
	if format == "" {
		format = models.FormatText
		if !utf8.Valid(data) {
			format = models.FormatBase64
		}
	}
	entry.Format = format
	entry.HasContent = true
	if format == models.FormatBase64 {
		entry.Data = base64.StdEncoding.EncodeToString(data)
	} else {
		entry.Data = string(data)
	}
}
