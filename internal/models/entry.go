package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntryType is the kind of a content entry
type EntryType string

const (
	TypeFile      EntryType = "file"
	TypeDirectory EntryType = "directory"
	TypeNotebook  EntryType = "notebook"
)

// Content formats
const (
	FormatText   = "text"
	FormatBase64 = "base64"
	FormatJSON   = "json"
)

// Entry is one item of the remote content store: a file, notebook or
// directory. JSON shape follows the notebook server's contents API.
//
// When fetched with content, a directory carries its listing in Children and
// a file carries its payload in Data (raw text, or base64 when Format is
// "base64").
type Entry struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Type         EntryType `json:"type"`
	Writable     bool      `json:"writable"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
	Size         *int64    `json:"size"`
	Mimetype     string    `json:"mimetype,omitempty"`
	Format       string    `json:"format,omitempty"`

	Children []Entry `json:"-"`
	Data     string  `json:"-"`
	// HasContent is true when the entry was fetched with content
	HasContent bool `json:"-"`
}

// IsDir reports whether the entry is a directory
func (e *Entry) IsDir() bool {
	return e.Type == TypeDirectory
}

// SizeOrZero returns the size, treating a missing size as zero
func (e *Entry) SizeOrZero() int64 {
	if e.Size == nil {
		return 0
	}
	return *e.Size
}

type entryAlias Entry

type entryWire struct {
	*entryAlias
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON decodes the polymorphic "content" field
func (e *Entry) UnmarshalJSON(data []byte) error {
	wire := entryWire{entryAlias: (*entryAlias)(e)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	e.Children = nil
	e.Data = ""
	e.HasContent = false
	if len(wire.Content) == 0 || string(wire.Content) == "null" {
		return nil
	}
	e.HasContent = true

	switch {
	case e.Type == TypeDirectory:
		if err := json.Unmarshal(wire.Content, &e.Children); err != nil {
			return fmt.Errorf("failed to decode directory listing for %q: %w", e.Path, err)
		}
	case wire.Content[0] == '"':
		if err := json.Unmarshal(wire.Content, &e.Data); err != nil {
			return fmt.Errorf("failed to decode content for %q: %w", e.Path, err)
		}
	default:
		// Notebook JSON content is kept verbatim.
		e.Data = string(wire.Content)
	}
	return nil
}

// MarshalJSON encodes Children or Data back into "content"
func (e Entry) MarshalJSON() ([]byte, error) {
	wire := entryWire{entryAlias: (*entryAlias)(&e)}
	switch {
	case !e.HasContent:
		wire.Content = json.RawMessage("null")
	case e.IsDir():
		children := e.Children
		if children == nil {
			children = []Entry{}
		}
		raw, err := json.Marshal(children)
		if err != nil {
			return nil, err
		}
		wire.Content = raw
	case e.Format == FormatJSON:
		wire.Content = json.RawMessage(e.Data)
	default:
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		wire.Content = raw
	}
	return json.Marshal(wire)
}

// SaveModel is the body of a contents save request. Chunk is zero for a
// single-shot save, 1..n for intermediate chunks and -1 for the last chunk.
type SaveModel struct {
	Name    string    `json:"name,omitempty"`
	Path    string    `json:"path,omitempty"`
	Type    EntryType `json:"type"`
	Format  string    `json:"format,omitempty"`
	Content *string   `json:"content,omitempty"`
	Chunk   int       `json:"chunk,omitempty"`
}

// IsChunk reports whether the model is part of a chunked upload
func (m *SaveModel) IsChunk() bool {
	return m.Chunk != 0
}

// IsLastChunk reports whether the model is the final chunk
func (m *SaveModel) IsLastChunk() bool {
	return m.Chunk < 0
}
