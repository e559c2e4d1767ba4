// Package pathutil composes and decomposes the slash-separated paths of the
// remote content store, and resolves local filesystem paths for the CLI.
//
// Remote paths are held as ordered segments so ancestor tests compare whole
// segments: "foo" is an ancestor of "foo/x" but never of "foo2".
package pathutil

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Path is a normalized remote path. The zero value is the root.
type Path struct {
	segs []string
}

// Parse normalizes s into a Path. Leading, trailing and repeated slashes
// and "." segments are dropped.
func Parse(s string) Path {
	if s == "" {
		return Path{}
	}
	parts := strings.Split(s, "/")
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		segs = append(segs, part)
	}
	return Path{segs: segs}
}

// String returns the canonical form, with no leading slash. Root is "".
func (p Path) String() string {
	return strings.Join(p.segs, "/")
}

// IsRoot reports whether p is the root.
func (p Path) IsRoot() bool {
	return len(p.segs) == 0
}

// Len returns the number of segments.
func (p Path) Len() int {
	return len(p.segs)
}

// Segments returns a copy of the segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segs))
	copy(out, p.segs)
	return out
}

// Base returns the last segment, or "" for the root.
func (p Path) Base() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[len(p.segs)-1]
}

// Dir returns the parent path. The parent of the root is the root.
func (p Path) Dir() Path {
	if len(p.segs) <= 1 {
		return Path{}
	}
	return Path{segs: p.segs[:len(p.segs)-1 : len(p.segs)-1]}
}

// Join appends names (each of which may itself contain slashes).
func (p Path) Join(names ...string) Path {
	segs := p.Segments()
	for _, name := range names {
		segs = append(segs, Parse(name).segs...)
	}
	return Path{segs: segs}
}

// Equal reports whether p and q name the same path.
func (p Path) Equal(q Path) bool {
	if len(p.segs) != len(q.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != q.segs[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether anc equals p or is a segment-wise ancestor of p.
func (p Path) HasPrefix(anc Path) bool {
	if len(anc.segs) > len(p.segs) {
		return false
	}
	for i := range anc.segs {
		if anc.segs[i] != p.segs[i] {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether p lies strictly below anc.
func (p Path) IsDescendantOf(anc Path) bool {
	return len(p.segs) > len(anc.segs) && p.HasPrefix(anc)
}

// Rebase moves p from under oldPrefix to under newPrefix. ok is false when
// p is not oldPrefix or one of its descendants.
func (p Path) Rebase(oldPrefix, newPrefix Path) (Path, bool) {
	if !p.HasPrefix(oldPrefix) {
		return p, false
	}
	segs := newPrefix.Segments()
	segs = append(segs, p.segs[len(oldPrefix.segs):]...)
	return Path{segs: segs}, true
}

// Normalize returns the canonical string form of s.
func Normalize(s string) string {
	return Parse(s).String()
}

// Join joins dir and name into a canonical path.
func Join(dir, name string) string {
	return Parse(dir).Join(name).String()
}

// Dir returns the canonical parent of s.
func Dir(s string) string {
	return Parse(s).Dir().String()
}

// Base returns the last segment of s.
func Base(s string) string {
	return Parse(s).Base()
}

// SegmentCount returns the number of segments in s. The root has zero.
func SegmentCount(s string) int {
	return Parse(s).Len()
}

// IsAncestor reports whether anc equals p or is a segment-wise ancestor of it.
func IsAncestor(anc, p string) bool {
	return Parse(p).HasPrefix(Parse(anc))
}

// IsDescendant reports whether p lies strictly below anc.
func IsDescendant(p, anc string) bool {
	return Parse(p).IsDescendantOf(Parse(anc))
}

// Rebase moves p from under oldPrefix to under newPrefix.
func Rebase(p, oldPrefix, newPrefix string) (string, bool) {
	out, ok := Parse(p).Rebase(Parse(oldPrefix), Parse(newPrefix))
	return out.String(), ok
}

// Ancestors returns every non-root prefix of p, shortest first, including p.
// Ancestors("a/b/c") is ["a", "a/b", "a/b/c"].
func Ancestors(p string) []string {
	parsed := Parse(p)
	out := make([]string, 0, parsed.Len())
	for i := 1; i <= parsed.Len(); i++ {
		out = append(out, Path{segs: parsed.segs[:i]}.String())
	}
	return out
}

// EncodeKey turns a path into an identifier that is safe to use as a row or
// element key. Keys are unpadded URL-safe base64 of the canonical path.
func EncodeKey(p string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(Normalize(p)))
}

// DecodeKey reverses EncodeKey.
func DecodeKey(key string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("invalid row key %q: %w", key, err)
	}
	return string(raw), nil
}
