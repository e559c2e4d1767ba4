// Package render formats tree rows for display: the size, modified and
// permission columns and a terminal table that follows the tree's render
// instructions.
package render

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/models"
)

// Permission column values.
const (
	PermWritable = "Writable"
	PermReadable = "Readable"
	PermLocked   = "Locked"
)

// TimeLayout is the modified column layout.
const TimeLayout = "2006-01-02 15:04"

var sizeUnits = []string{" KB", " MB", " GB", " TB"}

// FileSize formats a size for the size column. Sizes below 1024 are shown in
// bytes; larger sizes are divided by 1024 until they fit and printed with one
// decimal. A missing size renders as an empty cell.
func FileSize(size *int64) string {
	if size == nil {
		return ""
	}
	n := *size
	if n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}

	v := float64(n)
	i := -1
	for {
		v /= 1024
		i++
		if v <= 1024 || i == len(sizeUnits)-1 {
			break
		}
	}
	if v < 0.1 {
		v = 0.1
	}
	return strconv.FormatFloat(v, 'f', 1, 64) + sizeUnits[i]
}

// Modified formats a timestamp for the modified column. With relative set
// the value reads like "3 minutes ago".
func Modified(t time.Time, relative bool) string {
	if t.IsZero() {
		return ""
	}
	if relative {
		return humanize.Time(t)
	}
	return t.Local().Format(TimeLayout)
}

// Count formats a row or file count with thousands separators.
func Count(n int, noun string) string {
	if n != 1 {
		noun += "s"
	}
	return fmt.Sprintf("%s %s", humanize.Comma(int64(n)), noun)
}

// Permission resolves the permission column for entry. Writable entries are
// reported as such; anything else is probed with a metadata Get and is
// Readable when the probe succeeds and Locked when it fails.
func Permission(ctx context.Context, store contents.Store, entry models.Entry) string {
	if entry.Writable {
		return PermWritable
	}
	if _, err := store.Get(ctx, entry.Path, contents.GetOptions{}); err != nil {
		return PermLocked
	}
	return PermReadable
}
