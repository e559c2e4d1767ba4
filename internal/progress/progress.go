// Package progress reports transfer progress on the terminal: mpb bars for
// uploads and a progressbar bar for downloads and zip exports.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives byte progress for a single transfer.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// CLIProgress reports progress with a terminal progress bar.
type CLIProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a reporter writing to stderr.
func NewCLIProgress() *CLIProgress {
	return NewCLIProgressTo(os.Stderr)
}

// NewCLIProgressTo creates a reporter writing to out.
func NewCLIProgressTo(out io.Writer) *CLIProgress {
	return &CLIProgress{out: out}
}

// Start initializes the bar. A negative total draws a spinner, which is
// what folder exports use since the zip size is unknown up front.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(p.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to current.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error prints err below the bar.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "\nError: %v\n", err)
	}
}

// NoOpProgress discards progress, for --quiet and non-interactive runs.
type NoOpProgress struct{}

func (NoOpProgress) Start(int64, string) {}
func (NoOpProgress) Update(int64)        {}
func (NoOpProgress) Finish()             {}
func (NoOpProgress) Error(error)         {}

// Writer wraps an io.Writer and reports the bytes written through it.
type Writer struct {
	w        io.Writer
	reporter Reporter
	current  int64
}

// NewWriter creates a progress-reporting writer.
func NewWriter(w io.Writer, reporter Reporter) *Writer {
	return &Writer{w: w, reporter: reporter}
}

// Write implements io.Writer.
func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.current += int64(n)
	pw.reporter.Update(pw.current)
	return n, err
}

// Written returns the number of bytes written so far.
func (pw *Writer) Written() int64 {
	return pw.current
}
