package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/upload"
)

// UploadUI shows one progress bar per upload, driven by the upload events
// the pipeline publishes.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	bars       sync.Map // upload ID -> *FileBar
	isTerminal bool
	totalFiles int
	started    int32
	completed  int32
	failed     int32
}

// FileBar is a single upload's progress bar.
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	path       string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates an upload UI on stderr for totalFiles uploads.
func NewUploadUI(totalFiles int) *UploadUI {
	return newUploadUI(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), totalFiles)
}

func newUploadUI(out io.Writer, isTerminal bool, totalFiles int) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	}
	return &UploadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a progress bar for the upload with the given ID.
func (u *UploadUI) AddFileBar(id, path string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	fb := &FileBar{
		ui:         u,
		index:      index,
		path:       path,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	label := fmt.Sprintf("[%d/%d] %s (%s)", index, u.totalFiles, path, humanize.IBytes(uint64(size)))
	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(decor.Name(label, decor.WCSyncSpace)),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading %s\n", label)
	}

	u.bars.Store(id, fb)
	return fb
}

// UpdateProgress moves the bar to fraction (0.0 to 1.0) of the file.
func (f *FileBar) UpdateProgress(fraction float64) {
	if f.bar == nil {
		return
	}
	now := time.Now()
	current := int64(fraction * float64(f.size))
	f.bar.EwmaIncrBy(int(current-f.lastBytes), now.Sub(f.lastUpdate))
	f.lastBytes = current
	f.lastUpdate = now
}

// Complete finishes the bar and prints a one-line summary.
func (f *FileBar) Complete(err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}
		var speed float64
		if s := elapsed.Seconds(); s > 0 {
			speed = float64(f.size) / s
		}
		msg = fmt.Sprintf("✓ %s (%s, %s, %s/s)\n",
			f.path, humanize.IBytes(uint64(f.size)), elapsed.Round(time.Millisecond), humanize.IBytes(uint64(speed)))
		atomic.AddInt32(&f.ui.completed, 1)
	} else {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		msg = fmt.Sprintf("✗ %s: %v\n", f.path, err)
		atomic.AddInt32(&f.ui.failed, 1)
	}
	f.ui.Writer().Write([]byte(msg))
}

// Follow drives the bars from bus until the returned stop function is
// called. Cancelled uploads are closed without a failure line.
func (u *UploadUI) Follow(bus *events.EventBus) (stop func()) {
	ch := bus.SubscribeAll()
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				// Events already queued still belong to this run.
				for {
					select {
					case e, ok := <-ch:
						if !ok {
							return
						}
						u.dispatch(e)
					default:
						return
					}
				}
			case e, ok := <-ch:
				if !ok {
					return
				}
				u.dispatch(e)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
			bus.UnsubscribeAll(ch)
		})
	}
}

func (u *UploadUI) dispatch(e events.Event) {
	if ue, ok := e.(*events.UploadEvent); ok {
		u.handle(ue)
	}
}

func (u *UploadUI) handle(e *events.UploadEvent) {
	switch e.Type() {
	case events.EventUploadStarted:
		u.AddFileBar(e.ID, e.Path, e.Size)
	case events.EventUploadProgress:
		if fb, ok := u.bar(e.ID); ok {
			fb.UpdateProgress(e.Progress)
		}
	case events.EventUploadFinished, events.EventUploadFailed:
		fb, ok := u.bar(e.ID)
		if !ok {
			return
		}
		u.bars.Delete(e.ID)
		if e.Error != nil && upload.IsCancelled(e.Error) {
			if fb.bar != nil {
				fb.bar.Abort(true)
			}
			return
		}
		fb.Complete(e.Error)
	}
}

func (u *UploadUI) bar(id string) (*FileBar, bool) {
	v, ok := u.bars.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*FileBar), true
}

// Counts returns the number of uploads started, completed and failed.
func (u *UploadUI) Counts() (started, completed, failed int) {
	return int(atomic.LoadInt32(&u.started)), int(atomic.LoadInt32(&u.completed)), int(atomic.LoadInt32(&u.failed))
}

// Wait blocks until all progress bars complete.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether progress bars are drawn.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}
