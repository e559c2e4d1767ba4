package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/rescale/notebook-filetree/internal/constants"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/contents/memstore"
	"github.com/rescale/notebook-filetree/internal/events"
	"github.com/rescale/notebook-filetree/internal/models"
)

// scriptedConfirmer answers each kind of question with a fixed value and
// records what it was asked.
type scriptedConfirmer struct {
	large, overwrite bool
	asked            []string
}

func (s *scriptedConfirmer) ConfirmLargeUpload(_ context.Context, name string, _ int64) (bool, error) {
	s.asked = append(s.asked, "large:"+name)
	return s.large, nil
}

func (s *scriptedConfirmer) ConfirmOverwrite(_ context.Context, path string) (bool, error) {
	s.asked = append(s.asked, "overwrite:"+path)
	return s.overwrite, nil
}

func (s *scriptedConfirmer) Confirm(context.Context, string, string) (bool, error) {
	return true, nil
}

func fileOf(name string, data []byte) File {
	return File{Name: name, Size: int64(len(data)), Data: bytes.NewReader(data)}
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func decodeSave(t *testing.T, m models.SaveModel) []byte {
	t.Helper()
	if m.Format != models.FormatBase64 || m.Content == nil {
		t.Fatalf("save model %+v is not base64", m)
	}
	data, err := base64.StdEncoding.DecodeString(*m.Content)
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	return data
}

func TestChunkOrderingTwoAndAHalfChunks(t *testing.T) {
	mem := memstore.New()
	mem.MkdirAll("dst")
	bus := events.NewEventBus(100)
	defer bus.Close()
	progressCh := bus.Subscribe(events.EventUploadProgress)
	finishedCh := bus.Subscribe(events.EventUploadFinished)

	p := NewPipeline(mem, Options{EventBus: bus, ChunkSize: 4, LargeFileThreshold: 100})
	data := []byte("0123456789") // 2.5 chunks

	entry, err := p.Upload(context.Background(), fileOf("f.bin", data), "dst")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if entry.Path != "dst/f.bin" {
		t.Errorf("path = %q, want dst/f.bin", entry.Path)
	}

	saves := mem.Saves()
	if len(saves) != 3 {
		t.Fatalf("saves = %d, want 3", len(saves))
	}
	wantChunks := []int{1, 2, constants.LastChunk}
	wantData := []string{"0123", "4567", "89"}
	for i, s := range saves {
		if s.Chunk != wantChunks[i] {
			t.Errorf("save %d chunk = %d, want %d", i, s.Chunk, wantChunks[i])
		}
		if got := string(decodeSave(t, s)); got != wantData[i] {
			t.Errorf("save %d data = %q, want %q", i, got, wantData[i])
		}
	}

	stored, _ := mem.FileData("dst/f.bin")
	if !bytes.Equal(stored, data) {
		t.Errorf("stored = %q, want %q", stored, data)
	}

	var progress []float64
	for _, e := range drain(progressCh) {
		progress = append(progress, e.(*events.UploadEvent).Progress)
	}
	if len(progress) != 2 {
		t.Fatalf("progress updates = %v, want 2", progress)
	}
	for i, v := range progress {
		if v < 0 || v >= 1 {
			t.Errorf("progress[%d] = %v, want in [0,1)", i, v)
		}
		if i > 0 && v <= progress[i-1] {
			t.Errorf("progress not increasing: %v", progress)
		}
	}
	if len(drain(finishedCh)) != 1 {
		t.Error("expected one finish event")
	}
	if n := len(p.Pending()); n != 0 {
		t.Errorf("pending = %d after completion, want 0", n)
	}
}

func TestCancellationMidUpload(t *testing.T) {
	mem := memstore.New()
	bus := events.NewEventBus(100)
	defer bus.Close()
	failedCh := bus.Subscribe(events.EventUploadFailed)

	p := NewPipeline(mem, Options{EventBus: bus, ChunkSize: 4, LargeFileThreshold: 100})
	sawPending := false
	mem.OnSave = func(_ context.Context, path string, m *models.SaveModel) error {
		if m.Chunk == 1 {
			pending := p.Pending()
			sawPending = len(pending) == 1 && pending[0].Path == "f.bin" && pending[0].ID != ""
			p.Dispose()
		}
		return nil
	}

	_, err := p.Upload(context.Background(), fileOf("f.bin", []byte("0123456789")), "")
	if !errors.Is(err, ErrDisposed) || !IsCancelled(err) {
		t.Fatalf("err = %v, want ErrDisposed", err)
	}
	if !sawPending {
		t.Error("PendingUpload should exist while chunk 1 is in flight")
	}
	if n := len(mem.Saves()); n != 1 {
		t.Errorf("saves = %d, want only chunk 1", n)
	}
	if n := len(p.Pending()); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	if len(drain(failedCh)) != 1 {
		t.Error("expected one failure event")
	}

	if _, err := p.Upload(context.Background(), fileOf("g", []byte("x")), ""); !errors.Is(err, ErrDisposed) {
		t.Errorf("upload after dispose err = %v, want ErrDisposed", err)
	}
}

func TestContextCancelledMidUpload(t *testing.T) {
	mem := memstore.New()
	p := NewPipeline(mem, Options{ChunkSize: 4, LargeFileThreshold: 100})

	ctx, cancel := context.WithCancel(context.Background())
	mem.OnSave = func(_ context.Context, _ string, m *models.SaveModel) error {
		if m.Chunk == 1 {
			cancel()
		}
		return nil
	}

	_, err := p.Upload(ctx, fileOf("f", []byte("0123456789")), "")
	if !IsCancelled(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want cancellation", err)
	}
}

func TestChunkFailureRemovesPending(t *testing.T) {
	mem := memstore.New()
	p := NewPipeline(mem, Options{ChunkSize: 4, LargeFileThreshold: 100})
	boom := &contents.StatusError{Op: "save", Path: "f", Code: 500}
	mem.OnSave = func(_ context.Context, _ string, m *models.SaveModel) error {
		if m.Chunk == 2 {
			return boom
		}
		return nil
	}

	_, err := p.Upload(context.Background(), fileOf("f", []byte("0123456789")), "")
	if !errors.Is(err, boom) || IsCancelled(err) {
		t.Fatalf("err = %v, want the chunk failure", err)
	}
	if n := len(p.Pending()); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
	if n := len(mem.Saves()); n != 1 {
		t.Errorf("saves = %d, want 1 (no chunks after the failure)", n)
	}
}

func TestUploadPolicy(t *testing.T) {
	tests := []struct {
		name      string
		chunking  bool
		chunked   string
		size      int
		large     bool
		wantErr   error
		wantSaves int
		wantChunk int
	}{
		{"small single shot", true, ChunkedAuto, 3, true, nil, 1, 0},
		{"exactly one chunk", true, ChunkedAuto, 4, true, nil, 1, 0},
		{"too large without chunking", false, ChunkedAuto, 20, true, ErrFileTooLarge, 0, 0},
		{"chunking disabled by config", true, ChunkedOff, 20, true, ErrFileTooLarge, 0, 0},
		{"large declined", true, ChunkedAuto, 20, false, ErrCancelled, 0, 0},
		{"large accepted", true, ChunkedAuto, 20, true, nil, 5, 1},
		{"forced on skips the probe", true, ChunkedOn, 6, true, nil, 2, 1},
		{"no chunking under threshold", false, ChunkedAuto, 6, true, nil, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memstore.New()
			mem.SetChunking(tt.chunking)
			conf := &scriptedConfirmer{large: tt.large, overwrite: true}
			p := NewPipeline(mem, Options{Confirmer: conf, ChunkSize: 4, LargeFileThreshold: 16, Chunked: tt.chunked})

			_, err := p.Upload(context.Background(), fileOf("f", bytes.Repeat([]byte("x"), tt.size)), "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			saves := mem.Saves()
			if len(saves) != tt.wantSaves {
				t.Fatalf("saves = %d, want %d", len(saves), tt.wantSaves)
			}
			if tt.wantSaves > 0 && saves[0].Chunk != tt.wantChunk {
				t.Errorf("first chunk = %d, want %d", saves[0].Chunk, tt.wantChunk)
			}
		})
	}
}

func TestOverwriteDeclinedAbortsBatch(t *testing.T) {
	mem := memstore.New()
	mem.WriteFile("d/b.txt", []byte("old"))
	conf := &scriptedConfirmer{large: true, overwrite: false}
	p := NewPipeline(mem, Options{Confirmer: conf})

	files := []File{fileOf("a.txt", []byte("a")), fileOf("b.txt", []byte("b"))}
	_, err := p.UploadFiles(context.Background(), files, "d")
	if !errors.Is(err, ErrNotUploaded) || !IsCancelled(err) {
		t.Fatalf("err = %v, want ErrNotUploaded", err)
	}
	if n := len(mem.Saves()); n != 0 {
		t.Errorf("saves = %d, want 0", n)
	}
	if mem.Exists("d/a.txt") {
		t.Error("a.txt must not be uploaded when the batch is declined")
	}
	if len(conf.asked) != 1 || conf.asked[0] != "overwrite:d/b.txt" {
		t.Errorf("asked = %v, want one overwrite question for d/b.txt", conf.asked)
	}
}

func TestOverwriteAccepted(t *testing.T) {
	mem := memstore.New()
	mem.WriteFile("b.txt", []byte("old"))
	p := NewPipeline(mem, Options{Confirmer: &scriptedConfirmer{overwrite: true}})

	entries, err := p.UploadFiles(context.Background(), []File{fileOf("b.txt", []byte("new"))}, "")
	if err != nil {
		t.Fatalf("UploadFiles: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got, _ := mem.FileData("b.txt"); string(got) != "new" {
		t.Errorf("b.txt = %q, want new", got)
	}
}

func TestUploadRejectsBadName(t *testing.T) {
	p := NewPipeline(memstore.New(), Options{})
	if _, err := p.Upload(context.Background(), fileOf("a/b", []byte("x")), ""); err == nil {
		t.Error("expected a validation error")
	}
}
