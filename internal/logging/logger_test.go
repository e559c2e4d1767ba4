package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rescale/notebook-filetree/internal/events"
)

func TestLogger_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Console: &buf})

	l.Infof("loaded %d rows", 3)

	if !strings.Contains(buf.String(), "loaded 3 rows") {
		t.Errorf("console output = %q, want it to contain the message", buf.String())
	}
}

func TestLogger_SetOutput(t *testing.T) {
	var first, second bytes.Buffer
	l := New(Options{Console: &first})
	l.SetOutput(&second)

	l.Info().Str("path", "docs").Msg("toggled")

	if first.Len() != 0 {
		t.Errorf("old writer received %q", first.String())
	}
	if !strings.Contains(second.String(), "toggled") {
		t.Errorf("new writer output = %q", second.String())
	}
	if l.Output() != &second {
		t.Error("Output() did not return the new writer")
	}
}

func TestLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filetree.log")
	l := New(Options{Console: &bytes.Buffer{}, File: path})

	l.Warnf("disk %s", "slow")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"disk slow"`) {
		t.Errorf("log file = %q, want JSON record", string(data))
	}
}

func TestLogger_EventBusHook(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	l := New(Options{Console: &bytes.Buffer{}, EventBus: bus})
	l.Infof("not forwarded")
	l.Errorf("refresh failed")

	select {
	case ev := <-ch:
		le := ev.(*events.LogEvent)
		if le.Level != events.ErrorLevel || le.Message != "refresh failed" {
			t.Errorf("got %+v, want error 'refresh failed'", le)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no log event forwarded")
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Errorf("dropped")
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
