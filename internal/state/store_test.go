package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/rescale/notebook-filetree/internal/events"
)

func TestGetSetDelete(t *testing.T) {
	s := NewStore(nil)

	if _, ok := s.Get("a"); ok {
		t.Fatal("empty store should not have a")
	}

	mod := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.Set("/a/", DirectoryState{LastModified: mod, IsOpen: true})

	st, ok := s.Get("a")
	if !ok || !st.IsOpen || !st.LastModified.Equal(mod) {
		t.Errorf("Get(a) = %+v, %v; want open with %v", st, ok, mod)
	}

	// Set is an idempotent overwrite.
	s.Set("a", DirectoryState{LastModified: mod, IsOpen: true})
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}

	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Error("a should be gone after Delete")
	}
}

func TestRewriteSubtreeIsSegmentExact(t *testing.T) {
	s := NewStore(nil)
	for _, p := range []string{"/foo", "/foo/x", "/foo/x/y", "/foo2", "/foobar/x", "/other"} {
		s.Set(p, DirectoryState{IsOpen: true})
	}

	n := s.RewriteSubtree("/foo", "/bar")
	if n != 3 {
		t.Errorf("RewriteSubtree affected %d keys, want 3", n)
	}

	want := []string{"bar", "bar/x", "bar/x/y", "foo2", "foobar/x", "other"}
	if got := s.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths = %v, want %v", got, want)
	}
}

func TestRewriteSubtreeDrop(t *testing.T) {
	s := NewStore(nil)
	for _, p := range []string{"", "d", "d/e", "d2"} {
		s.Set(p, DirectoryState{})
	}

	s.RewriteSubtree("d", "")

	want := []string{"", "d2"}
	if got := s.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths = %v, want %v", got, want)
	}
}

func TestRewriteSubtreeKeepsState(t *testing.T) {
	s := NewStore(nil)
	mod := time.Unix(1000, 0)
	s.Set("a/b", DirectoryState{LastModified: mod, IsOpen: true, Loaded: true})

	s.RewriteSubtree("a", "z/a")

	st, ok := s.Get("z/a/b")
	if !ok || !st.IsOpen || !st.Loaded || !st.LastModified.Equal(mod) {
		t.Errorf("Get(z/a/b) = %+v, %v; want state carried over", st, ok)
	}
}

func TestRewriteRootIsIgnored(t *testing.T) {
	s := NewStore(nil)
	s.Set("", DirectoryState{IsOpen: true})
	s.Set("a", DirectoryState{})

	if n := s.RewriteSubtree("", ""); n != 0 {
		t.Errorf("RewriteSubtree(root) affected %d keys, want 0", n)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestUpdateLastModifiedOnlyIfNewer(t *testing.T) {
	s := NewStore(nil)
	old := time.Unix(100, 0)
	s.Set("d", DirectoryState{LastModified: old})

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"older", time.Unix(50, 0), false},
		{"same", old, false},
		{"newer", time.Unix(200, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.UpdateLastModified("d", tt.t); got != tt.want {
				t.Errorf("UpdateLastModified = %v, want %v", got, tt.want)
			}
		})
	}

	if s.UpdateLastModified("untracked", time.Unix(999, 0)) {
		t.Error("untracked paths must not be created")
	}
}

func TestOpenPathsShallowestFirst(t *testing.T) {
	s := NewStore(nil)
	s.Set("", DirectoryState{IsOpen: true})
	s.Set("b/c/d", DirectoryState{IsOpen: true})
	s.Set("a", DirectoryState{IsOpen: true})
	s.Set("b", DirectoryState{IsOpen: true})
	s.Set("b/c", DirectoryState{IsOpen: false})
	s.Set("a/x", DirectoryState{IsOpen: true})

	want := []string{"a", "b", "a/x", "b/c/d"}
	if got := s.OpenPaths(); !reflect.DeepEqual(got, want) {
		t.Errorf("OpenPaths = %v, want %v", got, want)
	}
}

func TestSetIfAbsentAndResetLoaded(t *testing.T) {
	s := NewStore(nil)
	s.Set("a", DirectoryState{IsOpen: true, Loaded: true})

	if s.SetIfAbsent("a", DirectoryState{}) {
		t.Error("SetIfAbsent should not overwrite")
	}
	if !s.SetIfAbsent("b", DirectoryState{}) {
		t.Error("SetIfAbsent should create b")
	}

	s.ResetLoaded()
	st, _ := s.Get("a")
	if st.Loaded || !st.IsOpen {
		t.Errorf("after ResetLoaded a = %+v, want open and not loaded", st)
	}
}

func TestStateEventsPublished(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventStateChanged)

	s := NewStore(bus)
	s.SetOpen("a", true)
	s.Delete("a")

	first := (<-ch).(*events.StateEvent)
	if first.Path != "a" || !first.IsOpen || first.Removed {
		t.Errorf("first event = %+v, want open a", first)
	}
	second := (<-ch).(*events.StateEvent)
	if second.Path != "a" || !second.Removed {
		t.Errorf("second event = %+v, want removal of a", second)
	}
}
