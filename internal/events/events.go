// Package events carries notifications from the tree and upload engines to
// whatever front end is attached (terminal progress bars, the HTTP sidecar).
package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale/notebook-filetree/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventLog   EventType = "log"
	EventError EventType = "error"

	// Tree events
	EventTreeRefreshed    EventType = "tree_refreshed"    // Full rebuild finished
	EventDirectoryToggled EventType = "directory_toggled" // Expand or collapse
	EventStateChanged     EventType = "state_changed"     // DirectoryState written or dropped
	EventSelectionChanged EventType = "selection_changed" // Selection or context path changed

	// Upload events
	EventUploadStarted  EventType = "upload_started"
	EventUploadProgress EventType = "upload_progress"
	EventUploadFinished EventType = "upload_finished"
	EventUploadFailed   EventType = "upload_failed"
)

// LogLevel defines log severity levels
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase stamps an event of the given type with the current time
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// LogEvent represents log messages
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	Path    string
	Error   error
}

// TreeEvent reports a rebuild or a toggle
type TreeEvent struct {
	BaseEvent
	Path string // toggled directory; "" for a full refresh
	Open bool
	Rows int // rendered rows after the operation
}

// StateEvent reports a DirectoryState write or removal
type StateEvent struct {
	BaseEvent
	Path    string
	IsOpen  bool
	Removed bool
}

// SelectionEvent reports a selection or context-menu target change
type SelectionEvent struct {
	BaseEvent
	Path    string
	Context bool // true for the context-menu target, false for the selection
}

// UploadEvent represents the lifecycle of one upload
type UploadEvent struct {
	BaseEvent
	ID       string  // Upload ID
	Path     string  // Destination path
	Size     int64   // File size in bytes
	Progress float64 // 0.0 to 1.0
	Chunked  bool
	Error    error // Set on failure
}

// EventBus fans events out to buffered subscriber channels. Publishing
// never blocks: an event that does not fit a subscriber's buffer is dropped
// for that subscriber and counted.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscriber
	buffer int
	closed bool

	dropped atomic.Int64
}

// subscriber is one channel and the event type it wants. An empty kind
// receives every event.
type subscriber struct {
	ch   chan Event
	kind EventType
}

func (s subscriber) wants(t EventType) bool {
	return s.kind == "" || s.kind == t
}

// NewEventBus creates a bus whose subscriber channels hold bufferSize
// events. Non-positive sizes use the default; sizes above the maximum are
// capped.
func NewEventBus(bufferSize int) *EventBus {
	switch {
	case bufferSize <= 0:
		bufferSize = constants.EventBusDefaultBuffer
	case bufferSize > constants.EventBusMaxBuffer:
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{buffer: bufferSize}
}

func (eb *EventBus) subscribe(kind EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	ch := make(chan Event, eb.buffer)
	eb.subs = append(eb.subs, subscriber{ch: ch, kind: kind})
	return ch
}

// Subscribe returns a channel receiving events of one type. On a closed bus
// the channel is already closed.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	return eb.subscribe(eventType)
}

// SubscribeAll returns a channel receiving every event.
func (eb *EventBus) SubscribeAll() <-chan Event {
	return eb.subscribe("")
}

// Publish delivers event to every interested subscriber. A nil bus
// discards it.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}
	t := event.Type()
	for _, s := range eb.subs {
		if !s.wants(t) {
			continue
		}
		select {
		case s.ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Later calls are no-ops.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true
	for _, s := range eb.subs {
		close(s.ch)
	}
	eb.subs = nil
}

// PublishLog is a convenience method for publishing log events
func (eb *EventBus) PublishLog(level LogLevel, message, path string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: NewBase(EventLog),
		Level:     level,
		Message:   message,
		Path:      path,
		Error:     err,
	})
}

// PublishUpload is a convenience method for the upload lifecycle events
func (eb *EventBus) PublishUpload(t EventType, id, path string, size int64, progress float64, chunked bool, err error) {
	eb.Publish(&UploadEvent{
		BaseEvent: NewBase(t),
		ID:        id,
		Path:      path,
		Size:      size,
		Progress:  progress,
		Chunked:   chunked,
		Error:     err,
	})
}

// Unsubscribe stops delivery of eventType to ch. The channel is left open
// so a reader draining it is not surprised by a zero value.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.remove(func(s subscriber) bool {
		return s.kind == eventType && (<-chan Event)(s.ch) == ch
	})
}

// UnsubscribeAll stops every delivery to ch.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.remove(func(s subscriber) bool {
		return (<-chan Event)(s.ch) == ch
	})
}

func (eb *EventBus) remove(match func(subscriber) bool) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.subs = slices.DeleteFunc(eb.subs, match)
}

// GetDroppedEventCount returns how many deliveries were dropped on full
// buffers.
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.dropped.Load()
}
