package router

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/goph-landing/internal/model"
)

// EventType names an interaction event delivered by a Surface.
type EventType string

const (
	EventClick         EventType = "click"
	EventMouseDown     EventType = "mousedown"
	EventMouseUp       EventType = "mouseup"
	EventTouchStart    EventType = "touchstart"
	EventTouchEnd      EventType = "touchend"
	EventTouchCancel   EventType = "touchcancel"
	EventPointerDown   EventType = "pointerdown"
	EventPointerUp     EventType = "pointerup"
	EventPointerCancel EventType = "pointercancel"
	EventContextMenu   EventType = "contextmenu"
)

// Point is a viewport coordinate in CSS pixels.
type Point struct{ X, Y float64 }

// Event is one interaction. A zero At means "now" on the router clock.
type Event struct {
	Type  EventType
	Point Point
	At    time.Time
}

// Handler receives bound events.
type Handler func(Event)

// FocusChange is a page visibility or focus signal used by the deeplink heuristic.
type FocusChange int

const (
	// FocusHidden: the document became hidden (app switch).
	FocusHidden FocusChange = iota + 1
	// FocusBlur: the window lost focus.
	FocusBlur
)

// Surface is the interactive document the router binds to.
type Surface interface {
	// Bind attaches h for every listed event type; unbind removes exactly those listeners.
	Bind(types []EventType, h Handler) (unbind func())
	// SupportsPointer reports whether pointer events are available.
	SupportsPointer() bool
	// WatchFocus subscribes to visibility/blur signals until stop is called.
	WatchFocus() (signals <-chan FocusChange, stop func())
	// ShowError renders a user-facing message in the error area.
	ShowError(msg string)
}

// Navigator performs the actual navigation.
type Navigator interface {
	// Navigate replaces the current location.
	Navigate(ctx context.Context, url string) error
	// OpenDeeplink starts a deeplink attempt (hidden frame); release tears it down.
	OpenDeeplink(ctx context.Context, url string) (release func(), err error)
}

// Reporter is the analytics/error sink. All methods must be safe to call concurrently.
type Reporter interface {
	RecordAction(ctx context.Context, rec model.ActionRecord)
	RecordNavigation(ctx context.Context, actionType, targetURL string, isDeeplink bool)
	RecordError(ctx context.Context, err error, label string)
}

type nopReporter struct{}

func (nopReporter) RecordAction(context.Context, model.ActionRecord)        {}
func (nopReporter) RecordNavigation(context.Context, string, string, bool) {}
func (nopReporter) RecordError(context.Context, error, string)             {}

// ManualSurface is a Surface driven programmatically: callers Dispatch events and Signal focus changes.
// It backs the headless CLI session, the HTTP click endpoint and tests.
type ManualSurface struct {
	mu       sync.Mutex
	pointer  bool
	handler  Handler
	types    map[EventType]bool
	binds    int
	watchers map[int]chan FocusChange
	nextID   int
	errMsg   string

	// OnError, if set, is called from ShowError.
	OnError func(msg string)
}

// NewManualSurface returns a surface; pointer controls SupportsPointer.
func NewManualSurface(pointer bool) *ManualSurface {
	return &ManualSurface{pointer: pointer, watchers: map[int]chan FocusChange{}}
}

// Bind implements Surface.
func (s *ManualSurface) Bind(types []EventType, h Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds++
	s.handler = h
	s.types = make(map[EventType]bool, len(types))
	for _, t := range types {
		s.types[t] = true
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.handler = nil
		s.types = nil
	}
}

// SupportsPointer implements Surface.
func (s *ManualSurface) SupportsPointer() bool { return s.pointer }

// WatchFocus implements Surface.
func (s *ManualSurface) WatchFocus() (<-chan FocusChange, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan FocusChange, 4)
	s.watchers[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

// ShowError implements Surface.
func (s *ManualSurface) ShowError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	cb := s.OnError
	s.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// Dispatch delivers ev to the bound listener. It reports false when nothing listens for ev.Type.
func (s *ManualSurface) Dispatch(ev Event) bool {
	s.mu.Lock()
	h := s.handler
	ok := h != nil && s.types[ev.Type]
	s.mu.Unlock()
	if !ok {
		return false
	}
	h(ev)
	return true
}

// Signal delivers c to every active focus watcher without blocking.
func (s *ManualSurface) Signal(c FocusChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}

// Watchers returns the number of active focus subscriptions.
func (s *ManualSurface) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// ErrorMessage returns the last message passed to ShowError.
func (s *ManualSurface) ErrorMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Bound reports whether a listener set is attached.
func (s *ManualSurface) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}

// BindCount returns how many times Bind was called.
func (s *ManualSurface) BindCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binds
}
