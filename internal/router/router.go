// Package router decides what happens when a user, or the auto-click timer, asks to proceed
// past the landing page: deeplink first with click_url fallback, or direct navigation.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
)

// Defaults
const (
	DefaultAutoClickDelay  = 3000 * time.Millisecond
	DefaultDeeplinkTimeout = 2000 * time.Millisecond
	DefaultBlurGrace       = 100 * time.Millisecond
	DefaultMaxTapDuration  = 2000 * time.Millisecond
	DefaultMaxTapMovement  = 30.0 // px

	// ghostClickWindow drops the synthetic click browsers emit right after a routed tap.
	// This narrows "click always routes": a click inside the window after a touch or pointer route is ignored.
	ghostClickWindow = 500 * time.Millisecond

	ActionAutoClick = "auto_click"

	NavigationFailedMessage = "Navigation failed. Please try again."
)

// ErrDestroyed is returned by Initialize after Destroy.
var ErrDestroyed = errors.New("router destroyed")

// State is the router lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateArmed
	StateRouting
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateRouting:
		return "routing"
	case StateDestroyed:
		return "destroyed"
	default:
		return "uninitialized"
	}
}

// Options tune the router; zero values take the defaults above.
type Options struct {
	Clock           clockwork.Clock
	Logger          *zap.Logger
	Reporter        Reporter
	AutoClickDelay  time.Duration
	DeeplinkTimeout time.Duration
	BlurGrace       time.Duration
	MaxTapDuration  time.Duration
	MaxTapMovement  float64
}

type modality string

const (
	inputMouse   modality = "mouse"
	inputTouch   modality = "touch"
	inputPointer modality = "pointer"
)

// interactionState tracks gestures in progress.
type interactionState struct {
	touchActive   bool
	mouseActive   bool
	pointerActive bool
	startTime     time.Time
	startPoint    Point
	lastInput     modality

	lastRouteAt    time.Time
	lastRouteInput modality
}

// Router owns one instruction set and routes interactions for it.
type Router struct {
	surface Surface
	nav     Navigator
	rep     Reporter
	clock   clockwork.Clock
	log     *zap.Logger
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc

	processing atomic.Bool

	mu        sync.Mutex
	set       *model.InstructionSet
	state     interactionState
	bound     bool
	unbind    func()
	timer     clockwork.Timer
	destroyed bool
}

// New constructs a Router bound to a surface and navigator.
func New(surface Surface, nav Navigator, opts Options) *Router {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Reporter == nil {
		opts.Reporter = nopReporter{}
	}
	if opts.AutoClickDelay <= 0 {
		opts.AutoClickDelay = DefaultAutoClickDelay
	}
	if opts.DeeplinkTimeout <= 0 {
		opts.DeeplinkTimeout = DefaultDeeplinkTimeout
	}
	if opts.BlurGrace <= 0 {
		opts.BlurGrace = DefaultBlurGrace
	}
	if opts.MaxTapDuration <= 0 {
		opts.MaxTapDuration = DefaultMaxTapDuration
	}
	if opts.MaxTapMovement <= 0 {
		opts.MaxTapMovement = DefaultMaxTapMovement
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		surface: surface,
		nav:     nav,
		rep:     opts.Reporter,
		clock:   opts.Clock,
		log:     opts.Logger,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Initialize stores set, binds listeners once and arms auto-click when requested.
// A second call without Destroy replaces the set and timer but does not re-bind listeners.
func (r *Router) Initialize(set *model.InstructionSet) error {
	if set == nil {
		return fmt.Errorf("%w: instruction set is nil", errs.ErrInvalidInput)
	}
	cp := *set

	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	r.set = &cp
	r.state = interactionState{}
	needBind := !r.bound
	r.bound = true
	r.mu.Unlock()

	if needBind {
		unbind := r.surface.Bind(r.eventTypes(), r.HandleEvent)
		r.mu.Lock()
		r.unbind = unbind
		r.mu.Unlock()
	} else {
		r.log.Warn("router listeners already bound; skipping re-bind")
	}

	r.log.Info("router initialized",
		zap.Bool("has_click_url", cp.HasClick()),
		zap.Bool("has_deeplink", cp.HasDeeplink()),
		zap.Bool("deeplink_priority", cp.DeeplinkPriority),
		zap.Bool("auto_click", cp.AutoClick),
	)
	if cp.AutoClick {
		r.ScheduleAutoClick()
	}
	return nil
}

func (r *Router) eventTypes() []EventType {
	types := []EventType{
		EventClick,
		EventMouseDown, EventMouseUp,
		EventTouchStart, EventTouchEnd, EventTouchCancel,
		EventContextMenu,
	}
	if r.surface.SupportsPointer() {
		types = append(types, EventPointerDown, EventPointerUp, EventPointerCancel)
	}
	return types
}

// Destroy unbinds listeners, cancels auto-click and clears state. It is terminal.
func (r *Router) Destroy() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	unbind := r.unbind
	r.unbind = nil
	r.stopTimerLocked()
	r.set = nil
	r.state = interactionState{}
	r.mu.Unlock()

	r.cancel()
	if unbind != nil {
		unbind()
	}
	r.log.Debug("router destroyed")
}

// State reports the lifecycle state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.destroyed:
		return StateDestroyed
	case r.processing.Load():
		return StateRouting
	case r.set != nil:
		return StateArmed
	default:
		return StateUninitialized
	}
}

func (r *Router) instructionSet() (model.InstructionSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set == nil {
		return model.InstructionSet{}, false
	}
	return *r.set, true
}

// HandleEvent is the listener bound to the surface. Gesture errors never escape it.
func (r *Router) HandleEvent(ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(r.ctx, fmt.Errorf("panic: %v", rec), "event_handling")
		}
	}()
	if r.processing.Load() {
		r.log.Debug("interaction ignored while routing", zap.String("event", string(ev.Type)))
		return
	}
	if ev.At.IsZero() {
		ev.At = r.clock.Now()
	}

	route, routedBy := r.track(ev)
	if route {
		r.mu.Lock()
		if r.set != nil {
			r.state.lastRouteAt = ev.At
			r.state.lastRouteInput = routedBy
		}
		r.mu.Unlock()
		r.ProcessClickAction(string(ev.Type))
	}
}

// track updates gesture state and reports whether ev should route.
func (r *Router) track(ev Event) (bool, modality) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set == nil {
		return false, ""
	}
	st := &r.state

	switch ev.Type {
	case EventTouchStart:
		st.touchActive = true
		st.startTime = ev.At
		st.startPoint = ev.Point
		st.lastInput = inputTouch
	case EventTouchEnd:
		if !st.touchActive {
			return false, ""
		}
		st.touchActive = false
		dur := ev.At.Sub(st.startTime)
		moved := math.Hypot(ev.Point.X-st.startPoint.X, ev.Point.Y-st.startPoint.Y)
		if dur > r.opts.MaxTapDuration || moved > r.opts.MaxTapMovement {
			r.log.Debug("touch discarded",
				zap.Duration("duration", dur),
				zap.Float64("movement", moved),
			)
			return false, ""
		}
		return true, inputTouch
	case EventTouchCancel:
		st.touchActive = false
	case EventMouseDown:
		st.mouseActive = true
		st.startTime = ev.At
		st.startPoint = ev.Point
		st.lastInput = inputMouse
	case EventMouseUp:
		st.mouseActive = false
	case EventPointerDown:
		st.pointerActive = true
		st.startTime = ev.At
		st.startPoint = ev.Point
		st.lastInput = inputPointer
	case EventPointerUp:
		st.pointerActive = false
		return true, inputPointer
	case EventPointerCancel:
		st.pointerActive = false
	case EventClick:
		if st.lastRouteInput != "" && st.lastRouteInput != inputMouse &&
			ev.At.Sub(st.lastRouteAt) < ghostClickWindow {
			return false, ""
		}
		return true, inputMouse
	case EventContextMenu:
		// long-press menus are suppressed; the gesture is not a tap
		st.touchActive = false
	}
	return false, ""
}
