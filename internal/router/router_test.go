package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
)

type fakeNav struct {
	mu        sync.Mutex
	navigated []string
	deeplinks []string
	released  int

	navErr      error
	deeplinkErr error
	navPanic    bool

	onDeeplink func(url string)
	navStarted chan struct{}
	navBlock   chan struct{}
}

func (f *fakeNav) Navigate(_ context.Context, url string) error {
	if f.navPanic {
		panic("navigator exploded")
	}
	if f.navStarted != nil {
		f.navStarted <- struct{}{}
	}
	if f.navBlock != nil {
		<-f.navBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navErr != nil {
		return f.navErr
	}
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeNav) OpenDeeplink(_ context.Context, url string) (func(), error) {
	f.mu.Lock()
	f.deeplinks = append(f.deeplinks, url)
	err := f.deeplinkErr
	hook := f.onDeeplink
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook(url)
	}
	return func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}, nil
}

func (f *fakeNav) navs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...)
}

func (f *fakeNav) releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

type navRecord struct {
	action     string
	url        string
	isDeeplink bool
}

type fakeReporter struct {
	mu      sync.Mutex
	actions []model.ActionRecord
	navs    []navRecord
	errs    []string
}

func (f *fakeReporter) RecordAction(_ context.Context, rec model.ActionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, rec)
}

func (f *fakeReporter) RecordNavigation(_ context.Context, action, url string, isDeeplink bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navs = append(f.navs, navRecord{action, url, isDeeplink})
}

func (f *fakeReporter) RecordError(_ context.Context, _ error, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, label)
}

func (f *fakeReporter) snapshot() ([]model.ActionRecord, []navRecord, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ActionRecord(nil), f.actions...), append([]navRecord(nil), f.navs...), append([]string(nil), f.errs...)
}

type harness struct {
	r     *Router
	surf  *ManualSurface
	nav   *fakeNav
	rep   *fakeReporter
	clock *clockwork.FakeClock
}

func newHarness(t *testing.T, pointer bool) *harness {
	t.Helper()
	h := &harness{
		surf:  NewManualSurface(pointer),
		nav:   &fakeNav{},
		rep:   &fakeReporter{},
		clock: clockwork.NewFakeClock(),
	}
	h.r = New(h.surf, h.nav, Options{Clock: h.clock, Logger: zaptest.NewLogger(t), Reporter: h.rep})
	t.Cleanup(h.r.Destroy)
	return h
}

func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, n))
}

func sp(s string) *string { return &s }

func fp(v float64) *float64 { return &v }

func TestInitialize_Validation(t *testing.T) {
	h := newHarness(t, false)
	require.ErrorIs(t, h.r.Initialize(nil), errs.ErrInvalidInput)
	require.Equal(t, StateUninitialized, h.r.State())

	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))
	require.Equal(t, StateArmed, h.r.State())

	h.r.Destroy()
	require.Equal(t, StateDestroyed, h.r.State())
	require.ErrorIs(t, h.r.Initialize(&model.InstructionSet{}), ErrDestroyed)
}

func TestInitialize_BindsOnce(t *testing.T) {
	h := newHarness(t, false)
	set := &model.InstructionSet{ClickURL: sp("https://a.test")}
	require.NoError(t, h.r.Initialize(set))
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://b.test")}))
	require.Equal(t, 1, h.surf.BindCount())

	require.False(t, h.surf.Dispatch(Event{Type: EventPointerUp}), "pointer events must not bind without support")
	require.True(t, h.surf.Dispatch(Event{Type: EventClick}))
	require.Equal(t, []string{"https://b.test"}, h.nav.navs())
}

func TestInitialize_CopiesSet(t *testing.T) {
	h := newHarness(t, false)
	set := &model.InstructionSet{ClickURL: sp("https://a.test")}
	require.NoError(t, h.r.Initialize(set))
	set.ClickURL = sp("https://mutated.test")
	h.surf.Dispatch(Event{Type: EventClick})
	require.Equal(t, []string{"https://a.test"}, h.nav.navs())
}

func TestClick_NavigatesDirectly(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:    sp("https://shop.test"),
		DeeplinkURL: sp("shop://home"),
	}))

	require.True(t, h.surf.Dispatch(Event{Type: EventClick}))
	require.Equal(t, []string{"https://shop.test"}, h.nav.navs())
	require.Empty(t, h.nav.deeplinks, "no deeplink attempt without priority")

	actions, navs, errsSeen := h.rep.snapshot()
	require.Equal(t, []model.ActionRecord{{ActionType: "click", HasDeeplink: true, HasClickURL: true}}, actions)
	require.Equal(t, []navRecord{{"click", "https://shop.test", false}}, navs)
	require.Empty(t, errsSeen)
}

func TestPointerUp_RoutesUnconditionally(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))
	t0 := h.clock.Now()
	h.surf.Dispatch(Event{Type: EventPointerDown, At: t0, Point: Point{0, 0}})
	h.surf.Dispatch(Event{Type: EventPointerUp, At: t0.Add(10 * time.Second), Point: Point{500, 500}})
	require.Equal(t, []string{"https://x.test"}, h.nav.navs())
}

func TestTouch_GestureGate(t *testing.T) {
	cases := []struct {
		name   string
		dur    time.Duration
		move   Point
		routed bool
	}{
		{"tap", 500 * time.Millisecond, Point{3, 4}, true},
		{"drag", 500 * time.Millisecond, Point{60, 80}, false},
		{"long press", 2500 * time.Millisecond, Point{3, 4}, false},
		{"edge", 2000 * time.Millisecond, Point{18, 24}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, false)
			require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))
			t0 := h.clock.Now()
			h.surf.Dispatch(Event{Type: EventTouchStart, At: t0, Point: Point{100, 100}})
			h.surf.Dispatch(Event{Type: EventTouchEnd, At: t0.Add(tc.dur), Point: Point{100 + tc.move.X, 100 + tc.move.Y}})
			if tc.routed {
				require.Equal(t, []string{"https://x.test"}, h.nav.navs())
			} else {
				require.Empty(t, h.nav.navs())
				require.Empty(t, h.surf.ErrorMessage(), "discarded touches are silent")
			}
		})
	}
}

func TestTouch_EndWithoutStartAndCancel(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))
	t0 := h.clock.Now()

	h.surf.Dispatch(Event{Type: EventTouchEnd, At: t0})
	h.surf.Dispatch(Event{Type: EventTouchStart, At: t0})
	h.surf.Dispatch(Event{Type: EventTouchCancel, At: t0.Add(10 * time.Millisecond)})
	h.surf.Dispatch(Event{Type: EventTouchEnd, At: t0.Add(20 * time.Millisecond)})
	h.surf.Dispatch(Event{Type: EventTouchStart, At: t0})
	h.surf.Dispatch(Event{Type: EventContextMenu, At: t0.Add(time.Millisecond)})
	h.surf.Dispatch(Event{Type: EventTouchEnd, At: t0.Add(20 * time.Millisecond)})
	require.Empty(t, h.nav.navs())
}

func TestTouch_GhostClickSuppressed(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))
	t0 := h.clock.Now()
	h.surf.Dispatch(Event{Type: EventTouchStart, At: t0})
	h.surf.Dispatch(Event{Type: EventTouchEnd, At: t0.Add(100 * time.Millisecond)})
	h.surf.Dispatch(Event{Type: EventClick, At: t0.Add(150 * time.Millisecond)})
	require.Len(t, h.nav.navs(), 1)

	h.surf.Dispatch(Event{Type: EventClick, At: t0.Add(time.Second)})
	require.Len(t, h.nav.navs(), 2)
}

func TestRoute_NoTargets(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ImageURL: sp("https://cdn.test/a.gif")}))
	h.surf.Dispatch(Event{Type: EventClick})
	require.Empty(t, h.nav.navs())
	require.Empty(t, h.nav.deeplinks)
	actions, navs, _ := h.rep.snapshot()
	require.Len(t, actions, 1, "actions are recorded regardless of outcome")
	require.Empty(t, navs)
}

func TestRoute_DeeplinkPriorityFallsBackAfterTimeout(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:         sp("https://play.test/app"),
		DeeplinkURL:      sp("app://open"),
		DeeplinkPriority: true,
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.surf.Dispatch(Event{Type: EventClick})
	}()
	h.waitTimers(t, 1)
	require.Empty(t, h.nav.navs())
	h.clock.Advance(DefaultDeeplinkTimeout)
	<-done

	require.Equal(t, []string{"https://play.test/app"}, h.nav.navs())
	require.Equal(t, []string{"app://open"}, h.nav.deeplinks)
	require.Equal(t, 1, h.nav.releases(), "hidden frame must be torn down")
	require.Zero(t, h.surf.Watchers(), "focus listeners must be removed")
	_, navs, _ := h.rep.snapshot()
	require.Equal(t, []navRecord{{"click", "https://play.test/app", false}}, navs)
}

func TestRoute_DeeplinkConfirmedByHidden(t *testing.T) {
	h := newHarness(t, false)
	h.nav.onDeeplink = func(string) { h.surf.Signal(FocusHidden) }
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:         sp("https://play.test/app"),
		DeeplinkURL:      sp("app://open"),
		DeeplinkPriority: true,
	}))

	h.surf.Dispatch(Event{Type: EventClick})
	require.Empty(t, h.nav.navs())
	_, navs, _ := h.rep.snapshot()
	require.Equal(t, []navRecord{{"click", "app://open", true}}, navs)
}

func TestRoute_BlurOnlyCountsAfterGrace(t *testing.T) {
	h := newHarness(t, false)
	opened := make(chan struct{})
	h.nav.onDeeplink = func(string) { close(opened) }
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:         sp("https://play.test/app"),
		DeeplinkURL:      sp("app://open"),
		DeeplinkPriority: true,
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.r.ProcessClickAction("click")
	}()
	<-opened
	h.surf.Signal(FocusBlur)
	require.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 100*time.Millisecond, 10*time.Millisecond, "blur inside the grace period must be ignored")

	h.clock.Advance(150 * time.Millisecond)
	h.surf.Signal(FocusBlur)
	<-done
	require.Empty(t, h.nav.navs())
	_, navs, _ := h.rep.snapshot()
	require.Equal(t, []navRecord{{"click", "app://open", true}}, navs)
}

func TestRoute_DeeplinkOnlyNoFallback(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{DeeplinkURL: sp("app://only")}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.r.ProcessClickAction("click")
	}()
	h.waitTimers(t, 1)
	h.clock.Advance(DefaultDeeplinkTimeout)
	<-done
	require.Equal(t, []string{"app://only"}, h.nav.deeplinks)
	require.Empty(t, h.nav.navs())
	require.Empty(t, h.surf.ErrorMessage())
}

func TestRoute_DeeplinkOpenErrorFallsBack(t *testing.T) {
	h := newHarness(t, false)
	h.nav.deeplinkErr = errors.New("frame blocked")
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:         sp("https://x.test"),
		DeeplinkURL:      sp("app://x"),
		DeeplinkPriority: true,
	}))
	h.surf.Dispatch(Event{Type: EventClick})
	require.Equal(t, []string{"https://x.test"}, h.nav.navs())
}

func TestRoute_NavigateErrorIsShownNotReturned(t *testing.T) {
	h := newHarness(t, false)
	h.nav.navErr = errors.New("blocked by policy")
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))

	h.surf.Dispatch(Event{Type: EventClick})
	require.Equal(t, NavigationFailedMessage, h.surf.ErrorMessage())
	_, _, errsSeen := h.rep.snapshot()
	require.Equal(t, []string{"click_routing"}, errsSeen)
	require.Equal(t, StateArmed, h.r.State())
}

func TestRoute_PanicIsRecovered(t *testing.T) {
	h := newHarness(t, false)
	h.nav.navPanic = true
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))
	require.NotPanics(t, func() { h.surf.Dispatch(Event{Type: EventClick}) })
	require.Equal(t, NavigationFailedMessage, h.surf.ErrorMessage())
	require.Equal(t, StateArmed, h.r.State())
}

func TestAutoClick_FiresAtConfiguredDelay(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:       sp("https://x.test"),
		AutoClick:      true,
		AutoClickDelay: fp(5000),
	}))
	h.waitTimers(t, 1)

	h.clock.Advance(4999 * time.Millisecond)
	require.Never(t, func() bool { return len(h.nav.navs()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(h.nav.navs()) == 1 }, time.Second, 5*time.Millisecond)
	actions, _, _ := h.rep.snapshot()
	require.Equal(t, ActionAutoClick, actions[0].ActionType)

	// the router stays armed for later interactions
	h.surf.Dispatch(Event{Type: EventClick})
	require.Len(t, h.nav.navs(), 2)
}

func TestAutoClick_DefaultDelay(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test"), AutoClick: true}))
	h.waitTimers(t, 1)
	h.clock.Advance(DefaultAutoClickDelay - time.Millisecond)
	require.Never(t, func() bool { return len(h.nav.navs()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(h.nav.navs()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAutoClick_HugeDelayNeverFiresEarly(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:       sp("https://x.test"),
		AutoClick:      true,
		AutoClickDelay: fp(1e13),
	}))
	h.waitTimers(t, 1)
	require.Never(t, func() bool { return len(h.nav.navs()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	h.clock.Advance(24 * time.Hour)
	require.Never(t, func() bool { return len(h.nav.navs()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	h.clock.Advance(time.Duration(model.MaxAutoClickDelay)*time.Millisecond - 24*time.Hour)
	require.Eventually(t, func() bool { return len(h.nav.navs()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAutoClick_CancelAndReschedule(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test"), AutoClick: true, AutoClickDelay: fp(1000)}))
	h.waitTimers(t, 1)

	h.r.CancelAutoClick()
	h.clock.Advance(5 * time.Second)
	require.Never(t, func() bool { return len(h.nav.navs()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	h.r.ScheduleAutoClick()
	h.r.ScheduleAutoClick()
	h.waitTimers(t, 1)
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(h.nav.navs()) == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return len(h.nav.navs()) > 1 }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestReentrancy_DropsConcurrentInteractions(t *testing.T) {
	h := newHarness(t, false)
	h.nav.navStarted = make(chan struct{}, 4)
	h.nav.navBlock = make(chan struct{})
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test")}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.surf.Dispatch(Event{Type: EventClick})
	}()
	<-h.nav.navStarted
	require.Equal(t, StateRouting, h.r.State())

	h.surf.Dispatch(Event{Type: EventClick})
	h.r.ProcessClickAction("click")

	close(h.nav.navBlock)
	<-done
	require.Len(t, h.nav.navs(), 1)
	actions, _, _ := h.rep.snapshot()
	require.Len(t, actions, 1)
	require.Equal(t, StateArmed, h.r.State())
}

func TestDestroy_UnbindsAndCancels(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.r.Initialize(&model.InstructionSet{ClickURL: sp("https://x.test"), AutoClick: true}))
	h.waitTimers(t, 1)
	require.True(t, h.surf.Bound())

	h.r.Destroy()
	h.r.Destroy()
	require.False(t, h.surf.Bound())
	require.False(t, h.surf.Dispatch(Event{Type: EventClick}))

	h.clock.Advance(time.Minute)
	require.Never(t, func() bool { return len(h.nav.navs()) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	// a stray callback after destroy is a no-op
	h.r.HandleEvent(Event{Type: EventClick})
	h.r.ProcessClickAction("click")
	require.Empty(t, h.nav.navs())
}

func TestDestroy_AbortsInFlightDeeplink(t *testing.T) {
	h := newHarness(t, false)
	opened := make(chan struct{})
	h.nav.onDeeplink = func(string) { close(opened) }
	require.NoError(t, h.r.Initialize(&model.InstructionSet{
		ClickURL:         sp("https://x.test"),
		DeeplinkURL:      sp("app://x"),
		DeeplinkPriority: true,
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.r.ProcessClickAction("click")
	}()
	<-opened
	h.r.Destroy()
	<-done
	require.Empty(t, h.nav.navs(), "no fallback after destroy")
}

func TestState_String(t *testing.T) {
	require.Equal(t, "armed", StateArmed.String())
	require.Equal(t, "routing", StateRouting.String())
	require.Equal(t, "destroyed", StateDestroyed.String())
	require.Equal(t, "uninitialized", StateUninitialized.String())
}
