package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/model"
)

// ProcessClickAction runs one routing decision. Concurrent calls while a decision is
// in flight are dropped, not queued. Failures are reported and shown, never returned.
func (r *Router) ProcessClickAction(actionType string) {
	if !r.processing.CompareAndSwap(false, true) {
		r.log.Debug("routing already in progress", zap.String("action", actionType))
		return
	}
	defer r.processing.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(r.ctx, fmt.Errorf("panic: %v", rec), "click_routing")
		}
	}()

	set, ok := r.instructionSet()
	if !ok {
		return
	}
	r.rep.RecordAction(r.ctx, model.ActionRecord{
		ActionType:       actionType,
		HasDeeplink:      set.HasDeeplink(),
		HasClickURL:      set.HasClick(),
		DeeplinkPriority: set.DeeplinkPriority,
	})
	if err := r.route(actionType, set); err != nil {
		r.fail(r.ctx, err, "click_routing")
	}
}

func (r *Router) route(actionType string, set model.InstructionSet) error {
	switch {
	case !set.HasClick() && !set.HasDeeplink():
		r.log.Info("no click target configured", zap.String("action", actionType))
		return nil

	case set.DeeplinkPriority && set.HasDeeplink():
		if r.AttemptDeeplinkOpen(set.Deeplink()) {
			r.rep.RecordNavigation(r.ctx, actionType, set.Deeplink(), true)
			return nil
		}
		if !r.alive() {
			return nil
		}
		if set.HasClick() {
			r.log.Info("deeplink not confirmed, falling back to click_url")
			return r.navigate(actionType, set.Click())
		}
		r.log.Info("deeplink not confirmed and no fallback")
		return nil

	case set.HasClick():
		return r.navigate(actionType, set.Click())

	default:
		if r.AttemptDeeplinkOpen(set.Deeplink()) {
			r.rep.RecordNavigation(r.ctx, actionType, set.Deeplink(), true)
		}
		return nil
	}
}

func (r *Router) navigate(actionType, target string) error {
	if err := r.nav.Navigate(r.ctx, target); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	r.rep.RecordNavigation(r.ctx, actionType, target, false)
	return nil
}

func (r *Router) alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.destroyed
}

// AttemptDeeplinkOpen opens url and waits for evidence that an app took over.
//
// Best effort: no platform API confirms a deeplink. The first of these wins:
// the timeout (false), the document turning hidden (true), or a window blur later
// than BlurGrace after the attempt started (true).
func (r *Router) AttemptDeeplinkOpen(url string) bool {
	start := r.clock.Now()
	signals, stop := r.surface.WatchFocus()
	defer stop()
	timer := r.clock.NewTimer(r.opts.DeeplinkTimeout)
	defer timer.Stop()

	release, err := r.nav.OpenDeeplink(r.ctx, url)
	if err != nil {
		r.log.Warn("deeplink open failed", zap.Error(err))
		return false
	}
	if release != nil {
		defer release()
	}

	for {
		select {
		case <-r.ctx.Done():
			return false
		case <-timer.Chan():
			r.log.Debug("deeplink timeout")
			return false
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			switch sig {
			case FocusHidden:
				return true
			case FocusBlur:
				if r.clock.Since(start) > r.opts.BlurGrace {
					return true
				}
			}
		}
	}
}

func (r *Router) fail(ctx context.Context, err error, label string) {
	r.log.Error("routing failed", zap.String("context", label), zap.Error(err))
	r.rep.RecordError(ctx, err, label)
	r.surface.ShowError(NavigationFailedMessage)
}
