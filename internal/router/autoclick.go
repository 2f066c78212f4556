package router

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ScheduleAutoClick arms the one-shot auto-click timer, replacing any pending one.
// The delay is auto_click_delay when set, otherwise Options.AutoClickDelay.
func (r *Router) ScheduleAutoClick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.set == nil {
		return
	}
	r.stopTimerLocked()

	delay := r.set.AutoClickAfter(r.opts.AutoClickDelay)
	var t clockwork.Timer
	t = r.clock.AfterFunc(delay, func() {
		r.mu.Lock()
		current := r.timer == t
		if current {
			r.timer = nil
		}
		r.mu.Unlock()
		if current {
			r.ProcessClickAction(ActionAutoClick)
		}
	})
	r.timer = t
	r.log.Debug("auto-click scheduled", zap.Duration("delay", delay))
}

// CancelAutoClick stops a pending auto-click, if any.
func (r *Router) CancelAutoClick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
}

func (r *Router) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
