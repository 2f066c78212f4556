package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/model"
	"github.com/and161185/goph-landing/internal/repository"
)

// Analytics defaults.
const (
	DefaultAnalyticsBuffer = 1024
	DefaultFlushBatch      = 64
	DefaultFlushInterval   = 2 * time.Second
)

// AnalyticsOptions tune the writer; zero values take the defaults.
type AnalyticsOptions struct {
	Buffer        int
	FlushBatch    int
	FlushInterval time.Duration
	Clock         clockwork.Clock
}

// Analytics is the routing reporter. Events are queued without blocking and
// written in batches by Run. With a nil repository events are only logged.
type Analytics struct {
	repo    repository.EventRepository
	log     *zap.Logger
	clock   clockwork.Clock
	events  chan model.Event
	batch   int
	every   time.Duration
	dropped atomic.Int64
}

// NewAnalytics constructs the reporter.
func NewAnalytics(repo repository.EventRepository, log *zap.Logger, opts AnalyticsOptions) *Analytics {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultAnalyticsBuffer
	}
	if opts.FlushBatch <= 0 {
		opts.FlushBatch = DefaultFlushBatch
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Analytics{
		repo:   repo,
		log:    log,
		clock:  opts.Clock,
		events: make(chan model.Event, opts.Buffer),
		batch:  opts.FlushBatch,
		every:  opts.FlushInterval,
	}
}

// RecordAction queues an action event.
func (a *Analytics) RecordAction(_ context.Context, rec model.ActionRecord) {
	a.enqueue(model.Event{
		Kind:             model.EventAction,
		ActionType:       rec.ActionType,
		HasDeeplink:      rec.HasDeeplink,
		HasClickURL:      rec.HasClickURL,
		DeeplinkPriority: rec.DeeplinkPriority,
	})
}

// RecordNavigation queues a navigation event.
func (a *Analytics) RecordNavigation(_ context.Context, actionType, targetURL string, isDeeplink bool) {
	a.enqueue(model.Event{
		Kind:       model.EventNavigation,
		ActionType: actionType,
		TargetURL:  targetURL,
		IsDeeplink: isDeeplink,
	})
}

// RecordError queues an error event.
func (a *Analytics) RecordError(_ context.Context, err error, label string) {
	ev := model.Event{Kind: model.EventError, Label: label}
	if err != nil {
		ev.Message = err.Error()
	}
	a.enqueue(ev)
}

func (a *Analytics) enqueue(ev model.Event) {
	ev.CreatedAt = a.clock.Now()
	select {
	case a.events <- ev:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.log.Warn("analytics buffer full, dropping events", zap.Int64("dropped", n))
		}
	}
}

// Dropped returns the number of events lost to a full buffer.
func (a *Analytics) Dropped() int64 { return a.dropped.Load() }

// Run drains the queue until ctx is done, then flushes what is left.
func (a *Analytics) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.every)
	defer ticker.Stop()

	batch := make([]model.Event, 0, a.batch)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		a.write(ctx, batch)
		batch = make([]model.Event, 0, a.batch)
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case ev := <-a.events:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			flush(fctx)
			cancel()
			return nil
		case ev := <-a.events:
			batch = append(batch, ev)
			if len(batch) >= a.batch {
				flush(ctx)
			}
		case <-ticker.Chan():
			flush(ctx)
		}
	}
}

func (a *Analytics) write(ctx context.Context, batch []model.Event) {
	if a.repo == nil {
		for _, ev := range batch {
			a.log.Debug("analytics",
				zap.String("kind", string(ev.Kind)),
				zap.String("action", ev.ActionType),
				zap.Bool("deeplink", ev.IsDeeplink),
				zap.String("label", ev.Label),
			)
		}
		return
	}
	if err := a.repo.InsertBatch(ctx, batch); err != nil {
		a.log.Error("analytics write failed", zap.Int("events", len(batch)), zap.Error(err))
	}
}

// Recent returns events newer than since.
func (a *Analytics) Recent(ctx context.Context, since time.Time, limit int) ([]model.Event, error) {
	if a.repo == nil {
		return nil, errs.ErrUnavailable
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return a.repo.ListSince(ctx, since, limit)
}

// Stats aggregates events newer than since.
func (a *Analytics) Stats(ctx context.Context, since time.Time) ([]model.EventCount, error) {
	if a.repo == nil {
		return nil, errs.ErrUnavailable
	}
	return a.repo.CountSince(ctx, since)
}
