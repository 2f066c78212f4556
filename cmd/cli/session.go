package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/model"
	"github.com/and161185/goph-landing/internal/router"
)

// sessionOpts configure a headless routing session.
type sessionOpts struct {
	appInstalled    bool
	pointer         bool
	deeplinkTimeout time.Duration
	clock           clockwork.Clock
	log             *zap.Logger
}

// printer is the navigator and reporter of a headless session.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	surface *router.ManualSurface
	app     bool
	done    chan struct{}
	once    sync.Once
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) Navigate(_ context.Context, target string) error {
	p.printf("navigate %s\n", target)
	return nil
}

func (p *printer) OpenDeeplink(_ context.Context, target string) (func(), error) {
	p.printf("deeplink %s\n", target)
	if p.app {
		p.surface.Signal(router.FocusHidden)
	}
	return func() {}, nil
}

func (p *printer) RecordAction(_ context.Context, rec model.ActionRecord) {
	p.printf("action %s deeplink=%t click_url=%t priority=%t\n",
		rec.ActionType, rec.HasDeeplink, rec.HasClickURL, rec.DeeplinkPriority)
}

func (p *printer) RecordNavigation(_ context.Context, actionType, target string, isDeeplink bool) {
	p.printf("navigated %s via %s deeplink=%t\n", target, actionType, isDeeplink)
	p.once.Do(func() { close(p.done) })
}

func (p *printer) RecordError(_ context.Context, err error, label string) {
	p.printf("error %s: %v\n", label, err)
}

// runSession drives a router from line commands until EOF or "quit":
//
//	click | mousedown | mouseup | pointerdown | pointerup | pointercancel | contextmenu
//	touchstart X Y | touchend X Y | touchcancel
//	hidden | blur | wait DURATION | quit
//
// After EOF a pending auto-click is awaited.
func runSession(ctx context.Context, in io.Reader, out io.Writer, set model.InstructionSet, o sessionOpts) error {
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	surface := router.NewManualSurface(o.pointer)
	p := &printer{out: out, surface: surface, app: o.appInstalled, done: make(chan struct{})}
	surface.OnError = func(msg string) { p.printf("shown %q\n", msg) }

	r := router.New(surface, p, router.Options{
		Clock:           o.clock,
		Logger:          o.log,
		Reporter:        p,
		DeeplinkTimeout: o.deeplinkTimeout,
	})
	defer r.Destroy()
	if err := r.Initialize(&set); err != nil {
		return err
	}

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" {
			return nil
		}
		if err := p.step(ctx, r, surface, o.clock, line); err != nil {
			p.printf("? %v\n", err)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	if set.AutoClick {
		wait := set.AutoClickAfter(router.DefaultAutoClickDelay) + router.DefaultDeeplinkTimeout + time.Second
		select {
		case <-p.done:
		case <-o.clock.After(wait):
			p.printf("auto-click did not navigate\n")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *printer) step(ctx context.Context, r *router.Router, s *router.ManualSurface, clock clockwork.Clock, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "hidden":
		s.Signal(router.FocusHidden)
		return nil
	case "blur":
		s.Signal(router.FocusBlur)
		return nil
	case "wait":
		if len(fields) != 2 {
			return errors.New("usage: wait DURATION")
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil {
			return err
		}
		select {
		case <-clock.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	ev := router.Event{Type: router.EventType(fields[0])}
	switch ev.Type {
	case router.EventTouchStart, router.EventTouchEnd:
		if len(fields) == 3 {
			x, errX := strconv.ParseFloat(fields[1], 64)
			y, errY := strconv.ParseFloat(fields[2], 64)
			if errX != nil || errY != nil {
				return fmt.Errorf("bad coordinates in %q", line)
			}
			ev.Point = router.Point{X: x, Y: y}
		}
	case router.EventClick, router.EventMouseDown, router.EventMouseUp,
		router.EventPointerDown, router.EventPointerUp, router.EventPointerCancel,
		router.EventTouchCancel, router.EventContextMenu:
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	if !s.Dispatch(ev) {
		p.printf("ignored %s\n", ev.Type)
	}
	return nil
}

func newOpenCmd(g *globalOpts) *cobra.Command {
	var (
		keys keyFlags
		o    sessionOpts
	)
	cmd := &cobra.Command{
		Use:   "open <payload|url>",
		Short: "Replay interactions against a payload with a headless router",
		Long: "Decrypts the payload, arms a click router and reads interactions from stdin, one per line:\n" +
			"click, mousedown, mouseup, pointerdown, pointerup, pointercancel, contextmenu,\n" +
			"touchstart X Y, touchend X Y, touchcancel, hidden, blur, wait DURATION, quit.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := g.logger()
			codec, err := keys.codec(log)
			if err != nil {
				return err
			}
			payload, err := payloadArg(args[0])
			if err != nil {
				return err
			}
			set, err := codec.Decrypt(payload)
			if err != nil {
				return err
			}
			o.log = log
			return runSession(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), set, o)
		},
	}
	keys.bind(cmd)
	cmd.Flags().BoolVar(&o.appInstalled, "app-installed", false, "simulate an app that handles deeplinks")
	cmd.Flags().BoolVar(&o.pointer, "pointer", true, "surface supports pointer events")
	cmd.Flags().DurationVar(&o.deeplinkTimeout, "deeplink-timeout", router.DefaultDeeplinkTimeout, "deeplink confirmation timeout")
	return cmd
}
