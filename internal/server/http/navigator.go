package httpserver

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/and161185/goph-landing/internal/crypto/payloadcodec"
	"github.com/and161185/goph-landing/internal/model"
	"github.com/and161185/goph-landing/internal/router"
)

var errNoAppHandler = errors.New("client cannot open app links")

// redirectNavigator turns routing decisions into a single HTTP redirect.
//
// A server cannot observe whether an app took over, so the deeplink heuristic is
// replaced by a User-Agent check: app-capable clients are sent to the deeplink and the
// surface is told the page went hidden; others fail the attempt, which makes the router
// fall back to click_url.
type redirectNavigator struct {
	surface    *router.ManualSurface
	appCapable bool

	mu     sync.Mutex
	target string
}

func (n *redirectNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.target = target
	return nil
}

func (n *redirectNavigator) OpenDeeplink(_ context.Context, target string) (func(), error) {
	if !n.appCapable {
		return nil, errNoAppHandler
	}
	n.mu.Lock()
	n.target = target
	n.mu.Unlock()
	n.surface.Signal(router.FocusHidden)
	return nil, nil
}

func (n *redirectNavigator) Target() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target
}

// appCapable reports whether the user agent can plausibly hand a custom scheme to an app.
func appCapable(ua string) bool {
	ua = strings.ToLower(ua)
	for _, m := range []string{"android", "iphone", "ipad", "ipod"} {
		if strings.Contains(ua, m) {
			return true
		}
	}
	return false
}

// clickHref is the same-origin link that routes a click for payload.
func clickHref(payload string, auto bool) string {
	q := url.Values{payloadcodec.PayloadParam: {payload}}
	if auto {
		q.Set("action", "auto")
	}
	return "/r?" + q.Encode()
}

// refreshContent renders the meta refresh for auto-click, rounding the delay up to whole seconds.
func refreshContent(set model.InstructionSet, payload string) string {
	d := set.AutoClickAfter(router.DefaultAutoClickDelay)
	secs := int64(math.Ceil(float64(d) / float64(time.Second)))
	return strconv.FormatInt(secs, 10) + ";url=" + clickHref(payload, true)
}
