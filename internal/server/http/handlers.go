package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/errs"
	"github.com/and161185/goph-landing/internal/landing"
	"github.com/and161185/goph-landing/internal/router"
)

type pageView struct {
	Title       string
	Ready       bool
	ImageURL    string
	ClickHref   string
	AutoRefresh string
	Message     string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, v pageView, status int) error {
	if v.Title == "" {
		v.Title = "Loading"
	}
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return nil
	}
	if err := pageTemplate.Execute(w, v); err != nil {
		loggerFrom(r).Error("render", zap.Error(err))
	}
	return nil
}

func stateView(st landing.State) (pageView, int) {
	switch st.Status {
	case landing.StatusReady:
		v := pageView{
			Ready:     true,
			ImageURL:  st.Set.Image(),
			ClickHref: clickHref(st.Payload, false),
		}
		if st.Set.AutoClick {
			v.AutoRefresh = refreshContent(st.Set, st.Payload)
		}
		return v, http.StatusOK
	case landing.StatusFailed:
		if errors.Is(st.Err, errs.ErrRateLimited) {
			return pageView{Message: st.Message}, http.StatusTooManyRequests
		}
		return pageView{Message: st.Message}, http.StatusBadRequest
	default:
		return pageView{Message: st.Message}, http.StatusOK
	}
}

// landingPage renders the page for ?payload=.
func (s *Server) landingPage(w http.ResponseWriter, r *http.Request) error {
	st := s.page.Resolve(r.Context(), r.URL, clientIP(r))
	v, status := stateView(st)
	return s.render(w, r, v, status)
}

// routeClick runs a request-scoped router for one click (or the auto-click refresh)
// and redirects to whatever it navigated to.
func (s *Server) routeClick(w http.ResponseWriter, r *http.Request) error {
	st := s.page.Resolve(r.Context(), r.URL, clientIP(r))
	if st.Status != landing.StatusReady {
		v, status := stateView(st)
		return s.render(w, r, v, status)
	}

	surface := router.NewManualSurface(false)
	nav := &redirectNavigator{surface: surface, appCapable: appCapable(r.UserAgent())}
	rt := router.New(surface, nav, router.Options{
		Clock:    s.clock,
		Logger:   loggerFrom(r),
		Reporter: s.rep,
	})
	defer rt.Destroy()

	set := st.Set
	// the page's meta refresh already waited; no timer in request scope
	set.AutoClick = false
	if err := rt.Initialize(&set); err != nil {
		return err
	}
	if r.URL.Query().Get("action") == "auto" {
		rt.ProcessClickAction(router.ActionAutoClick)
	} else {
		surface.Dispatch(router.Event{Type: router.EventClick})
	}

	if target := nav.Target(); target != "" {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		http.Redirect(w, r, target, http.StatusFound)
		return nil
	}
	if msg := surface.ErrorMessage(); msg != "" {
		return s.render(w, r, pageView{Message: msg}, http.StatusBadGateway)
	}
	// nothing to navigate to: show the page again
	v, status := stateView(st)
	return s.render(w, r, v, status)
}

type loginRequest struct {
	Secret string `json:"secret"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return badRequest("malformed JSON in request", err)
	}
	tok, err := s.auth.LoginWithIP(r.Context(), req.Secret, clientIP(r))
	if err != nil {
		return err
	}
	replyJSON(w, loginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt.UTC().Format(timeLayout)}, http.StatusOK)
	return nil
}

const timeLayout = time.RFC3339

type mintResponse struct {
	Payload string `json:"payload"`
	URL     string `json:"url"`
}

// mintPayload encrypts the instruction JSON in the body.
func (s *Server) mintPayload(w http.ResponseWriter, r *http.Request) error {
	var raw any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return badRequest("malformed JSON in request", err)
	}
	payload, link, err := s.payloads.Mint(r.Context(), raw)
	if err != nil {
		return err
	}
	replyJSON(w, mintResponse{Payload: payload, URL: link}, http.StatusCreated)
	return nil
}
