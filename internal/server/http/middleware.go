package httpserver

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"
)

type ctxKey string

const loggerKey ctxKey = "landing.logger"

func loggerFrom(r *http.Request) *zap.Logger {
	if l, ok := r.Context().Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logMiddleware logs request metadata. The query string carries payloads and is never logged.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		l := s.log.With(zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), loggerKey, l)))
		l.Info("http",
			zap.Int("status", rec.status),
			zap.Duration("dur", s.clock.Since(start)),
			zap.String("peer", clientIP(r)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic",
					zap.Any("reason", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				replyJSON(w, errorBody{Error: "internal error"}, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAdmin checks "Authorization: Bearer <JWT>".
func (s *Server) requireAdmin(h handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		tok, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			return &appError{status: http.StatusUnauthorized, msg: "no bearer token"}
		}
		if _, err := s.auth.Verify(tok); err != nil {
			return &appError{status: http.StatusUnauthorized, msg: "invalid token", err: err}
		}
		return h(w, r)
	}
}

func bearerToken(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}

// clientIP uses the transport peer; forwarding headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
