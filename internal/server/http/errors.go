package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/goph-landing/internal/errs"
)

// handlerFunc returns an error instead of writing it; ServeHTTP maps it to a JSON response.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// appError carries the status and a client-safe message.
type appError struct {
	status int
	msg    string
	err    error
}

func (e *appError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *appError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &appError{status: http.StatusBadRequest, msg: msg, err: err}
}

type errorBody struct {
	Error string `json:"error"`
}

func (h handlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		var ae *appError
		if !errors.As(err, &ae) {
			ae = classify(err)
		}
		if ae.status >= http.StatusInternalServerError {
			loggerFrom(r).Error("request failed", zap.Error(err))
		}
		replyJSON(w, errorBody{Error: ae.msg}, ae.status)
	}
}

func classify(err error) *appError {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return &appError{status: http.StatusUnauthorized, msg: "unauthorized", err: err}
	case errors.Is(err, errs.ErrRateLimited):
		return &appError{status: http.StatusTooManyRequests, msg: "rate limited", err: err}
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidInput), errors.Is(err, errs.ErrInvalidJSON):
		return &appError{status: http.StatusBadRequest, msg: err.Error(), err: err}
	default:
		return &appError{status: http.StatusInternalServerError, msg: "internal error", err: err}
	}
}

func replyJSON(w http.ResponseWriter, obj any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(obj)
}
