package grpcserver

import (
	"context"
)

type ctxKey string

const subjectKey ctxKey = "landing.subject"

// WithSubject stores the authenticated token subject in context.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, subjectKey, sub)
}

// SubjectFromCtx fetches the token subject from context.
func SubjectFromCtx(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectKey).(string)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}
