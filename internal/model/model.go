// Package model defines domain entities used by the codec, router and services.
package model

import (
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
)

// InstructionSet is the decrypted directive describing what to show and where to route clicks.
// Values are produced by payloadcodec.ValidateInstructionSet and are read-only afterwards.
type InstructionSet struct {
	ImageURL         *string  `json:"image_url"`
	ClickURL         *string  `json:"click_url"`
	DeeplinkURL      *string  `json:"deeplink_url"`
	AutoClick        bool     `json:"auto_click"`
	DeeplinkPriority bool     `json:"deeplink_priority"`
	AutoClickDelay   *float64 `json:"auto_click_delay"` // milliseconds
}

// Image returns image_url or "".
func (s InstructionSet) Image() string { return deref(s.ImageURL) }

// Click returns click_url or "".
func (s InstructionSet) Click() string { return deref(s.ClickURL) }

// Deeplink returns deeplink_url or "".
func (s InstructionSet) Deeplink() string { return deref(s.DeeplinkURL) }

// HasClick reports whether a non-empty click_url is set.
func (s InstructionSet) HasClick() bool { return s.Click() != "" }

// HasDeeplink reports whether a non-empty deeplink_url is set.
func (s InstructionSet) HasDeeplink() bool { return s.Deeplink() != "" }

// MaxAutoClickDelay is the longest accepted auto_click_delay in milliseconds,
// the same ceiling browsers apply to setTimeout.
const MaxAutoClickDelay = 1<<31 - 1

// AutoClickAfter returns the configured auto-click delay, or def when unset.
// Delays are clamped to [0, MaxAutoClickDelay] ms.
func (s InstructionSet) AutoClickAfter(def time.Duration) time.Duration {
	if s.AutoClickDelay == nil {
		return def
	}
	ms := *s.AutoClickDelay
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms > MaxAutoClickDelay:
		ms = MaxAutoClickDelay
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// EventKind classifies analytics rows.
type EventKind string

const (
	EventAction     EventKind = "action"
	EventNavigation EventKind = "navigation"
	EventError      EventKind = "error"
)

// ActionRecord describes a single routing decision, recorded regardless of its outcome.
type ActionRecord struct {
	ActionType       string
	HasDeeplink      bool
	HasClickURL      bool
	DeeplinkPriority bool
}

// Event is a persisted analytics row.
type Event struct {
	ID               uuid.UUID
	Kind             EventKind
	ActionType       string
	TargetURL        string
	IsDeeplink       bool
	HasDeeplink      bool
	HasClickURL      bool
	DeeplinkPriority bool
	Label            string // error context
	Message          string // error text, never shown to users
	CreatedAt        time.Time
}

// EventCount aggregates events by kind and action type.
type EventCount struct {
	Kind       EventKind
	ActionType string
	Count      int64
}

// Token is an issued admin access token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}
