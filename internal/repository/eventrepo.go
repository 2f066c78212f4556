// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/goph-landing/internal/model"
)

// EventRepository persists routing analytics.
type EventRepository interface {
	// Insert stores a single event; a zero ID is assigned.
	Insert(ctx context.Context, e *model.Event) error
	// InsertBatch stores events in one transaction.
	InsertBatch(ctx context.Context, events []model.Event) error
	// ListSince returns events newer than since, newest first, at most limit rows.
	ListSince(ctx context.Context, since time.Time, limit int) ([]model.Event, error)
	// CountSince aggregates events newer than since by kind and action type.
	CountSince(ctx context.Context, since time.Time) ([]model.EventCount, error)
}
