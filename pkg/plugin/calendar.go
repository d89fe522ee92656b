package plugin

import (
	"context"
	"time"
)

// Event is a single calendar entry produced by a calendar source.
// Source carries the producing instance id once aggregated.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Source      string    `json:"source"`
}

// Overlaps reports whether the event intersects the inclusive window.
func (e Event) Overlaps(start, end time.Time) bool {
	return !e.Start.After(end) && !e.End.Before(start)
}

// CalendarSource is the contract calendar-category plugins satisfy.
type CalendarSource interface {
	Plugin
	// FetchEvents returns the events within the requested window.
	FetchEvents(ctx context.Context, start, end time.Time) ([]Event, error)
	// ValidateConfig checks candidate settings without applying them.
	ValidateConfig(cfg map[string]any) error
}
