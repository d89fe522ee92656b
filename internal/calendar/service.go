// Package calendar aggregates events across every enabled calendar
// plugin, with per-instance caching and failure isolation.
package calendar

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"homedash/internal/cache"
	"homedash/internal/observability/metrics"
	"homedash/pkg/logger"
	"homedash/pkg/plugin"
)

const (
	// DefaultTTL is deliberately short: calendar feeds change during
	// the day.
	DefaultTTL = 5 * time.Minute
	// DefaultFetchTimeout bounds each plugin's outbound call.
	DefaultFetchTimeout = 15 * time.Second
)

// PlaceholderSource marks synthetic entries returned when no plugin
// produced data, so callers can tell "no data source" from a genuinely
// empty window.
const PlaceholderSource = "placeholder"

// Service fans calendar queries out to enabled calendar instances.
type Service struct {
	runtime *plugin.Runtime
	cache   cache.Cache
	metrics *metrics.Collector
	log     *slog.Logger
	ttl     time.Duration
	timeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the cache freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithFetchTimeout overrides the per-plugin fetch bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// New constructs the calendar aggregation service.
func New(runtime *plugin.Runtime, c cache.Cache, opts ...Option) *Service {
	s := &Service{
		runtime: runtime,
		cache:   c,
		log:     logger.Named("calendar"),
		ttl:     DefaultTTL,
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Events returns the merged events of every enabled calendar instance
// whose interval overlaps the inclusive [start, end] window. A failing
// instance is substituted with its most recent cache entry for the
// same window when one exists and never fails the aggregate. When no
// instance produces any data the result is a set of placeholder
// entries.
func (s *Service) Events(ctx context.Context, start, end time.Time) ([]plugin.Event, error) {
	if end.Before(start) {
		start, end = end, start
	}

	var (
		merged  []plugin.Event
		hasData bool
	)
	for _, p := range s.runtime.List(plugin.CategoryCalendar, true) {
		src, ok := p.(plugin.CalendarSource)
		if !ok {
			s.log.Warn("calendar instance does not satisfy the calendar contract",
				slog.String("instance_id", p.InstanceID()))
			continue
		}
		events, ok := s.eventsFrom(ctx, src, start, end)
		if !ok {
			continue
		}
		hasData = true
		merged = append(merged, events...)
	}

	if !hasData && len(merged) == 0 {
		return s.placeholders(start, end), nil
	}
	return merged, nil
}

// eventsFrom resolves one instance's window: fresh cache entry, live
// fetch, or stale substitution after a failed fetch. The second return
// reports whether the instance contributed a result at all.
func (s *Service) eventsFrom(ctx context.Context, src plugin.CalendarSource, start, end time.Time) ([]plugin.Event, bool) {
	id := src.InstanceID()
	key := cache.WindowKey(id, start, end)

	entry := s.cachedEntry(ctx, key, id)
	if entry != nil && entry.Age() <= s.ttl {
		if events, err := decodeEvents(entry.Payload); err == nil {
			s.metrics.ObserveCacheHit(id, metrics.CacheHitFresh)
			return events, true
		}
	}

	events, err := s.fetch(ctx, src, start, end)
	if err == nil {
		events = filterWindow(events, start, end, id)
		s.storeEntry(ctx, key, id, events)
		return events, true
	}

	s.log.Error("calendar fetch failed",
		slog.String("instance_id", id),
		slog.Any("error", err),
	)
	if entry != nil {
		if events, decodeErr := decodeEvents(entry.Payload); decodeErr == nil {
			s.metrics.ObserveCacheHit(id, metrics.CacheHitStale)
			return events, true
		}
	}
	return nil, false
}

func (s *Service) fetch(ctx context.Context, src plugin.CalendarSource, start, end time.Time) ([]plugin.Event, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	events, err := src.FetchEvents(fetchCtx, start, end)
	elapsed := time.Since(began).Seconds()

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		if stdErrors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
	}
	s.metrics.ObserveFetch(src.InstanceID(), string(plugin.CategoryCalendar), outcome, elapsed)
	return events, err
}

func (s *Service) cachedEntry(ctx context.Context, key, id string) *cache.Entry {
	if s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache read failed", slog.String("instance_id", id), slog.Any("error", err))
		return nil
	}
	return entry
}

func (s *Service) storeEntry(ctx context.Context, key, id string, events []plugin.Event) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.cache.Put(ctx, key, payload); err != nil {
		s.log.Warn("cache write failed", slog.String("instance_id", id), slog.Any("error", err))
	}
}

// filterWindow keeps events overlapping the inclusive window and
// rewrites their source to the producing instance id so callers can
// always map an event back to its instance.
func filterWindow(events []plugin.Event, start, end time.Time, instanceID string) []plugin.Event {
	out := make([]plugin.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Overlaps(start, end) {
			continue
		}
		ev.Source = instanceID
		out = append(out, ev)
	}
	return out
}

func (s *Service) placeholders(start, end time.Time) []plugin.Event {
	day := start
	if day.Before(time.Now()) && !end.Before(time.Now()) {
		day = time.Now()
	}
	morning := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, day.Location())
	return []plugin.Event{
		{
			ID:          fmt.Sprintf("%s-welcome", PlaceholderSource),
			Title:       "Welcome to your dashboard",
			Description: "Add a calendar source in settings to see your events here.",
			Start:       morning,
			End:         morning.Add(time.Hour),
			Source:      PlaceholderSource,
		},
		{
			ID:     fmt.Sprintf("%s-allday", PlaceholderSource),
			Title:  "No calendar sources configured",
			Start:  time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()),
			End:    time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, day.Location()),
			AllDay: true,
			Source: PlaceholderSource,
		},
	}
}

func decodeEvents(payload []byte) ([]plugin.Event, error) {
	var events []plugin.Event
	if err := json.Unmarshal(payload, &events); err != nil {
		return nil, err
	}
	return events, nil
}
