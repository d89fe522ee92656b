package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedash/internal/cache"
	"homedash/pkg/plugin"
)

// fakeCalendar serves a fixed event set and can be flipped into a
// failing state between calls.
type fakeCalendar struct {
	plugin.Base
	events []plugin.Event
	err    error
	calls  int
}

func newFakeCalendar(id string, events ...plugin.Event) *fakeCalendar {
	return &fakeCalendar{Base: plugin.NewBase(id, id), events: events}
}

func (f *fakeCalendar) Info() plugin.Info {
	return plugin.Info{TypeID: "fake", Category: plugin.CategoryCalendar}
}

func (f *fakeCalendar) Init(context.Context) error { return f.BeginInit() }

func (f *fakeCalendar) Cleanup(context.Context) error {
	f.FinishCleanup()
	return nil
}

func (f *fakeCalendar) ValidateConfig(map[string]any) error { return nil }

func (f *fakeCalendar) FetchEvents(context.Context, time.Time, time.Time) ([]plugin.Event, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

var _ plugin.CalendarSource = (*fakeCalendar)(nil)

func window() (time.Time, time.Time) {
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	return start, start.Add(48 * time.Hour)
}

func event(id string, offset time.Duration) plugin.Event {
	start, _ := window()
	return plugin.Event{
		ID:     id,
		Title:  id,
		Start:  start.Add(offset),
		End:    start.Add(offset + time.Hour),
		Source: "upstream-calendar-name",
	}
}

func newTestService(t *testing.T, sources ...*fakeCalendar) *Service {
	t.Helper()
	runtime := plugin.NewRuntime(nil)
	for _, src := range sources {
		require.NoError(t, runtime.Register(src))
	}
	return New(runtime, cache.NewMemory(0))
}

func eventIDs(events []plugin.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

func TestEventsMergesAndRewritesSource(t *testing.T) {
	a := newFakeCalendar("cal-a", event("a1", time.Hour), event("a2", 2*time.Hour))
	b := newFakeCalendar("cal-b", event("b1", 3*time.Hour))
	svc := newTestService(t, a, b)

	start, end := window()
	events, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, eventIDs(events))
	for _, ev := range events {
		switch ev.ID {
		case "b1":
			assert.Equal(t, "cal-b", ev.Source)
		default:
			assert.Equal(t, "cal-a", ev.Source)
		}
	}
}

func TestEventsFiltersToInclusiveWindow(t *testing.T) {
	start, end := window()
	boundary := plugin.Event{ID: "boundary", Start: end, End: end.Add(time.Hour)}
	outside := plugin.Event{ID: "outside", Start: end.Add(time.Hour), End: end.Add(2 * time.Hour)}
	before := plugin.Event{ID: "before", Start: start.Add(-2 * time.Hour), End: start.Add(-time.Hour)}
	touching := plugin.Event{ID: "touching", Start: start.Add(-time.Hour), End: start}

	svc := newTestService(t, newFakeCalendar("cal-a", boundary, outside, before, touching))
	events, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"boundary", "touching"}, eventIDs(events))
}

func TestEventsFailureIsolation(t *testing.T) {
	healthy := newFakeCalendar("cal-ok", event("ok1", time.Hour))
	broken := newFakeCalendar("cal-broken")
	broken.err = errors.New("feed unreachable")
	svc := newTestService(t, healthy, broken)

	start, end := window()
	events, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err, "one failing source must not fail the aggregate")
	assert.Equal(t, []string{"ok1"}, eventIDs(events))
}

func TestEventsStaleCacheSubstitution(t *testing.T) {
	src := newFakeCalendar("cal-a", event("a1", time.Hour))
	svc := newTestService(t, src)
	svc.ttl = 0 // every cached entry is immediately stale

	start, end := window()
	first, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, eventIDs(first))

	src.err = errors.New("feed unreachable")
	second, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, eventIDs(second), "failed fetch must fall back to the cached window")
	assert.Equal(t, 2, src.calls, "stale entries must not satisfy a healthy fetch")
}

func TestEventsFreshCacheShortCircuits(t *testing.T) {
	src := newFakeCalendar("cal-a", event("a1", time.Hour))
	svc := newTestService(t, src)

	start, end := window()
	_, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	_, err = svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "a fresh cache entry must answer the second call")
}

func TestEventsPlaceholdersOnlyWithoutData(t *testing.T) {
	svc := newTestService(t)
	start, end := window()

	events, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for _, ev := range events {
		assert.Equal(t, PlaceholderSource, ev.Source)
	}
}

func TestEventsEmptyFetchSuppressesPlaceholders(t *testing.T) {
	svc := newTestService(t, newFakeCalendar("cal-a"))
	start, end := window()

	events, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	assert.Empty(t, events, "a successful empty fetch is data, not an excuse for placeholders")
}

func TestEventsDisabledSourcesSkipped(t *testing.T) {
	active := newFakeCalendar("cal-on", event("on1", time.Hour))
	dormant := newFakeCalendar("cal-off", event("off1", time.Hour))
	dormant.Disable()
	svc := newTestService(t, active, dormant)

	start, end := window()
	events, err := svc.Events(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, []string{"on1"}, eventIDs(events))
	assert.Zero(t, dormant.calls)
}

func TestEventsSwapsInvertedWindow(t *testing.T) {
	src := newFakeCalendar("cal-a", event("a1", time.Hour))
	svc := newTestService(t, src)

	start, end := window()
	events, err := svc.Events(context.Background(), end, start)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, eventIDs(events))
}
