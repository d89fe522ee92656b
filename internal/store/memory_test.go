package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "homedash/internal/errors"
	"homedash/pkg/plugin"
)

func TestMemoryStoreTypeRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	row := &TypeRow{
		TypeID:   "ical",
		Category: plugin.CategoryCalendar,
		Name:     "iCalendar feed",
		Schema:   plugin.Schema{{Name: "ical_url", Kind: "string", Required: true}},
		Enabled:  true,
	}
	require.NoError(t, st.UpsertType(ctx, row))

	got, err := st.GetType(ctx, "ical")
	require.NoError(t, err)
	assert.Equal(t, "iCalendar feed", got.Name)
	assert.NotZero(t, got.CreatedAt)

	// upsert keeps the original creation stamp
	row.Name = "renamed"
	require.NoError(t, st.UpsertType(ctx, row))
	updated, err := st.GetType(ctx, "ical")
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, got.CreatedAt, updated.CreatedAt)
}

func TestMemoryStoreReadsReturnClones(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.UpsertInstance(ctx, &InstanceRow{
		ID:       "cal-1",
		TypeID:   "ical",
		Category: plugin.CategoryCalendar,
		Config:   map[string]any{"ical_url": "https://example.com"},
	}))

	first, err := st.GetInstance(ctx, "cal-1")
	require.NoError(t, err)
	first.Config["ical_url"] = "mutated"
	first.Name = "mutated"

	second, err := st.GetInstance(ctx, "cal-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", second.Config["ical_url"])
	assert.Empty(t, second.Name)
}

func TestMemoryStoreListInstancesByCategory(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.UpsertInstance(ctx, &InstanceRow{ID: "b", TypeID: "ical", Category: plugin.CategoryCalendar}))
	require.NoError(t, st.UpsertInstance(ctx, &InstanceRow{ID: "a", TypeID: "ical", Category: plugin.CategoryCalendar}))
	require.NoError(t, st.UpsertInstance(ctx, &InstanceRow{ID: "c", TypeID: "local_images", Category: plugin.CategoryImage}))

	calendars, err := st.ListInstances(ctx, plugin.CategoryCalendar)
	require.NoError(t, err)
	require.Len(t, calendars, 2)
	assert.Equal(t, "a", calendars[0].ID)
	assert.Equal(t, "b", calendars[1].ID)

	all, err := st.ListInstances(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoreDeleteInstance(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.UpsertInstance(ctx, &InstanceRow{ID: "cal-1", TypeID: "ical", Category: plugin.CategoryCalendar}))

	deleted, err := st.DeleteInstance(ctx, "cal-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = st.DeleteInstance(ctx, "cal-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStoreToggles(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	require.NoError(t, st.UpsertType(ctx, &TypeRow{TypeID: "ical", Category: plugin.CategoryCalendar, Enabled: true}))
	require.NoError(t, st.UpsertInstance(ctx, &InstanceRow{ID: "cal-1", TypeID: "ical", Category: plugin.CategoryCalendar, Enabled: true}))

	require.NoError(t, st.SetTypeEnabled(ctx, "ical", false))
	typeRow, err := st.GetType(ctx, "ical")
	require.NoError(t, err)
	assert.False(t, typeRow.Enabled)

	require.NoError(t, st.SetInstanceEnabled(ctx, "cal-1", false))
	instRow, err := st.GetInstance(ctx, "cal-1")
	require.NoError(t, err)
	assert.False(t, instRow.Enabled)

	err = st.SetInstanceEnabled(ctx, "ghost", true)
	assert.True(t, xerrors.IsCode(err, xerrors.CodeNotFound))
}

func TestMemoryStoreMissingRows(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.GetType(ctx, "ghost")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeNotFound))

	_, err = st.GetInstance(ctx, "ghost")
	assert.True(t, xerrors.IsCode(err, xerrors.CodeNotFound))
}
