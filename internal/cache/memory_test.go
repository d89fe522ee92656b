package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)

	require.NoError(t, c.Put(ctx, "k", []byte("payload")))

	entry, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []byte("payload"), entry.Payload)
	assert.LessOrEqual(t, entry.Age(), time.Second)
}

func TestMemoryMissReturnsNil(t *testing.T) {
	c := NewMemory(0)
	entry, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestMemoryGetReturnsClone(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	require.NoError(t, c.Put(ctx, "k", []byte("abc")))

	entry, err := c.Get(ctx, "k")
	require.NoError(t, err)
	entry.Payload[0] = 'x'

	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again.Payload)
}

func TestMemoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2)

	require.NoError(t, c.Put(ctx, "first", []byte("1")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Put(ctx, "second", []byte("2")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, c.Put(ctx, "third", []byte("3")))

	evicted, err := c.Get(ctx, "first")
	require.NoError(t, err)
	assert.Nil(t, evicted)

	kept, err := c.Get(ctx, "third")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestKeyComposition(t *testing.T) {
	start := time.Unix(1000, 0)
	end := time.Unix(2000, 0)
	assert.Equal(t, WindowKey("cal-1", start, end), WindowKey("cal-1", start, end))
	assert.NotEqual(t, WindowKey("cal-1", start, end), WindowKey("cal-2", start, end))
	assert.NotEqual(t, WindowKey("cal-1", start, end), WindowKey("cal-1", start, end.Add(time.Second)))
}
