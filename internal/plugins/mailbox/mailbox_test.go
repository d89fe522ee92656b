package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMail serves a fixed attachment set and counts fetches.
type stubMail struct {
	mu          sync.Mutex
	attachments []Attachment
	fetches     int
}

func (s *stubMail) FetchAttachments(context.Context) ([]Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return append([]Attachment(nil), s.attachments...), nil
}

func newTestSource(t *testing.T, fetcher MailFetcher, cfg map[string]any) *Source {
	t.Helper()
	obj, err := NewProvider(fetcher).NewInstance("mail-1", TypeID, "Grandma", cfg)
	require.NoError(t, err)
	return obj.(*Source)
}

func TestScanFiltersNonImageAttachments(t *testing.T) {
	fetcher := &stubMail{attachments: []Attachment{
		{Filename: "photo.jpg", Data: []byte("jpeg"), ReceivedAt: time.Now()},
		{Filename: "invoice.pdf", Data: []byte("pdf")},
	}}
	src := newTestSource(t, fetcher, map[string]any{"address": "frame@example.com"})

	images, err := src.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "photo.jpg", images[0].Name)
}

func TestKeepLatestCapsAttachments(t *testing.T) {
	fetcher := &stubMail{attachments: []Attachment{
		{Filename: "a.jpg", Data: []byte("a")},
		{Filename: "b.jpg", Data: []byte("b")},
		{Filename: "c.jpg", Data: []byte("c")},
	}}
	src := newTestSource(t, fetcher, map[string]any{"address": "frame@example.com", "keep_latest": 2})

	images, err := src.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestImageDataRoundTrip(t *testing.T) {
	fetcher := &stubMail{attachments: []Attachment{
		{Filename: "photo.jpg", Data: []byte("jpeg-bytes")},
	}}
	src := newTestSource(t, fetcher, map[string]any{"address": "frame@example.com"})
	ctx := context.Background()

	images, err := src.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)

	data, err := src.ImageData(ctx, images[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	meta, err := src.Image(ctx, images[0].ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "photo.jpg", meta.Name)
}

func TestInitRequiresAddress(t *testing.T) {
	src := newTestSource(t, &stubMail{}, nil)
	assert.Error(t, src.Init(context.Background()))
}

func TestCleanupStopsPolling(t *testing.T) {
	fetcher := &stubMail{}
	src := newTestSource(t, fetcher, map[string]any{
		"address":               "frame@example.com",
		"poll_interval_seconds": 3600,
	})

	require.NoError(t, src.Init(context.Background()))
	require.NoError(t, src.Cleanup(context.Background()))

	fetcher.mu.Lock()
	after := fetcher.fetches
	fetcher.mu.Unlock()
	time.Sleep(20 * time.Millisecond)

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Equal(t, after, fetcher.fetches, "no fetches may happen after cleanup")

	// cleanup is safe to repeat
	require.NoError(t, src.Cleanup(context.Background()))
}
