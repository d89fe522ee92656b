// Package mailbox turns image attachments from a mail account into an
// image source. The mailbox is polled by a supervised background task
// owned by the instance; protocol details live behind the MailFetcher
// collaborator.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"homedash/pkg/logger"
	"homedash/pkg/plugin"
)

// TypeID identifies the mailbox image source.
const TypeID = "mailbox_images"

const defaultPollInterval = 5 * time.Minute

var schema = plugin.Schema{
	{Name: "address", Kind: "string", Required: true},
	{Name: "folder", Kind: "string", Default: "INBOX"},
	{Name: "poll_interval_seconds", Kind: "int", Default: 300},
	{Name: "keep_latest", Kind: "int", Default: 50},
}

// Attachment is one image file pulled from the mailbox.
type Attachment struct {
	Filename   string
	Data       []byte
	ReceivedAt time.Time
}

// MailFetcher retrieves the current image attachments of the
// configured folder. Implementations own connection handling.
type MailFetcher interface {
	FetchAttachments(ctx context.Context) ([]Attachment, error)
}

// NullFetcher reports no attachments. It stands in until a real
// mail backend is wired by the host.
type NullFetcher struct{}

// FetchAttachments implements MailFetcher.
func (NullFetcher) FetchAttachments(context.Context) ([]Attachment, error) {
	return nil, nil
}

// Provider announces the mailbox type and constructs instances.
type Provider struct {
	fetcher MailFetcher
}

// NewProvider builds the provider. A nil fetcher falls back to the
// null implementation.
func NewProvider(fetcher MailFetcher) *Provider {
	if fetcher == nil {
		fetcher = NullFetcher{}
	}
	return &Provider{fetcher: fetcher}
}

// PluginTypes implements plugin.Provider. Several mailboxes can feed
// one dashboard, so the type toggle does not propagate.
func (p *Provider) PluginTypes() []plugin.Info {
	return []plugin.Info{{
		TypeID:      TypeID,
		Name:        "Mailbox images",
		Description: "Shows image attachments sent to a mail folder.",
		Version:     "1.0.0",
		Category:    plugin.CategoryImage,
		Schema:      schema,
	}}
}

// NewInstance implements plugin.Provider.
func (p *Provider) NewInstance(instanceID, typeID, name string, cfg map[string]any) (plugin.Plugin, error) {
	if typeID != TypeID {
		return nil, nil
	}
	src := &Source{
		Base:    plugin.NewBase(instanceID, name),
		fetcher: p.fetcher,
		log:     logger.Named("mailbox").With(slog.String("instance_id", instanceID)),
		images:  make(map[string]storedImage),
	}
	if err := src.Configure(cfg); err != nil {
		return nil, err
	}
	return src, nil
}

type storedImage struct {
	meta plugin.ImageMeta
	data []byte
}

// Source is one configured mailbox.
type Source struct {
	plugin.Base
	fetcher MailFetcher
	log     *slog.Logger

	mu     sync.RWMutex
	images map[string]storedImage
	order  []string

	cancel context.CancelFunc
	done   chan struct{}
}

// Info implements plugin.Plugin.
func (s *Source) Info() plugin.Info {
	return (&Provider{}).PluginTypes()[0]
}

// Init starts the polling task. Each instance owns exactly one.
func (s *Source) Init(ctx context.Context) error {
	if err := s.BeginInit(); err != nil {
		return err
	}
	if s.ConfigString("address") == "" {
		return errors.New("address is not configured")
	}
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.poll(pollCtx)
	return nil
}

// Cleanup cancels the polling task and waits for it to finish, so no
// task outlives the instance.
func (s *Source) Cleanup(context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}
	s.FinishCleanup()
	return nil
}

func (s *Source) poll(ctx context.Context) {
	defer close(s.done)

	interval := defaultPollInterval
	if secs, ok := s.ConfigInt("poll_interval_seconds"); ok && secs > 0 {
		interval = time.Duration(secs) * time.Second
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 10 * time.Second
	retry.MaxInterval = interval

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := s.refresh(ctx); err != nil {
			s.log.Error("mailbox poll failed", slog.Any("error", err))
			timer.Reset(retry.NextBackOff())
			continue
		}
		retry.Reset()
		timer.Reset(interval)
	}
}

func (s *Source) refresh(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	attachments, err := s.fetcher.FetchAttachments(fetchCtx)
	if err != nil {
		return err
	}

	keep := 50
	if n, ok := s.ConfigInt("keep_latest"); ok && n > 0 {
		keep = n
	}
	if len(attachments) > keep {
		attachments = attachments[:keep]
	}

	images := make(map[string]storedImage, len(attachments))
	order := make([]string, 0, len(attachments))
	for _, att := range attachments {
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(att.Filename)))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		id := attachmentID(att)
		images[id] = storedImage{
			meta: plugin.ImageMeta{
				ID:       id,
				Name:     att.Filename,
				MimeType: mimeType,
				Size:     int64(len(att.Data)),
				TakenAt:  att.ReceivedAt,
			},
			data: att.Data,
		}
		order = append(order, id)
	}

	s.mu.Lock()
	s.images = images
	s.order = order
	s.mu.Unlock()
	return nil
}

// Images implements plugin.ImageSource.
func (s *Source) Images(context.Context) ([]plugin.ImageMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]plugin.ImageMeta, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.images[id].meta)
	}
	return out, nil
}

// Image implements plugin.ImageSource.
func (s *Source) Image(_ context.Context, id string) (*plugin.ImageMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if img, ok := s.images[id]; ok {
		meta := img.meta
		return &meta, nil
	}
	return nil, nil
}

// ImageData implements plugin.ImageSource.
func (s *Source) ImageData(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if img, ok := s.images[id]; ok {
		return img.data, nil
	}
	return nil, nil
}

// Scan implements plugin.ImageSource with an immediate poll instead of
// waiting for the next tick.
func (s *Source) Scan(ctx context.Context) ([]plugin.ImageMeta, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.Images(ctx)
}

func attachmentID(att Attachment) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(att.Filename))
	_, _ = h.Write(att.Data)
	return fmt.Sprintf("%x", h.Sum64())
}

// ensure interface compliance at compile time
var (
	_ plugin.Provider    = (*Provider)(nil)
	_ plugin.ImageSource = (*Source)(nil)
)
