// Package imagefeed aggregates images across enabled image plugins and
// maintains the slideshow cursor over their combined order.
package imagefeed

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"homedash/internal/bus"
	xerrors "homedash/internal/errors"
	"homedash/internal/observability/metrics"
	"homedash/pkg/logger"
	"homedash/pkg/plugin"
)

// DefaultFetchTimeout bounds each plugin's outbound call.
const DefaultFetchTimeout = 30 * time.Second

// ref addresses one image by its owning instance.
type ref struct {
	instance string
	imageID  string
}

// Service fans image queries out to enabled image instances and keeps
// the slideshow cursor.
type Service struct {
	runtime *plugin.Runtime
	metrics *metrics.Collector
	bus     bus.Bus
	log     *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	order    []ref
	shuffled []ref
	shuffle  bool
	cursor   int
	scanned  bool
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithBus attaches a change-notification bus.
func WithBus(b bus.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// WithFetchTimeout overrides the per-plugin fetch bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithShuffle sets the initial cursor order mode.
func WithShuffle(enabled bool) Option {
	return func(s *Service) { s.shuffle = enabled }
}

// New constructs the image aggregation service.
func New(runtime *plugin.Runtime, opts ...Option) *Service {
	s := &Service{
		runtime: runtime,
		log:     logger.Named("imagefeed"),
		timeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Images returns the merged metadata of every enabled image instance.
// A failing instance is logged and skipped.
func (s *Service) Images(ctx context.Context) []plugin.ImageMeta {
	var merged []plugin.ImageMeta
	for _, src := range s.sources() {
		images, err := s.imagesFrom(ctx, src)
		if err != nil {
			s.log.Error("image listing failed",
				slog.String("instance_id", src.InstanceID()),
				slog.Any("error", err),
			)
			continue
		}
		merged = append(merged, images...)
	}
	return merged
}

// Rescan asks every enabled instance to refresh its backing store,
// rebuilds the natural order, recomputes the shuffled order once, and
// resets the cursor.
func (s *Service) Rescan(ctx context.Context) []plugin.ImageMeta {
	var (
		merged []plugin.ImageMeta
		order  []ref
	)
	for _, src := range s.sources() {
		scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
		began := time.Now()
		images, err := src.Scan(scanCtx)
		cancel()
		outcome := metrics.OutcomeOK
		if err != nil {
			outcome = metrics.OutcomeError
			if stdErrors.Is(err, context.DeadlineExceeded) {
				outcome = metrics.OutcomeTimeout
			}
		}
		s.metrics.ObserveFetch(src.InstanceID(), string(plugin.CategoryImage), outcome, time.Since(began).Seconds())
		if err != nil {
			s.log.Error("image scan failed",
				slog.String("instance_id", src.InstanceID()),
				slog.Any("error", err),
			)
			continue
		}
		for _, img := range images {
			img.Source = src.InstanceID()
			merged = append(merged, img)
			order = append(order, ref{instance: src.InstanceID(), imageID: img.ID})
		}
	}

	s.mu.Lock()
	s.order = order
	s.shuffled = shuffleRefs(order)
	s.cursor = 0
	s.scanned = true
	s.mu.Unlock()

	if s.bus != nil {
		if err := s.bus.Publish(ctx, bus.Event{Kind: bus.KindImagesRescanned}); err != nil {
			s.log.Warn("publishing rescan event failed", slog.Any("error", err))
		}
	}
	return merged
}

// Next advances the cursor and returns the image it lands on.
func (s *Service) Next(ctx context.Context) (*plugin.ImageMeta, error) {
	return s.step(ctx, 1)
}

// Previous moves the cursor back and returns the image it lands on.
func (s *Service) Previous(ctx context.Context) (*plugin.ImageMeta, error) {
	return s.step(ctx, -1)
}

// Current returns the image under the cursor without moving it.
func (s *Service) Current(ctx context.Context) (*plugin.ImageMeta, error) {
	return s.step(ctx, 0)
}

// SetShuffle switches the cursor between the natural concatenation
// order and the shuffled order computed at the last rescan.
func (s *Service) SetShuffle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuffle != enabled {
		s.shuffle = enabled
		s.cursor = 0
	}
}

// ImageData returns the raw bytes of one image from its owning
// instance.
func (s *Service) ImageData(ctx context.Context, instanceID, imageID string) ([]byte, error) {
	p := s.runtime.Get(instanceID)
	if p == nil {
		return nil, xerrors.New(xerrors.CodePluginNotFound, "image source "+instanceID+" not found")
	}
	src, ok := p.(plugin.ImageSource)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, instanceID+" is not an image source")
	}
	dataCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := src.ImageData(dataCtx, imageID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeFetchFailure, err, "read image "+imageID)
	}
	if data == nil {
		return nil, xerrors.New(xerrors.CodeNotFound, "image "+imageID+" not found")
	}
	return data, nil
}

func (s *Service) step(ctx context.Context, delta int) (*plugin.ImageMeta, error) {
	s.mu.Lock()
	if !s.scanned {
		s.mu.Unlock()
		s.Rescan(ctx)
		s.mu.Lock()
	}
	active := s.order
	if s.shuffle {
		active = s.shuffled
	}
	if len(active) == 0 {
		s.mu.Unlock()
		return nil, xerrors.New(xerrors.CodeNotFound, "no images available")
	}
	s.cursor = ((s.cursor+delta)%len(active) + len(active)) % len(active)
	target := active[s.cursor]
	s.mu.Unlock()

	p := s.runtime.Get(target.instance)
	src, ok := p.(plugin.ImageSource)
	if !ok || p == nil {
		return nil, xerrors.New(xerrors.CodePluginNotFound, "image source "+target.instance+" not found")
	}
	metaCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	meta, err := src.Image(metaCtx, target.imageID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeFetchFailure, err, "resolve image "+target.imageID)
	}
	if meta == nil {
		return nil, xerrors.New(xerrors.CodeNotFound, "image "+target.imageID+" not found")
	}
	out := *meta
	out.Source = target.instance
	return &out, nil
}

func (s *Service) sources() []plugin.ImageSource {
	var out []plugin.ImageSource
	for _, p := range s.runtime.List(plugin.CategoryImage, true) {
		if src, ok := p.(plugin.ImageSource); ok {
			out = append(out, src)
		}
	}
	return out
}

func (s *Service) imagesFrom(ctx context.Context, src plugin.ImageSource) ([]plugin.ImageMeta, error) {
	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	began := time.Now()
	images, err := src.Images(listCtx)
	elapsed := time.Since(began).Seconds()

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		if stdErrors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
	}
	s.metrics.ObserveFetch(src.InstanceID(), string(plugin.CategoryImage), outcome, elapsed)
	if err != nil {
		return nil, err
	}
	for i := range images {
		images[i].Source = src.InstanceID()
	}
	return images, nil
}

func shuffleRefs(order []ref) []ref {
	out := append([]ref(nil), order...)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
