// Package ical provides the calendar-feed integrations. One
// implementation backs two type ids: plain ical subscriptions and
// webcal links handed out by hosted calendar products.
package ical

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"homedash/pkg/plugin"
)

const (
	// TypeICal is a plain iCalendar subscription URL.
	TypeICal = "ical"
	// TypeWebcal is the same feed behind a webcal:// link.
	TypeWebcal = "webcal"
)

var schema = plugin.Schema{
	{Name: "ical_url", Kind: "string", Required: true},
	{Name: "max_events", Kind: "int", Default: 100},
}

// Provider announces the calendar feed types and constructs instances.
type Provider struct {
	fetcher FeedFetcher
}

// NewProvider builds the provider. A nil fetcher falls back to the
// HTTP implementation.
func NewProvider(fetcher FeedFetcher) *Provider {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(0)
	}
	return &Provider{fetcher: fetcher}
}

// PluginTypes implements plugin.Provider. Calendar subscriptions are
// account-level, so the type toggle propagates to instances.
func (p *Provider) PluginTypes() []plugin.Info {
	return []plugin.Info{
		{
			TypeID:          TypeICal,
			Name:            "iCalendar feed",
			Description:     "Subscribes to an iCalendar (.ics) feed URL.",
			Version:         "1.0.0",
			Category:        plugin.CategoryCalendar,
			Schema:          schema,
			PropagateToggle: true,
		},
		{
			TypeID:          TypeWebcal,
			Name:            "Webcal feed",
			Description:     "Subscribes to a webcal:// calendar link.",
			Version:         "1.0.0",
			Category:        plugin.CategoryCalendar,
			Schema:          schema,
			PropagateToggle: true,
		},
	}
}

// NewInstance implements plugin.Provider.
func (p *Provider) NewInstance(instanceID, typeID, name string, cfg map[string]any) (plugin.Plugin, error) {
	if typeID != TypeICal && typeID != TypeWebcal {
		return nil, nil
	}
	src := &Source{
		Base:    plugin.NewBase(instanceID, name),
		typeID:  typeID,
		fetcher: p.fetcher,
	}
	if err := src.Configure(cfg); err != nil {
		return nil, err
	}
	return src, nil
}

// Source is one configured calendar feed.
type Source struct {
	plugin.Base
	typeID  string
	fetcher FeedFetcher
}

// Info implements plugin.Plugin.
func (s *Source) Info() plugin.Info {
	for _, info := range (&Provider{}).PluginTypes() {
		if info.TypeID == s.typeID {
			return info
		}
	}
	return plugin.Info{TypeID: s.typeID, Category: plugin.CategoryCalendar}
}

// Init implements plugin.Plugin. Feeds are fetched on demand, so there
// is no background work to start.
func (s *Source) Init(context.Context) error {
	return s.BeginInit()
}

// Cleanup implements plugin.Plugin.
func (s *Source) Cleanup(context.Context) error {
	s.FinishCleanup()
	return nil
}

// ValidateConfig implements plugin.CalendarSource.
func (s *Source) ValidateConfig(cfg map[string]any) error {
	cfg = plugin.NormalizeConfig(cfg)
	if err := plugin.CheckRequired(schema, cfg); err != nil {
		return err
	}
	raw, _ := cfg["ical_url"].(string)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "webcal":
		return nil
	}
	return errors.New("feed url must use http, https or webcal")
}

// FetchEvents implements plugin.CalendarSource.
func (s *Source) FetchEvents(ctx context.Context, start, end time.Time) ([]plugin.Event, error) {
	feedURL := s.ConfigString("ical_url")
	if feedURL == "" {
		return nil, errors.New("ical_url is not configured")
	}
	events, err := s.fetcher.FetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if max, ok := s.ConfigInt("max_events"); ok && max > 0 && len(events) > max {
		events = events[:max]
	}
	out := make([]plugin.Event, 0, len(events))
	for _, ev := range events {
		if ev.Overlaps(start, end) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// ensure interface compliance at compile time
var (
	_ plugin.Provider       = (*Provider)(nil)
	_ plugin.CalendarSource = (*Source)(nil)
)
