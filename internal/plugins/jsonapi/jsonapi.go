// Package jsonapi backs a widget with data pulled from a JSON HTTP
// API. Besides the basic content descriptor it accepts inbound
// webhooks and proxies simple API reads for the widget frontend.
package jsonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"homedash/pkg/plugin"
)

// TypeID identifies the JSON API service.
const TypeID = "json_api"

var schema = plugin.Schema{
	{Name: "api_url", Kind: "string", Required: true},
	{Name: "refresh_seconds", Kind: "int", Default: 600},
}

// Provider announces the JSON API type and constructs instances.
type Provider struct {
	client *http.Client
}

// NewProvider builds the provider. A nil client gets a bounded default.
func NewProvider(client *http.Client) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{client: client}
}

// PluginTypes implements plugin.Provider.
func (p *Provider) PluginTypes() []plugin.Info {
	return []plugin.Info{{
		TypeID:      TypeID,
		Name:        "JSON API widget",
		Description: "Feeds a widget from a JSON HTTP endpoint.",
		Version:     "1.0.0",
		Category:    plugin.CategoryService,
		Schema:      schema,
	}}
}

// NewInstance implements plugin.Provider.
func (p *Provider) NewInstance(instanceID, typeID, name string, cfg map[string]any) (plugin.Plugin, error) {
	if typeID != TypeID {
		return nil, nil
	}
	src := &Source{
		Base:   plugin.NewBase(instanceID, name),
		client: p.client,
	}
	if err := src.Configure(cfg); err != nil {
		return nil, err
	}
	return src, nil
}

// Source is one configured JSON API widget.
type Source struct {
	plugin.Base
	client *http.Client

	mu       sync.RWMutex
	latest   map[string]any
	fetched  time.Time
	received map[string]any
}

// Info implements plugin.Plugin.
func (s *Source) Info() plugin.Info {
	return (&Provider{}).PluginTypes()[0]
}

// Init implements plugin.Plugin.
func (s *Source) Init(context.Context) error {
	return s.BeginInit()
}

// Cleanup implements plugin.Plugin.
func (s *Source) Cleanup(context.Context) error {
	s.FinishCleanup()
	return nil
}

// ValidateConfig implements plugin.ServiceSource.
func (s *Source) ValidateConfig(cfg map[string]any) error {
	cfg = plugin.NormalizeConfig(cfg)
	if err := plugin.CheckRequired(schema, cfg); err != nil {
		return err
	}
	raw, _ := cfg["api_url"].(string)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	}
	return errors.New("api url must use http or https")
}

// Content implements plugin.ServiceSource. It serves the most recent
// data, refreshing it when older than the configured interval.
func (s *Source) Content(ctx context.Context) (*plugin.Content, error) {
	refresh := 600
	if secs, ok := s.ConfigInt("refresh_seconds"); ok && secs > 0 {
		refresh = secs
	}

	s.mu.RLock()
	fresh := s.latest != nil && time.Since(s.fetched) < time.Duration(refresh)*time.Second
	latest := s.latest
	received := s.received
	s.mu.RUnlock()

	if !fresh {
		data, err := s.FetchData(ctx, nil)
		if err != nil {
			if latest == nil {
				return nil, err
			}
			// serve the previous payload rather than an empty widget
		} else if m, ok := data.(map[string]any); ok {
			latest = m
		}
	}

	payload := map[string]any{"data": latest}
	if received != nil {
		payload["webhook"] = received
	}
	return &plugin.Content{Kind: plugin.ContentKindData, Data: payload}, nil
}

// FetchData implements plugin.DataFetcher: a GET against the endpoint,
// with params appended to the query string.
func (s *Source) FetchData(ctx context.Context, params map[string]any) (any, error) {
	endpoint := s.ConfigString("api_url")
	if endpoint == "" {
		return nil, errors.New("api_url is not configured")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch api data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch api data: unexpected status %d", resp.StatusCode)
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode api data: %w", err)
	}

	s.mu.Lock()
	s.latest = decoded
	s.fetched = time.Now()
	s.mu.Unlock()
	return decoded, nil
}

// HandleWebhook implements plugin.WebhookHandler: the payload is kept
// and surfaced alongside the fetched data.
func (s *Source) HandleWebhook(_ context.Context, payload []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	s.mu.Lock()
	s.received = decoded
	s.mu.Unlock()
	return nil
}

// HandleAPI implements plugin.APIHandler for widget-initiated reads.
func (s *Source) HandleAPI(ctx context.Context, method, path string, data map[string]any) (any, error) {
	if method != http.MethodGet {
		return nil, plugin.ErrUnsupported
	}
	switch strings.Trim(path, "/") {
	case "", "data":
		return s.FetchData(ctx, data)
	case "webhook":
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.received, nil
	}
	return nil, plugin.ErrUnsupported
}

// ensure interface compliance at compile time
var (
	_ plugin.Provider       = (*Provider)(nil)
	_ plugin.ServiceSource  = (*Source)(nil)
	_ plugin.DataFetcher    = (*Source)(nil)
	_ plugin.WebhookHandler = (*Source)(nil)
	_ plugin.APIHandler     = (*Source)(nil)
)
