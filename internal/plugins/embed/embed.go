// Package embed renders an external page inside a dashboard widget.
package embed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"homedash/pkg/plugin"
)

// TypeID identifies the iframe embed service.
const TypeID = "embed"

var schema = plugin.Schema{
	{Name: "url", Kind: "string", Required: true},
	{Name: "title", Kind: "string"},
}

// Provider announces the embed type and constructs instances.
type Provider struct{}

// NewProvider builds the provider.
func NewProvider() *Provider {
	return &Provider{}
}

// PluginTypes implements plugin.Provider.
func (p *Provider) PluginTypes() []plugin.Info {
	return []plugin.Info{{
		TypeID:      TypeID,
		Name:        "Embedded page",
		Description: "Embeds an external page in an iframe widget.",
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
	src := &Source{Base: plugin.NewBase(instanceID, name)}
	if err := src.Configure(cfg); err != nil {
		return nil, err
	}
	return src, nil
}

// Source is one configured embed widget.
type Source struct {
	plugin.Base
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
	raw, _ := cfg["url"].(string)
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid embed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	}
	return errors.New("embed url must use http or https")
}

// Content implements plugin.ServiceSource.
func (s *Source) Content(context.Context) (*plugin.Content, error) {
	target := s.ConfigString("url")
	if target == "" {
		return nil, errors.New("url is not configured")
	}
	data := map[string]any{}
	if title := s.ConfigString("title"); title != "" {
		data["title"] = title
	}
	return &plugin.Content{Kind: plugin.ContentKindIframe, URL: target, Data: data}, nil
}

// ensure interface compliance at compile time
var (
	_ plugin.Provider      = (*Provider)(nil)
	_ plugin.ServiceSource = (*Source)(nil)
)
