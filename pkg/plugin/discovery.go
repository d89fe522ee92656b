package plugin

import (
	"fmt"
	"log/slog"
)

// Provider is implemented once per integration package. It announces
// the plugin types the package owns and constructs instances of them.
type Provider interface {
	// PluginTypes returns the type metadata for the integrations this
	// provider implements.
	PluginTypes() []Info
	// NewInstance constructs a live plugin object for typeID, or
	// returns (nil, nil) when typeID is not one it owns.
	NewInstance(instanceID, typeID, name string, cfg map[string]any) (Plugin, error)
}

// Registry is the discovery extension point. Providers are assembled
// into a fixed table at process start, so the first-non-nil tie-break
// on instantiation follows provider registration order.
type Registry struct {
	providers []Provider
	log       *slog.Logger
}

// NewRegistry builds a registry over the given provider table.
func NewRegistry(log *slog.Logger, providers ...Provider) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{log: log}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register appends a provider to the table.
func (r *Registry) Register(p Provider) {
	if p != nil {
		r.providers = append(r.providers, p)
	}
}

// Types concatenates every provider's announced types. Duplicate type
// ids are preserved in order; reconciliation lets the last one win.
// A panicking provider contributes nothing for this round.
func (r *Registry) Types() []Info {
	var out []Info
	for _, p := range r.providers {
		out = append(out, r.typesFrom(p)...)
	}
	return out
}

func (r *Registry) typesFrom(p Provider) (infos []Info) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("provider panicked while announcing types",
				slog.String("provider", fmt.Sprintf("%T", p)),
				slog.Any("panic", rec),
			)
			infos = nil
		}
	}()
	return p.PluginTypes()
}

// NewInstance asks each provider in order to construct the instance
// and returns the first non-nil result. A provider error or panic is
// logged and treated as a pass for that provider. When no provider
// owns the type id the result is ErrNotFound.
func (r *Registry) NewInstance(instanceID, typeID, name string, cfg map[string]any) (Plugin, error) {
	cfg = NormalizeConfig(cfg)
	for _, p := range r.providers {
		obj := r.instanceFrom(p, instanceID, typeID, name, cfg)
		if obj != nil {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("no provider owns type %q: %w", typeID, ErrNotFound)
}

func (r *Registry) instanceFrom(p Provider, instanceID, typeID, name string, cfg map[string]any) (obj Plugin) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("provider panicked while constructing instance",
				slog.String("provider", fmt.Sprintf("%T", p)),
				slog.String("type_id", typeID),
				slog.String("instance_id", instanceID),
				slog.Any("panic", rec),
			)
			obj = nil
		}
	}()
	obj, err := p.NewInstance(instanceID, typeID, name, cfg)
	if err != nil {
		r.log.Error("provider failed to construct instance",
			slog.String("provider", fmt.Sprintf("%T", p)),
			slog.String("type_id", typeID),
			slog.String("instance_id", instanceID),
			slog.Any("error", err),
		)
		return nil
	}
	return obj
}
