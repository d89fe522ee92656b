// Package orchestrator reconciles discovery metadata and persisted
// plugin rows into the runtime index, and applies configuration
// mutations while keeping persistence and runtime in sync.
package orchestrator

import (
	"context"
	stdErrors "errors"
	"log/slog"

	"github.com/google/uuid"

	"homedash/internal/bus"
	xerrors "homedash/internal/errors"
	"homedash/internal/observability/metrics"
	"homedash/internal/store"
	"homedash/pkg/logger"
	"homedash/pkg/plugin"
)

// Orchestrator coordinates the discovery registry, the persistence
// store and the runtime index.
type Orchestrator struct {
	registry *plugin.Registry
	runtime  *plugin.Runtime
	store    store.Store
	bus      bus.Bus
	metrics  *metrics.Collector
	log      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus attaches a change-notification bus.
func WithBus(b bus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = c }
}

// WithLogger overrides the component logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// New constructs an Orchestrator over the given collaborators.
func New(registry *plugin.Registry, runtime *plugin.Runtime, st store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		runtime:  runtime,
		store:    st,
		log:      logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Reconcile aligns discovery output and persisted rows with the
// runtime. Failures on individual types or instances are logged and
// skipped so the rest of the startup proceeds.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	if o.store == nil || o.registry == nil || o.runtime == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "orchestrator collaborators not wired")
	}
	o.reconcileTypes(ctx)
	o.reconcileInstances(ctx)
	o.refreshGauges()
	return nil
}

// reconcileTypes upserts one row per announced type. Duplicate type
// ids are applied in announcement order, so the last one wins. Rows
// whose provider has disappeared are left in place.
func (o *Orchestrator) reconcileTypes(ctx context.Context) {
	for _, info := range o.registry.Types() {
		if info.TypeID == "" || !info.Category.Valid() {
			o.log.Warn("skipping type with invalid metadata",
				slog.String("type_id", info.TypeID),
				slog.String("category", string(info.Category)),
			)
			continue
		}
		row := &store.TypeRow{
			TypeID:          info.TypeID,
			Category:        info.Category,
			Name:            info.Name,
			Description:     info.Description,
			Version:         info.Version,
			Schema:          info.Schema,
			Enabled:         true,
			PropagateToggle: info.PropagateToggle,
		}
		if existing, err := o.store.GetType(ctx, info.TypeID); err == nil {
			row.Enabled = existing.Enabled
		}
		if err := o.store.UpsertType(ctx, row); err != nil {
			o.log.Error("type reconciliation failed",
				slog.String("type_id", info.TypeID),
				slog.Any("error", xerrors.Wrap(xerrors.CodeReconciliation, err, "")),
			)
		}
	}
}

// reconcileInstances restores every persisted instance into the
// runtime: live objects get their config and toggle re-applied,
// missing ones are factory-constructed. Instances whose type id no
// longer resolves are skipped, never deleted.
func (o *Orchestrator) reconcileInstances(ctx context.Context) {
	rows, err := o.store.ListInstances(ctx, "")
	if err != nil {
		o.log.Error("listing persisted instances failed", slog.Any("error", err))
		return
	}
	for _, row := range rows {
		if err := o.reconcileInstance(ctx, row); err != nil {
			o.log.Error("instance reconciliation failed",
				slog.String("instance_id", row.ID),
				slog.String("type_id", row.TypeID),
				slog.Any("error", xerrors.Wrap(xerrors.CodeReconciliation, err, "")),
			)
		}
	}
}

func (o *Orchestrator) reconcileInstance(ctx context.Context, row *store.InstanceRow) error {
	cfg := plugin.NormalizeConfig(row.Config)

	if live := o.runtime.Get(row.ID); live != nil {
		if err := live.Configure(cfg); err != nil {
			return xerrors.Wrap(xerrors.CodeConfigValidation, err, "re-apply config")
		}
		applyToggle(live, row.Enabled)
		return nil
	}

	obj, err := o.registry.NewInstance(row.ID, row.TypeID, row.Name, cfg)
	if err != nil {
		if stdErrors.Is(err, plugin.ErrNotFound) {
			o.log.Warn("skipping instance of unknown type",
				slog.String("instance_id", row.ID),
				slog.String("type_id", row.TypeID),
			)
			return nil
		}
		return err
	}
	applyToggle(obj, row.Enabled)
	if err := o.runtime.Register(obj); err != nil {
		return err
	}
	return nil
}

// SeedInstances registers the declaratively configured instances that
// do not exist yet. Already-persisted ids are left untouched.
func (o *Orchestrator) SeedInstances(ctx context.Context, seed plugin.SeedConfig) {
	for _, inst := range seed.Instances {
		if _, err := o.store.GetInstance(ctx, inst.ID); err == nil {
			continue
		}
		enabled := true
		if inst.Enabled != nil {
			enabled = *inst.Enabled
		}
		if _, err := o.RegisterPlugin(ctx, inst.ID, inst.Type, inst.Name, inst.Config, enabled); err != nil {
			o.log.Error("seeding instance failed",
				slog.String("instance_id", inst.ID),
				slog.String("type_id", inst.Type),
				slog.Any("error", err),
			)
		}
	}
}

// RegisterPlugin constructs, configures, registers, persists and
// initialises a new instance. An empty id gets a generated one.
func (o *Orchestrator) RegisterPlugin(ctx context.Context, id, typeID, name string, cfg map[string]any, enabled bool) (plugin.Plugin, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if typeID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "type id cannot be empty")
	}
	if o.runtime.Get(id) != nil {
		return nil, xerrors.New(xerrors.CodeDuplicatePlugin, "plugin "+id+" already registered")
	}
	if _, err := o.store.GetInstance(ctx, id); err == nil {
		return nil, xerrors.New(xerrors.CodeDuplicatePlugin, "plugin "+id+" already persisted")
	}

	cfg = plugin.NormalizeConfig(cfg)
	if row, err := o.store.GetType(ctx, typeID); err == nil {
		cfg = plugin.ApplyDefaults(row.Schema, cfg)
	}

	obj, err := o.registry.NewInstance(id, typeID, name, cfg)
	if err != nil {
		if stdErrors.Is(err, plugin.ErrNotFound) {
			return nil, xerrors.Wrap(xerrors.CodeInstantiation, err, "no provider for type "+typeID)
		}
		return nil, xerrors.Wrap(xerrors.CodeInstantiation, err, "construct plugin "+id)
	}

	if err := validateCapabilityConfig(obj, cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigValidation, err, "validate config for "+id)
	}
	if err := obj.Configure(cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfigValidation, err, "configure "+id)
	}
	applyToggle(obj, enabled)

	if err := o.runtime.Register(obj); err != nil {
		if stdErrors.Is(err, plugin.ErrDuplicate) {
			return nil, xerrors.Wrap(xerrors.CodeDuplicatePlugin, err, "")
		}
		return nil, err
	}

	row := &store.InstanceRow{
		ID:       id,
		TypeID:   typeID,
		Category: obj.Info().Category,
		Name:     obj.DisplayName(),
		Enabled:  enabled,
		Config:   obj.Config(),
	}
	if err := o.store.UpsertInstance(ctx, row); err != nil {
		o.runtime.Unregister(id)
		return nil, err
	}

	if enabled {
		if err := obj.Init(ctx); err != nil {
			_ = obj.Cleanup(ctx)
			o.runtime.Unregister(id)
			if _, delErr := o.store.DeleteInstance(ctx, id); delErr != nil {
				o.log.Error("rollback of failed registration left a row behind",
					slog.String("instance_id", id), slog.Any("error", delErr))
			}
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "initialise "+id)
		}
	}

	logger.Audit().Info("plugin registered",
		slog.String("instance_id", id),
		slog.String("type_id", typeID),
		slog.Bool("enabled", enabled),
	)
	o.publish(ctx, bus.Event{Kind: bus.KindPluginRegistered, TypeID: typeID, InstanceID: id})
	o.refreshGauges()
	return obj, nil
}

// UnregisterPlugin cleans up the live object, deletes the persisted
// row and removes the runtime entry. It reports false when the id was
// unknown to both stores.
func (o *Orchestrator) UnregisterPlugin(ctx context.Context, id string) (bool, error) {
	var existed bool
	if live := o.runtime.Get(id); live != nil {
		existed = true
		if err := live.Cleanup(ctx); err != nil {
			o.log.Error("plugin cleanup failed during unregister",
				slog.String("instance_id", id), slog.Any("error", err))
		}
		o.runtime.Unregister(id)
	}
	deleted, err := o.store.DeleteInstance(ctx, id)
	if err != nil {
		return existed, err
	}
	existed = existed || deleted
	if existed {
		logger.Audit().Info("plugin unregistered", slog.String("instance_id", id))
		o.publish(ctx, bus.Event{Kind: bus.KindPluginUnregistered, InstanceID: id})
		o.refreshGauges()
	}
	return existed, nil
}

// ConfigurePlugin applies new settings to the live object and persists
// them.
func (o *Orchestrator) ConfigurePlugin(ctx context.Context, id string, cfg map[string]any) error {
	live := o.runtime.Get(id)
	if live == nil {
		return xerrors.New(xerrors.CodePluginNotFound, "plugin "+id+" not found")
	}
	cfg = plugin.NormalizeConfig(cfg)
	if err := validateCapabilityConfig(live, cfg); err != nil {
		return xerrors.Wrap(xerrors.CodeConfigValidation, err, "validate config for "+id)
	}
	if err := live.Configure(cfg); err != nil {
		return xerrors.Wrap(xerrors.CodeConfigValidation, err, "configure "+id)
	}
	row, err := o.store.GetInstance(ctx, id)
	if err != nil {
		return err
	}
	row.Config = live.Config()
	if err := o.store.UpsertInstance(ctx, row); err != nil {
		return err
	}
	o.publish(ctx, bus.Event{Kind: bus.KindPluginConfigured, InstanceID: id, TypeID: row.TypeID})
	return nil
}

// PluginConfig returns the current settings of an instance, preferring
// the live object over the persisted row.
func (o *Orchestrator) PluginConfig(ctx context.Context, id string) (map[string]any, error) {
	if live := o.runtime.Get(id); live != nil {
		return live.Config(), nil
	}
	row, err := o.store.GetInstance(ctx, id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePluginNotFound, err, "plugin "+id+" not found")
	}
	return plugin.NormalizeConfig(row.Config), nil
}

// SetInstanceEnabled toggles one instance in both runtime and
// persistence.
func (o *Orchestrator) SetInstanceEnabled(ctx context.Context, id string, enabled bool) error {
	live := o.runtime.Get(id)
	if live == nil {
		if _, err := o.store.GetInstance(ctx, id); err != nil {
			return xerrors.Wrap(xerrors.CodePluginNotFound, err, "plugin "+id+" not found")
		}
	}
	if err := o.store.SetInstanceEnabled(ctx, id, enabled); err != nil {
		return err
	}
	if live != nil {
		applyToggle(live, enabled)
	}
	logger.Audit().Info("plugin toggled", slog.String("instance_id", id), slog.Bool("enabled", enabled))
	o.publish(ctx, bus.Event{Kind: bus.KindPluginToggled, InstanceID: id, Enabled: &enabled})
	return nil
}

// SetTypeEnabled toggles a plugin type. When the type declares
// PropagateToggle the new state is forced onto every instance of the
// type, in both persistence and runtime.
func (o *Orchestrator) SetTypeEnabled(ctx context.Context, typeID string, enabled bool) error {
	row, err := o.store.GetType(ctx, typeID)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePluginNotFound, err, "plugin type "+typeID+" not found")
	}
	if err := o.store.SetTypeEnabled(ctx, typeID, enabled); err != nil {
		return err
	}
	if row.PropagateToggle {
		instances, err := o.store.ListInstances(ctx, "")
		if err != nil {
			return err
		}
		for _, inst := range instances {
			if inst.TypeID != typeID {
				continue
			}
			if err := o.SetInstanceEnabled(ctx, inst.ID, enabled); err != nil {
				o.log.Error("toggle propagation failed",
					slog.String("instance_id", inst.ID), slog.Any("error", err))
			}
		}
	}
	logger.Audit().Info("plugin type toggled", slog.String("type_id", typeID), slog.Bool("enabled", enabled))
	o.publish(ctx, bus.Event{Kind: bus.KindTypeToggled, TypeID: typeID, Enabled: &enabled})
	return nil
}

// ListTypes returns the persisted type rows.
func (o *Orchestrator) ListTypes(ctx context.Context) ([]*store.TypeRow, error) {
	return o.store.ListTypes(ctx)
}

// ListInstances returns the persisted instance rows, category-scoped
// when one is given.
func (o *Orchestrator) ListInstances(ctx context.Context, category plugin.Category) ([]*store.InstanceRow, error) {
	return o.store.ListInstances(ctx, category)
}

func (o *Orchestrator) publish(ctx context.Context, ev bus.Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, ev); err != nil {
		o.log.Warn("publishing change event failed",
			slog.String("kind", ev.Kind), slog.Any("error", err))
	}
}

func (o *Orchestrator) refreshGauges() {
	if o.metrics == nil {
		return
	}
	for _, category := range []plugin.Category{plugin.CategoryCalendar, plugin.CategoryImage, plugin.CategoryService} {
		o.metrics.SetRegistered(string(category), len(o.runtime.List(category, false)))
	}
}

func applyToggle(p plugin.Plugin, enabled bool) {
	if enabled {
		p.Enable()
	} else {
		p.Disable()
	}
}

// validateCapabilityConfig runs the category's config validation hook
// when the contract defines one.
func validateCapabilityConfig(p plugin.Plugin, cfg map[string]any) error {
	switch src := p.(type) {
	case plugin.CalendarSource:
		return src.ValidateConfig(cfg)
	case plugin.ServiceSource:
		return src.ValidateConfig(cfg)
	}
	return nil
}
