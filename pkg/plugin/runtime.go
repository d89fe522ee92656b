package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Runtime is the in-memory index of live plugin objects. The primary
// id-keyed map and the category index are kept consistent under one
// lock so listing a category never scans the whole registry.
type Runtime struct {
	mu         sync.RWMutex
	byID       map[string]Plugin
	byCategory map[Category]map[string]Plugin
	log        *slog.Logger
}

// NewRuntime constructs an empty runtime index.
func NewRuntime(log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		byID:       make(map[string]Plugin),
		byCategory: make(map[Category]map[string]Plugin),
		log:        log,
	}
}

// Register adds a live instance. Instance ids are unique across all
// categories, so a collision is rejected with ErrDuplicate.
func (r *Runtime) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("register: plugin cannot be nil")
	}
	id := p.InstanceID()
	if id == "" {
		return fmt.Errorf("register: instance id cannot be empty")
	}
	category := p.Info().Category
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("register %s: %w", id, ErrDuplicate)
	}
	r.byID[id] = p
	if r.byCategory[category] == nil {
		r.byCategory[category] = make(map[string]Plugin)
	}
	r.byCategory[category][id] = p
	return nil
}

// Unregister removes an instance from both indexes and reports whether
// it was present.
func (r *Runtime) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	category := p.Info().Category
	if instances := r.byCategory[category]; instances != nil {
		delete(instances, id)
		if len(instances) == 0 {
			delete(r.byCategory, category)
		}
	}
	return true
}

// Get returns the live instance with the given id, or nil.
func (r *Runtime) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// List returns instances of one category, or of all categories when
// category is empty. With enabledOnly set, disabled instances are
// filtered out.
func (r *Runtime) List(category Category, enabledOnly bool) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Plugin
	if category != "" {
		for _, p := range r.byCategory[category] {
			if !enabledOnly || p.Enabled() {
				out = append(out, p)
			}
		}
		return out
	}
	for _, p := range r.byID {
		if !enabledOnly || p.Enabled() {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of registered instances.
func (r *Runtime) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// InitAll initialises every enabled instance. A failing instance is
// logged and skipped so one broken plugin cannot block the rest.
func (r *Runtime) InitAll(ctx context.Context) {
	for _, p := range r.snapshot() {
		if !p.Enabled() {
			continue
		}
		if err := r.initOne(ctx, p); err != nil {
			r.log.Error("plugin init failed",
				slog.String("instance_id", p.InstanceID()),
				slog.Any("error", err),
			)
		}
	}
}

// CleanupAll releases every instance regardless of its toggle state,
// with the same per-instance isolation as InitAll.
func (r *Runtime) CleanupAll(ctx context.Context) {
	for _, p := range r.snapshot() {
		if err := r.cleanupOne(ctx, p); err != nil {
			r.log.Error("plugin cleanup failed",
				slog.String("instance_id", p.InstanceID()),
				slog.Any("error", err),
			)
		}
	}
}

func (r *Runtime) snapshot() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

func (r *Runtime) initOne(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Init(ctx)
}

func (r *Runtime) cleanupOne(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Cleanup(ctx)
}
