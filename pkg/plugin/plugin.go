// Package plugin defines the capability contracts, lifecycle contract,
// discovery registry and runtime index for dashboard integrations.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors surfaced by the registry and runtime. Callers wrap
// them into coded errors at the service boundary.
var (
	// ErrNotFound reports an unknown instance or type id.
	ErrNotFound = errors.New("plugin not found")
	// ErrDuplicate reports an instance id collision on register.
	ErrDuplicate = errors.New("plugin already registered")
	// ErrDisabled reports an Init attempt on a disabled plugin.
	ErrDisabled = errors.New("plugin is disabled")
	// ErrClosed reports use of a plugin after Cleanup.
	ErrClosed = errors.New("plugin is closed")
	// ErrUnsupported reports an optional operation the plugin does not implement.
	ErrUnsupported = errors.New("operation not supported")
)

// Plugin is the lifecycle contract every integration must satisfy,
// regardless of category.
type Plugin interface {
	// Info returns the static metadata of the plugin's type.
	Info() Info
	// InstanceID returns the globally unique id of this instance.
	InstanceID() string
	// DisplayName returns the user-facing name of this instance.
	DisplayName() string
	// Configure applies or replaces settings. Legal from any non-terminal
	// state and may be called repeatedly. Values are resolved scalars.
	Configure(cfg map[string]any) error
	// Init performs one-time setup and may start background work.
	// Calling Init on a disabled plugin is an error.
	Init(ctx context.Context) error
	// Cleanup releases resources and cancels background work. It is
	// always called before removal and is safe to call more than once.
	Cleanup(ctx context.Context) error
	// Enable marks the instance as active.
	Enable()
	// Disable marks the instance as inactive without releasing it.
	Disable()
	// Enabled reports the current toggle state.
	Enabled() bool
	// Config returns a copy of the current settings.
	Config() map[string]any
}

// Base carries the identity, configuration and toggle state shared by
// every integration. Implementations embed it and provide Info, Init,
// Cleanup and their category contract on top.
type Base struct {
	mu      sync.RWMutex
	id      string
	name    string
	cfg     map[string]any
	enabled bool
	state   State
}

// NewBase constructs the shared lifecycle state for an instance.
// Instances start enabled; the orchestrator applies the persisted
// toggle before Init.
func NewBase(instanceID, displayName string) Base {
	return Base{
		id:      instanceID,
		name:    displayName,
		cfg:     map[string]any{},
		enabled: true,
		state:   StateConstructed,
	}
}

// InstanceID implements Plugin.
func (b *Base) InstanceID() string {
	return b.id
}

// DisplayName implements Plugin.
func (b *Base) DisplayName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Rename changes the user-facing name of the instance.
func (b *Base) Rename(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name != "" {
		b.name = name
	}
}

// Configure stores a normalized copy of the settings. Embedders that
// need to react to configuration changes wrap this method.
func (b *Base) Configure(cfg map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return fmt.Errorf("configure %s: %w", b.id, ErrClosed)
	}
	b.cfg = NormalizeConfig(cfg)
	if b.state == StateConstructed {
		b.state = StateConfigured
	}
	return nil
}

// Config returns a copy of the current settings.
func (b *Base) Config() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.cfg))
	for k, v := range b.cfg {
		out[k] = v
	}
	return out
}

// ConfigString returns a string setting, or the empty string.
func (b *Base) ConfigString(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.cfg[key].(string); ok {
		return v
	}
	return ""
}

// ConfigBool returns a boolean setting, or false.
func (b *Base) ConfigBool(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.cfg[key].(bool)
	return ok && v
}

// ConfigInt returns an integer setting, accepting the numeric shapes
// JSON and YAML decoders produce.
func (b *Base) ConfigInt(key string) (int, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	switch v := b.cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Enable implements Plugin.
func (b *Base) Enable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return
	}
	b.enabled = true
	if b.state == StateDisabled {
		b.state = StateRunning
	}
}

// Disable implements Plugin.
func (b *Base) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateClosed {
		return
	}
	b.enabled = false
	if b.state == StateRunning {
		b.state = StateDisabled
	}
}

// Enabled implements Plugin.
func (b *Base) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// BeginInit guards the transition into the running state. Embedders
// call it at the top of Init.
func (b *Base) BeginInit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.state == StateClosed:
		return fmt.Errorf("init %s: %w", b.id, ErrClosed)
	case !b.enabled:
		return fmt.Errorf("init %s: %w", b.id, ErrDisabled)
	}
	b.state = StateRunning
	return nil
}

// FinishCleanup moves the instance into its terminal state. Embedders
// call it at the end of Cleanup; repeated calls are harmless.
func (b *Base) FinishCleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.enabled = false
}
