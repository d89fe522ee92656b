// Package bus publishes registry change notifications so interested
// consumers (UI push layers, other nodes) can react without polling.
package bus

import "context"

// Event kinds published by the orchestrator and aggregation services.
const (
	KindPluginRegistered   = "plugin.registered"
	KindPluginUnregistered = "plugin.unregistered"
	KindPluginConfigured   = "plugin.configured"
	KindPluginToggled      = "plugin.toggled"
	KindTypeToggled        = "type.toggled"
	KindImagesRescanned    = "images.rescanned"
)

// Event is one change notification.
type Event struct {
	Kind       string `json:"kind"`
	TypeID     string `json:"type_id,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Enabled    *bool  `json:"enabled,omitempty"`
	At         int64  `json:"at"`
}

// Bus is the notification backend contract. Publish must not block on
// slow consumers.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}
