// Package store persists plugin type and instance rows. The schema is
// owned by the storage backend; the core only needs read-all,
// read-by-id, upsert and delete.
package store

import (
	"context"

	"homedash/pkg/plugin"
)

// TypeRow is the persisted template for one kind of integration.
// Rows are created and updated by the orchestrator from discovery
// metadata and are never deleted automatically.
type TypeRow struct {
	TypeID          string          `json:"type_id"`
	Category        plugin.Category `json:"category"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Version         string          `json:"version,omitempty"`
	Schema          plugin.Schema   `json:"schema,omitempty"`
	Enabled         bool            `json:"enabled"`
	PropagateToggle bool            `json:"propagate_toggle"`
	CreatedAt       int64           `json:"created_at"`
	UpdatedAt       int64           `json:"updated_at"`
}

// InstanceRow is one configured occurrence of a type. Category is a
// denormalized copy of the type's category so listings avoid a join.
type InstanceRow struct {
	ID        string          `json:"id"`
	TypeID    string          `json:"type_id"`
	Category  plugin.Category `json:"category"`
	Name      string          `json:"name"`
	Enabled   bool            `json:"enabled"`
	Config    map[string]any  `json:"config,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Store is the persistence contract consumed by the orchestrator.
type Store interface {
	UpsertType(ctx context.Context, row *TypeRow) error
	GetType(ctx context.Context, typeID string) (*TypeRow, error)
	ListTypes(ctx context.Context) ([]*TypeRow, error)
	SetTypeEnabled(ctx context.Context, typeID string, enabled bool) error

	UpsertInstance(ctx context.Context, row *InstanceRow) error
	GetInstance(ctx context.Context, id string) (*InstanceRow, error)
	ListInstances(ctx context.Context, category plugin.Category) ([]*InstanceRow, error)
	DeleteInstance(ctx context.Context, id string) (bool, error)
	SetInstanceEnabled(ctx context.Context, id string, enabled bool) error

	Close() error
}
