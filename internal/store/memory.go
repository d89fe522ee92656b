package store

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "homedash/internal/errors"
	"homedash/pkg/plugin"
)

// MemoryStore keeps rows in process memory. It backs single-node
// deployments and tests. Reads return clones so callers can never
// mutate stored state in place.
type MemoryStore struct {
	mu        sync.RWMutex
	types     map[string]*TypeRow
	instances map[string]*InstanceRow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		types:     make(map[string]*TypeRow),
		instances: make(map[string]*InstanceRow),
	}
}

// UpsertType inserts or replaces a type row.
func (m *MemoryStore) UpsertType(_ context.Context, row *TypeRow) error {
	if row == nil || row.TypeID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "type row requires a type id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	clone := cloneTypeRow(row)
	if existing, ok := m.types[row.TypeID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.types[row.TypeID] = clone
	return nil
}

// GetType returns one type row.
func (m *MemoryStore) GetType(_ context.Context, typeID string) (*TypeRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.types[typeID]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "plugin type "+typeID+" not found")
	}
	return cloneTypeRow(row), nil
}

// ListTypes returns all type rows ordered by type id.
func (m *MemoryStore) ListTypes(_ context.Context) ([]*TypeRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TypeRow, 0, len(m.types))
	for _, row := range m.types {
		out = append(out, cloneTypeRow(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out, nil
}

// SetTypeEnabled toggles a type row.
func (m *MemoryStore) SetTypeEnabled(_ context.Context, typeID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.types[typeID]
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, "plugin type "+typeID+" not found")
	}
	row.Enabled = enabled
	row.UpdatedAt = time.Now().Unix()
	return nil
}

// UpsertInstance inserts or replaces an instance row.
func (m *MemoryStore) UpsertInstance(_ context.Context, row *InstanceRow) error {
	if row == nil || row.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "instance row requires an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().Unix()
	clone := cloneInstanceRow(row)
	if existing, ok := m.instances[row.ID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	m.instances[row.ID] = clone
	return nil
}

// GetInstance returns one instance row.
func (m *MemoryStore) GetInstance(_ context.Context, id string) (*InstanceRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.instances[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "plugin instance "+id+" not found")
	}
	return cloneInstanceRow(row), nil
}

// ListInstances returns instance rows, filtered by category when one
// is given, ordered by id.
func (m *MemoryStore) ListInstances(_ context.Context, category plugin.Category) ([]*InstanceRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*InstanceRow, 0, len(m.instances))
	for _, row := range m.instances {
		if category != "" && row.Category != category {
			continue
		}
		out = append(out, cloneInstanceRow(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteInstance removes an instance row, reporting whether it existed.
func (m *MemoryStore) DeleteInstance(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[id]; !ok {
		return false, nil
	}
	delete(m.instances, id)
	return true, nil
}

// SetInstanceEnabled toggles an instance row.
func (m *MemoryStore) SetInstanceEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.instances[id]
	if !ok {
		return xerrors.New(xerrors.CodeNotFound, "plugin instance "+id+" not found")
	}
	row.Enabled = enabled
	row.UpdatedAt = time.Now().Unix()
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func cloneTypeRow(row *TypeRow) *TypeRow {
	clone := *row
	clone.Schema = append(plugin.Schema(nil), row.Schema...)
	return &clone
}

func cloneInstanceRow(row *InstanceRow) *InstanceRow {
	clone := *row
	if row.Config != nil {
		clone.Config = make(map[string]any, len(row.Config))
		for k, v := range row.Config {
			clone.Config[k] = v
		}
	}
	return &clone
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
