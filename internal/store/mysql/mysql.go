// Package mysql persists plugin rows in MySQL.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "homedash/internal/errors"
	"homedash/internal/store"
	"homedash/pkg/plugin"
)

// Config describes the MySQL connection.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store implements store.Store on top of MySQL.
type Store struct {
	db *sql.DB
}

// New opens a pooled connection and initialises the plugin tables.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN cannot be empty")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open MySQL connection")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "reach MySQL")
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const typeSchema = `CREATE TABLE IF NOT EXISTS plugin_types (
        type_id VARCHAR(128) PRIMARY KEY,
        category VARCHAR(32) NOT NULL,
        name VARCHAR(255) NOT NULL DEFAULT '',
        description TEXT,
        version VARCHAR(64) NOT NULL DEFAULT '',
        config_schema TEXT,
        enabled TINYINT(1) NOT NULL DEFAULT 1,
        propagate_toggle TINYINT(1) NOT NULL DEFAULT 0,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_plugin_types_category (category)
)`
	const instanceSchema = `CREATE TABLE IF NOT EXISTS plugins (
        id VARCHAR(128) PRIMARY KEY,
        type_id VARCHAR(128) NOT NULL,
        category VARCHAR(32) NOT NULL,
        name VARCHAR(255) NOT NULL DEFAULT '',
        enabled TINYINT(1) NOT NULL DEFAULT 1,
        config TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_plugins_type (type_id),
        INDEX idx_plugins_category (category)
)`
	if _, err := s.db.ExecContext(ctx, typeSchema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "init plugin_types table")
	}
	if _, err := s.db.ExecContext(ctx, instanceSchema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "init plugins table")
	}
	return nil
}

// UpsertType inserts or updates a type row.
func (s *Store) UpsertType(ctx context.Context, row *store.TypeRow) error {
	if row == nil || row.TypeID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "type row requires a type id")
	}
	schemaBlob, err := json.Marshal(row.Schema)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode config schema")
	}
	now := time.Now().Unix()
	const stmt = `INSERT INTO plugin_types
        (type_id, category, name, description, version, config_schema, enabled, propagate_toggle, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        category = VALUES(category), name = VALUES(name), description = VALUES(description),
        version = VALUES(version), config_schema = VALUES(config_schema),
        propagate_toggle = VALUES(propagate_toggle), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, stmt,
		row.TypeID, row.Category, row.Name, row.Description, row.Version,
		string(schemaBlob), row.Enabled, row.PropagateToggle, now, now,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "upsert plugin type")
	}
	return nil
}

// GetType returns one type row.
func (s *Store) GetType(ctx context.Context, typeID string) (*store.TypeRow, error) {
	const query = `SELECT type_id, category, name, description, version, config_schema, enabled, propagate_toggle, created_at, updated_at
        FROM plugin_types WHERE type_id = ?`
	row, err := scanTypeRow(s.db.QueryRowContext(ctx, query, typeID))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, xerrors.New(xerrors.CodeNotFound, "plugin type "+typeID+" not found")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query plugin type")
	}
	return row, nil
}

// ListTypes returns every type row.
func (s *Store) ListTypes(ctx context.Context) ([]*store.TypeRow, error) {
	const query = `SELECT type_id, category, name, description, version, config_schema, enabled, propagate_toggle, created_at, updated_at
        FROM plugin_types ORDER BY type_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query plugin types")
	}
	defer rows.Close()

	var out []*store.TypeRow
	for rows.Next() {
		row, err := scanTypeRow(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan plugin type")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate plugin types")
	}
	return out, nil
}

// SetTypeEnabled toggles a type row.
func (s *Store) SetTypeEnabled(ctx context.Context, typeID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plugin_types SET enabled = ?, updated_at = ? WHERE type_id = ?`,
		enabled, time.Now().Unix(), typeID,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "toggle plugin type")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetType(ctx, typeID); getErr != nil {
			return getErr
		}
	}
	return nil
}

// UpsertInstance inserts or updates an instance row.
func (s *Store) UpsertInstance(ctx context.Context, row *store.InstanceRow) error {
	if row == nil || row.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "instance row requires an id")
	}
	configBlob, err := json.Marshal(row.Config)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode instance config")
	}
	now := time.Now().Unix()
	const stmt = `INSERT INTO plugins
        (id, type_id, category, name, enabled, config, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        type_id = VALUES(type_id), category = VALUES(category), name = VALUES(name),
        enabled = VALUES(enabled), config = VALUES(config), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, stmt,
		row.ID, row.TypeID, row.Category, row.Name, row.Enabled, string(configBlob), now, now,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "upsert plugin instance")
	}
	return nil
}

// GetInstance returns one instance row.
func (s *Store) GetInstance(ctx context.Context, id string) (*store.InstanceRow, error) {
	const query = `SELECT id, type_id, category, name, enabled, config, created_at, updated_at
        FROM plugins WHERE id = ?`
	row, err := scanInstanceRow(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, xerrors.New(xerrors.CodeNotFound, "plugin instance "+id+" not found")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query plugin instance")
	}
	return row, nil
}

// ListInstances returns instance rows, category-scoped when requested.
func (s *Store) ListInstances(ctx context.Context, category plugin.Category) ([]*store.InstanceRow, error) {
	query := `SELECT id, type_id, category, name, enabled, config, created_at, updated_at FROM plugins`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "query plugin instances")
	}
	defer rows.Close()

	var out []*store.InstanceRow
	for rows.Next() {
		row, err := scanInstanceRow(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan plugin instance")
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate plugin instances")
	}
	return out, nil
}

// DeleteInstance removes an instance row, reporting whether it existed.
func (s *Store) DeleteInstance(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete plugin instance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete plugin instance")
	}
	return n > 0, nil
}

// SetInstanceEnabled toggles an instance row.
func (s *Store) SetInstanceEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE plugins SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().Unix(), id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "toggle plugin instance")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetInstance(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTypeRow(sc rowScanner) (*store.TypeRow, error) {
	var (
		row        store.TypeRow
		category   string
		schemaBlob sql.NullString
		desc       sql.NullString
	)
	if err := sc.Scan(&row.TypeID, &category, &row.Name, &desc, &row.Version,
		&schemaBlob, &row.Enabled, &row.PropagateToggle, &row.CreatedAt, &row.UpdatedAt); err != nil {
		return nil, err
	}
	row.Category = plugin.Category(category)
	row.Description = desc.String
	if schemaBlob.Valid && schemaBlob.String != "" {
		if err := json.Unmarshal([]byte(schemaBlob.String), &row.Schema); err != nil {
			return nil, err
		}
	}
	return &row, nil
}

func scanInstanceRow(sc rowScanner) (*store.InstanceRow, error) {
	var (
		row        store.InstanceRow
		category   string
		configBlob sql.NullString
	)
	if err := sc.Scan(&row.ID, &row.TypeID, &category, &row.Name,
		&row.Enabled, &configBlob, &row.CreatedAt, &row.UpdatedAt); err != nil {
		return nil, err
	}
	row.Category = plugin.Category(category)
	if configBlob.Valid && configBlob.String != "" {
		if err := json.Unmarshal([]byte(configBlob.String), &row.Config); err != nil {
			return nil, err
		}
	}
	return &row, nil
}

// ensure interface compliance at compile time
var _ store.Store = (*Store)(nil)
