// Package archive persists fabric snapshots in SQLite, giving the
// persistence manager a durable, queryable home beyond flat files.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the pure-Go sqlite driver

	"github.com/orgitcog/fabric"
)

// DefaultTable is the snapshot table name unless overridden with WithTable.
const DefaultTable = "fabric_snapshots"

// Store implements fabric.SnapshotStore on a SQLite database.
type Store struct {
	db    *sqlx.DB
	table string
	codec fabric.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithTable sets the snapshot table name.
func WithTable(table string) Option {
	return func(s *Store) {
		s.table = table
	}
}

// WithCodec sets a custom codec for snapshot payloads.
// If not specified, fabric.JSONCodec is used.
func WithCodec(codec fabric.Codec) Option {
	return func(s *Store) {
		s.codec = codec
	}
}

// Open connects to the SQLite database at path.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*sqlx.DB, error) {
	return sqlx.Connect("sqlite", path)
}

// New creates a Store on the given database connection.
// Call Init before first use to create the snapshot table.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		table: DefaultTable,
		codec: fabric.JSONCodec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the snapshot table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	query := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)`,
		s.table,
	)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Put stores a snapshot. Re-putting an ID replaces the stored payload.
func (s *Store) Put(ctx context.Context, snap *fabric.Snapshot) error {
	payload, err := s.codec.Marshal(snap)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %q (id, created_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET created_at = excluded.created_at, payload = excluded.payload`,
		s.table,
	)
	_, err = s.db.ExecContext(ctx, query, snap.ID.String(), snap.CreatedAt.UTC().Format(time.RFC3339Nano), payload)
	return err
}

// Get retrieves a snapshot by ID.
// Returns fabric.ErrNotFound if the ID does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*fabric.Snapshot, error) {
	query := fmt.Sprintf(`SELECT payload FROM %q WHERE id = ?`, s.table)
	var payload []byte
	if err := s.db.GetContext(ctx, &payload, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fabric.ErrNotFound
		}
		return nil, err
	}
	return s.decode(payload)
}

// Latest returns the most recently created snapshot.
// Returns fabric.ErrNotFound if the store is empty.
func (s *Store) Latest(ctx context.Context) (*fabric.Snapshot, error) {
	query := fmt.Sprintf(`SELECT payload FROM %q ORDER BY created_at DESC, id DESC LIMIT 1`, s.table)
	var payload []byte
	if err := s.db.GetContext(ctx, &payload, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fabric.ErrNotFound
		}
		return nil, err
	}
	return s.decode(payload)
}

// List returns snapshot IDs, newest first.
// Limit of 0 means no limit.
func (s *Store) List(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := fmt.Sprintf(`SELECT id FROM %q ORDER BY created_at DESC, id DESC`, s.table)
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var raw []string
	if err := s.db.SelectContext(ctx, &raw, query, args...); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("archive: corrupt snapshot id %q: %w", r, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a snapshot by ID.
// Returns fabric.ErrNotFound if the ID does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, s.table)
	result, err := s.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fabric.ErrNotFound
	}
	return nil
}

// decode unmarshals and validates a stored payload via FromSnapshot's
// schema rules indirectly; malformed payloads surface as ErrSchema when
// the caller rebuilds a fabric.
func (s *Store) decode(payload []byte) (*fabric.Snapshot, error) {
	var snap fabric.Snapshot
	if err := s.codec.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", fabric.ErrSchema, err)
	}
	return &snap, nil
}

// Ensure Store implements fabric.SnapshotStore.
var _ fabric.SnapshotStore = (*Store)(nil)
