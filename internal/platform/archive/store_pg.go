package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ---------------------------------------------------------------------------
// pgRow / pgRows / pgConn abstractions (allow unit testing without a real DB)
// ---------------------------------------------------------------------------

type pgRow interface {
	Scan(dest ...any) error
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// pgConn is the minimal database interface required by PGStore.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Query(ctx context.Context, sql string, args ...any) (pgRows, error)
	Exec(ctx context.Context, sql string, args ...any) error
}

// PGStore is a PostgreSQL-backed Store over the decoded_messages table
// (see migrations/001_decoded_messages.sql).
type PGStore struct {
	db pgConn
}

// NewPGStore creates a PG-backed store over db.
func NewPGStore(db pgConn) *PGStore {
	return &PGStore{db: db}
}

// NewPGStoreFromPool creates a PG-backed store from a *pgxpool.Pool.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: &pgxPoolWrapper{pool: pool}}
}

// Save implements Store.
func (s *PGStore) Save(ctx context.Context, e *Entry) error {
	const query = `INSERT INTO decoded_messages (id, control_id, message_type, raw, decoded, received_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if err := s.db.Exec(ctx, query, e.ID, e.ControlID, e.MessageType, e.Raw, []byte(e.Decoded), e.ReceivedAt); err != nil {
		return fmt.Errorf("save decoded message: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PGStore) List(ctx context.Context, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM decoded_messages`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count decoded messages: %w", err)
	}

	const query = `SELECT id, control_id, message_type, raw, decoded, received_at
FROM decoded_messages
ORDER BY received_at DESC
LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list decoded messages: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var decoded []byte
		if err := rows.Scan(&e.ID, &e.ControlID, &e.MessageType, &e.Raw, &decoded, &e.ReceivedAt); err != nil {
			return nil, 0, fmt.Errorf("scan decoded message: %w", err)
		}
		e.Decoded = decoded
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate decoded messages: %w", err)
	}

	return entries, total, nil
}

// ---------------------------------------------------------------------------
// pgxPoolWrapper adapts *pgxpool.Pool to the pgConn interface
// ---------------------------------------------------------------------------

type pgxPoolWrapper struct {
	pool *pgxpool.Pool
}

func (w *pgxPoolWrapper) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return w.pool.QueryRow(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Query(ctx context.Context, sql string, args ...any) (pgRows, error) {
	return w.pool.Query(ctx, sql, args...)
}

func (w *pgxPoolWrapper) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := w.pool.Exec(ctx, sql, args...)
	return err
}
