// Package walstore is a reference limbo.LogBridge backed by SQLite,
// following the sql.Open("sqlite3", ...) pattern used by this codebase's
// own database layer (lxd/db/query). It exists so the limbo package has a
// real durable collaborator to drive against instead of only an in-memory
// fake; a production deployment could swap this for a replicated WAL.
package walstore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/canonical/synclimbo/limbo"
)

const schema = `
CREATE TABLE IF NOT EXISTS limbo_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	origin_peer INTEGER NOT NULL,
	pos         INTEGER NOT NULL,
	kind        INTEGER NOT NULL,
	written_at  DATETIME NOT NULL
);
`

// Store is a sqlite-backed limbo.LogBridge. A single *sql.DB is safe for
// concurrent use by multiple goroutines, so Store needs no locking of its
// own beyond what database/sql already provides.
type Store struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at path and ensures the
// limbo_records table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write implements limbo.LogBridge by appending a durable record. It
// satisfies the interface's synchronous contract: by the time it returns
// nil, the record is committed.
func (s *Store) Write(originPeer uint32, pos int64, kind limbo.RecordKind) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO limbo_records (origin_peer, pos, kind, written_at) VALUES (?, ?, ?, ?)`,
		originPeer, pos, int(kind), time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrapf(limbo.ErrLogIO, "insert limbo record: %v", err)
	}
	return nil
}

// Record is a single persisted CONFIRM/ROLLBACK entry, as returned by
// Records.
type Record struct {
	OriginPeer uint32
	Pos        int64
	Kind       limbo.RecordKind
	WrittenAt  time.Time
}

// Records returns every persisted record in insertion order. Tests use it
// to assert on durable state.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT origin_peer, pos, kind, written_at FROM limbo_records ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query limbo records")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var kind int
		if err := rows.Scan(&r.OriginPeer, &r.Pos, &kind, &r.WrittenAt); err != nil {
			return nil, errors.Wrap(err, "scan limbo record")
		}
		r.Kind = limbo.RecordKind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate limbo records")
	}
	return out, nil
}
