package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of database/sql satisfied by both *sql.DB and *sql.Tx,
// so every query can run against the pool or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier is the full data-access surface: closure set queries, grants,
// note rows and contacts. *Queries implements it; fakes in tests do too.
type Querier interface {
	// notes
	InsertNote(ctx context.Context, note Note) error
	NoteExists(ctx context.Context, noteID string) (bool, error)
	GetNote(ctx context.Context, noteID string) (Note, error)
	GetNotesByIDs(ctx context.Context, noteIDs []string) (map[string]Note, error)

	// closure index
	InsertEdge(ctx context.Context, parentID, childID string, rank int) error
	DirectEdgeExists(ctx context.Context, parentID, childID string) (bool, error)
	FindDirectChildren(ctx context.Context, parentID string) ([]ClosureEdge, error)
	FindAllDescendants(ctx context.Context, parentID string) ([]ClosureEdge, error)
	FindAncestorChain(ctx context.Context, noteID string) ([]ClosureEdge, error)
	NextSiblingRank(ctx context.Context, parentID string) (int, error)
	UpdateSiblingRank(ctx context.Context, parentID, childID string, rank int) error
	DeleteReachableAccessible(ctx context.Context, noteID, actorID string, includeInternal bool) (int64, error)

	// permission grants
	GetGrant(ctx context.Context, noteID, userID string) (PermissionGrant, error)
	UpsertGrant(ctx context.Context, grant PermissionGrant) error
	AcceptGrant(ctx context.Context, noteID, userID string) (bool, error)
	DeleteGrant(ctx context.Context, noteID, userID string) (bool, error)
	ListGrantsForNote(ctx context.Context, noteID string) ([]PermissionGrant, error)

	// contacts
	AreContacts(ctx context.Context, userID, otherID string) (bool, error)
	AddContact(ctx context.Context, userID, otherID string) error
}

// Queries binds the data-access methods to a DBTX.
type Queries struct {
	q DBTX
}

func NewQueries(q DBTX) *Queries {
	return &Queries{q: q}
}

// Store is a request-scoped handle over a shared connection pool.
type Store struct {
	db *sql.DB
	*Queries
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, Queries: NewQueries(db)}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a single transaction. Any error rolls back the whole
// transaction; a crash mid-operation leaves either the pre- or post-state,
// never a partial cross-product.
func (s *Store) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(NewQueries(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsSerializationFailure reports whether err is a clean storage-level
// conflict between overlapping transactions (serialization failure or
// deadlock), which callers may retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
