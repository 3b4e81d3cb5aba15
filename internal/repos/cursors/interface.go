package cursors

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrCursorNotFound = errors.New("cursor not found")
	ErrCursorBackward = errors.New("cursor cannot move backward")
)

// Cursors tracks the last block each indexer has fully processed.
type Cursors interface {
	Ensure(tx *sql.Tx, name string, start uint64) error
	Get(ctx context.Context, name string) (uint64, error)
	LockAndGet(tx *sql.Tx, name string) (uint64, error)
	Advance(tx *sql.Tx, name string, block uint64) error
}
