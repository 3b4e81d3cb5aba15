package cursors

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/sealedrps/internal/repos/cursors"
)

func (r *cursorsRepo) LockAndGet(tx *sql.Tx, name string) (uint64, error) {
	var block int64

	err := tx.QueryRow(`
		SELECT block_number
		FROM index_cursors
		WHERE name = $1
		FOR UPDATE
	`, name).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, cursors.ErrCursorNotFound
		}

		return 0, fmt.Errorf("lock/get cursor: %w", err)
	}

	return uint64(block), nil
}
