package cursors

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/sealedrps/internal/repos/cursors"
)

// Advance moves the cursor to block. A missing cursor or one already past
// block is reported as ErrCursorBackward.
func (r *cursorsRepo) Advance(tx *sql.Tx, name string, block uint64) error {
	res, err := tx.Exec(`
		UPDATE index_cursors
		SET block_number = $2, updated_at = now()
		WHERE name = $1
		  AND block_number <= $2
	`, name, int64(block))
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return cursors.ErrCursorBackward
	}

	return nil
}
