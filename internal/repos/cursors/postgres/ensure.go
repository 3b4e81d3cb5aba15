package cursors

import (
	"database/sql"
	"fmt"
)

// Ensure creates the cursor at start unless it already exists.
func (r *cursorsRepo) Ensure(tx *sql.Tx, name string, start uint64) error {
	_, err := tx.Exec(`
		INSERT INTO index_cursors (name, block_number)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, int64(start))
	if err != nil {
		return fmt.Errorf("ensure cursor: %w", err)
	}

	return nil
}
