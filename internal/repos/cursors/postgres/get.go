package cursors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/sealedrps/internal/repos/cursors"
)

func (r *cursorsRepo) Get(ctx context.Context, name string) (uint64, error) {
	var block int64

	err := r.db.QueryRowContext(ctx, `
		SELECT block_number
		FROM index_cursors
		WHERE name = $1
	`, name).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, cursors.ErrCursorNotFound
		}

		return 0, fmt.Errorf("get cursor: %w", err)
	}

	return uint64(block), nil
}
