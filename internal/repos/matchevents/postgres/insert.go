package matchevents

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/repos/matchevents"
)

func (r *matchEventsRepo) Insert(tx *sql.Tx, ev ledger.Event) error {
	_, err := tx.Exec(`
		INSERT INTO match_events (match_id, kind, player, block_number, tx_hash, log_index)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.MatchID.Hex(), string(ev.Kind), addressKey(ev.Player), int64(ev.BlockNumber), ev.TxHash.Hex(), int64(ev.LogIndex))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return matchevents.ErrDuplicateEvent
			}
		}

		return fmt.Errorf("insert match event: %w", err)
	}

	return nil
}
