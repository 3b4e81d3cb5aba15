package matchevents

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
)

// ListByPlayer returns the player's events, newest first.
func (r *matchEventsRepo) ListByPlayer(ctx context.Context, player common.Address, limit int) ([]ledger.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, kind, player, block_number, tx_hash, log_index
		FROM match_events
		WHERE player = $1
		ORDER BY block_number DESC, log_index DESC
		LIMIT $2
	`, addressKey(player), limit)
	if err != nil {
		return nil, fmt.Errorf("query match events: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []ledger.Event

	for rows.Next() {
		var (
			matchID, kind, addr, txHash string
			block, logIndex             int64
		)

		err = rows.Scan(&matchID, &kind, &addr, &block, &txHash, &logIndex)
		if err != nil {
			return nil, fmt.Errorf("scan match event: %w", err)
		}

		out = append(out, ledger.Event{
			Kind:        ledger.EventKind(kind),
			MatchID:     common.HexToHash(matchID),
			Player:      common.HexToAddress(addr),
			BlockNumber: uint64(block),
			TxHash:      common.HexToHash(txHash),
			LogIndex:    uint(logIndex),
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate match events: %w", err)
	}

	return out, nil
}
