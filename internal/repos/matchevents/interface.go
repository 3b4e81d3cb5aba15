package matchevents

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
)

var ErrDuplicateEvent = errors.New("duplicate match event")

type MatchEvents interface {
	Insert(tx *sql.Tx, ev ledger.Event) error
	ListByPlayer(ctx context.Context, player common.Address, limit int) ([]ledger.Event, error)
}
