package history

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
)

const DefaultLookback = 2000

// LedgerSource queries the registry's event log over the last Lookback
// blocks, head included.
type LedgerSource struct {
	Reader   ledger.Reader
	Lookback uint64
}

func (s LedgerSource) PlayerEvents(ctx context.Context, player common.Address) ([]ledger.Event, error) {
	head, err := s.Reader.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}

	lookback := s.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}

	var from uint64
	if head >= lookback {
		from = head - lookback + 1
	}

	evs, err := s.Reader.Events(ctx, ledger.EventFilter{Player: &player, FromBlock: from})
	if err != nil {
		return nil, fmt.Errorf("read events from block %d: %w", from, err)
	}

	return evs, nil
}

// IndexReader is satisfied by indexing.IndexingService.
type IndexReader interface {
	Events(ctx context.Context, player common.Address, limit int) ([]ledger.Event, error)
}

// IndexSource reads events persisted by the indexer.
type IndexSource struct {
	Index IndexReader
	Limit int
}

func (s IndexSource) PlayerEvents(ctx context.Context, player common.Address) ([]ledger.Event, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = 500
	}

	return s.Index.Events(ctx, player, limit)
}
