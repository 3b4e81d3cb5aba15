// Package indexing copies registry events into Postgres so history does not
// depend on the ledger's log retention.
package indexing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fastprodman/sealedrps/internal/infra/metrics"
	"github.com/fastprodman/sealedrps/internal/infra/pgutils"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/repos/cursors"
	pgcursors "github.com/fastprodman/sealedrps/internal/repos/cursors/postgres"
	"github.com/fastprodman/sealedrps/internal/repos/matchevents"
	pgmatchevents "github.com/fastprodman/sealedrps/internal/repos/matchevents/postgres"
)

type Config struct {
	Cursor        string `env:"INDEXER_CURSOR" default:"registry"`
	StartBlock    uint64 `env:"INDEXER_START_BLOCK" default:"0"`
	Confirmations uint64 `env:"INDEXER_CONFIRMATIONS" default:"2"`
	BatchBlocks   uint64 `env:"INDEXER_BATCH_BLOCKS" default:"500"`
}

// Batch describes one completed sync step. An empty batch has From > To.
type Batch struct {
	From       uint64
	To         uint64
	Stored     int
	Duplicates int
}

type IndexingService struct {
	db      *sql.DB
	reader  ledger.Reader
	events  matchevents.MatchEvents
	cursors cursors.Cursors
	cfg     Config
	log     *slog.Logger
	metrics gometrics.Registry
}

func New(dbx *sql.DB, reader ledger.Reader, cfg Config, logger *slog.Logger, registry gometrics.Registry) *IndexingService {
	if cfg.Cursor == "" {
		cfg.Cursor = "registry"
	}
	if cfg.BatchBlocks == 0 {
		cfg.BatchBlocks = 500
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &IndexingService{
		db:      dbx,
		reader:  reader,
		events:  pgmatchevents.New(dbx),
		cursors: pgcursors.New(dbx),
		cfg:     cfg,
		log:     logger.With("component", "indexer", "cursor", cfg.Cursor),
		metrics: registry,
	}
}

// Sync runs one indexing step in a single DB transaction:
//
// 1) Ensure the cursor exists and lock it (FOR UPDATE).
// 2) Read events for the next confirmed block window.
// 3) Store them, ignoring ones already indexed.
// 4) Advance the cursor to the end of the window.
func (s *IndexingService) Sync(ctx context.Context) (Batch, error) {
	head, err := s.reader.BlockNumber(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("read head: %w", err)
	}

	if head < s.cfg.Confirmations {
		return Batch{From: 1}, nil
	}
	safe := head - s.cfg.Confirmations

	var batch Batch

	err = pgutils.WithTxOptions(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(tx *sql.Tx) error {
		// 1) Ensure and lock the cursor
		err := s.cursors.Ensure(tx, s.cfg.Cursor, s.cfg.StartBlock)
		if err != nil {
			return fmt.Errorf("ensure cursor: %w", err)
		}

		last, err := s.cursors.LockAndGet(tx, s.cfg.Cursor)
		if err != nil {
			return fmt.Errorf("lock cursor: %w", err)
		}

		batch.From = last + 1
		batch.To = min(safe, last+s.cfg.BatchBlocks)
		if batch.From > batch.To {
			return nil
		}

		// 2) Read the window
		to := batch.To
		evs, err := s.reader.Events(ctx, ledger.EventFilter{FromBlock: batch.From, ToBlock: &to})
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}

		// 3) Store
		for _, ev := range evs {
			err = s.events.Insert(tx, ev)
			switch {
			case err == nil:
				batch.Stored++
			case errors.Is(err, matchevents.ErrDuplicateEvent):
				batch.Duplicates++
			default:
				return fmt.Errorf("insert event: %w", err)
			}
		}

		// 4) Advance
		err = s.cursors.Advance(tx, s.cfg.Cursor, batch.To)
		if err != nil {
			return fmt.Errorf("advance cursor: %w", err)
		}

		return nil
	})
	if err != nil {
		return Batch{}, fmt.Errorf("sync events: %w", err)
	}

	if batch.From <= batch.To {
		metrics.Counter(s.metrics, metrics.IndexerEvents).Inc(int64(batch.Stored))
		s.log.InfoContext(ctx, "indexed block window",
			"from", batch.From, "to", batch.To, "stored", batch.Stored, "duplicates", batch.Duplicates)
	}

	return batch, nil
}

// SyncAll repeats Sync until the cursor reaches the confirmed head.
func (s *IndexingService) SyncAll(ctx context.Context) (int, error) {
	total := 0

	for {
		batch, err := s.Sync(ctx)
		if err != nil {
			return total, err
		}

		total += batch.Stored

		if batch.From > batch.To {
			return total, nil
		}
	}
}

// Events returns indexed events for player, newest first.
func (s *IndexingService) Events(ctx context.Context, player common.Address, limit int) ([]ledger.Event, error) {
	evs, err := s.events.ListByPlayer(ctx, player, limit)
	if err != nil {
		return nil, fmt.Errorf("list indexed events: %w", err)
	}

	return evs, nil
}
