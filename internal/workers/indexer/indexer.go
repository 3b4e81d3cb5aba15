// Package indexer is the periodic job that keeps the Postgres event index
// caught up with the ledger.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	Enabled  bool          `env:"INDEXER_ENABLED" default:"true"`
	Interval time.Duration `env:"INDEXER_INTERVAL" default:"15s"`
}

// Syncer is satisfied by indexing.IndexingService.
type Syncer interface {
	SyncAll(ctx context.Context) (int, error)
}

type Job struct {
	syncer Syncer
	log    *slog.Logger
}

func New(syncer Syncer, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}

	return &Job{syncer: syncer, log: logger.With("component", "indexer_job")}
}

func (j *Job) Name() string {
	return "indexer"
}

func (j *Job) Run(ctx context.Context) error {
	n, err := j.syncer.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("sync events (%d stored before failure): %w", n, err)
	}

	if n > 0 {
		j.log.InfoContext(ctx, "events indexed", "stored", n)
	}

	return nil
}
