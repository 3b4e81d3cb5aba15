package main

import (
	"fmt"
	"time"

	"github.com/fastprodman/sealedrps/internal/api"
	"github.com/fastprodman/sealedrps/internal/config"
	"github.com/fastprodman/sealedrps/internal/services/indexing"
	"github.com/fastprodman/sealedrps/internal/session"
	"github.com/fastprodman/sealedrps/internal/workers/indexer"
	"github.com/fastprodman/sealedrps/internal/workers/reclaimer"
)

type apiConfig struct {
	Port            uint16        `env:"API_PORT" default:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
	// HistoryConcurrency bounds parallel status reads when enriching history.
	HistoryConcurrency int `env:"HISTORY_CONCURRENCY" default:"8"`

	Log       config.LogConfig
	Postgres  config.PostgresConfig
	Session   session.Config
	RateLimit api.RateLimitConfig
	Indexing  indexing.Config
	Indexer   indexer.Config
	Reclaimer reclaimer.Config
}

// validate rejects combinations the workers cannot serve. The reclaimer finds
// abandoned matches through the event index; the ledger lookback window alone
// would miss matches older than LEDGER_HISTORY_LOOKBACK blocks.
func (c *apiConfig) validate() error {
	if c.Reclaimer.Enabled && !c.Postgres.Enabled() {
		return fmt.Errorf("%w: RECLAIMER_ENABLED requires PG_DSN", config.ErrInvalidConfig)
	}

	if c.Reclaimer.Enabled && !c.Indexer.Enabled {
		return fmt.Errorf("%w: RECLAIMER_ENABLED requires INDEXER_ENABLED", config.ErrInvalidConfig)
	}

	return nil
}
