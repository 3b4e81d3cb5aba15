package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/sealedrps/internal/api"
	"github.com/fastprodman/sealedrps/internal/infra/logging"
	"github.com/fastprodman/sealedrps/internal/infra/metrics"
	"github.com/fastprodman/sealedrps/internal/infra/pgutils"
	"github.com/fastprodman/sealedrps/internal/services/history"
	"github.com/fastprodman/sealedrps/internal/services/indexing"
	"github.com/fastprodman/sealedrps/internal/session"
	"github.com/fastprodman/sealedrps/internal/workers"
	"github.com/fastprodman/sealedrps/internal/workers/indexer"
	"github.com/fastprodman/sealedrps/internal/workers/reclaimer"
	"github.com/fastprodman/sealedrps/pkg/envconf"
	"github.com/fastprodman/sealedrps/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

//nolint:funlen,cyclop
func run(ctx context.Context) (retErr error) {
	err := envconf.LoadDotenv()
	if err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := new(apiConfig)

	err = envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.validate()
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logFile := logging.Setup(cfg.Log)
	log := slog.Default()

	queue := shutdownqueue.New(log)
	queue.AddCloser("log file", logFile.Close)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := queue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	registry := metrics.NewRegistry()

	// --- Session ---
	sess, err := session.Open(ctx, cfg.Session, nil, log, registry)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	queue.Add("session", func(context.Context) error {
		sess.Close()
		return nil
	})

	// --- History sources: the Postgres index when configured, plus the
	// recent ledger window so unindexed blocks are never missed ---
	sources := []history.Source{sess.LedgerHistory()}

	// validate guarantees the index whenever the reclaimer runs.
	var reclaimSource reclaimer.EventSource

	sched, err := workers.NewScheduler(nil, log)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	if cfg.Postgres.Enabled() {
		db, err := openIndex(ctx, cfg, queue)
		if err != nil {
			return err
		}

		idx := indexing.New(db, sess.Gateway, cfg.Indexing, log, registry)
		index := history.IndexSource{Index: idx}
		sources = append(sources, index)
		reclaimSource = index

		if cfg.Indexer.Enabled {
			err = sched.Every(ctx, cfg.Indexer.Interval, indexer.New(idx, log))
			if err != nil {
				return fmt.Errorf("schedule indexer: %w", err)
			}
		}
	}

	if cfg.Reclaimer.Enabled {
		job, err := reclaimer.New(sess.Lifecycle, reclaimSource, log, registry)
		if err != nil {
			return fmt.Errorf("init reclaimer: %w", err)
		}

		err = sched.Every(ctx, cfg.Reclaimer.Interval, job)
		if err != nil {
			return fmt.Errorf("schedule reclaimer: %w", err)
		}
	}

	sched.Start()
	queue.Add("workers", sched.Shutdown)

	hist := history.New(sess.Lifecycle, cfg.HistoryConcurrency, log, sources...)

	// --- HTTP server ---
	handler := api.NewHandler(api.Services{
		Matcher:   sess.Engine,
		Lifecycle: sess.Lifecycle,
		Pool:      sess.Gateway,
		History:   hist,
	}, log)

	srv := api.NewServer(cfg.Port, api.NewRouter(handler, cfg.RateLimit, registry))

	queue.Add("http server", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	log.Info("API started", "port", cfg.Port, "caller", sess.Caller().Hex())

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; the deferred queue drain stops everything in reverse order
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func openIndex(ctx context.Context, cfg *apiConfig, queue *shutdownqueue.Queue) (*sql.DB, error) {
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	queue.AddCloser("postgres", db.Close)

	return db, nil
}
