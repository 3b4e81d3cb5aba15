// Package reclaimer refunds the session's own abandoned matches. It issues
// the same expireCreated and claim calls a player would; the ledger never
// expires anything on its own.
package reclaimer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fastprodman/sealedrps/internal/infra/metrics"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/services/lifecycle"
)

type Config struct {
	Enabled  bool          `env:"RECLAIMER_ENABLED" default:"false"`
	Interval time.Duration `env:"RECLAIMER_INTERVAL" default:"1m"`
}

// Controller is the part of lifecycle.Controller the sweep needs.
type Controller interface {
	Caller() common.Address
	Status(ctx context.Context, id common.Hash) (lifecycle.View, error)
	Reclaim(ctx context.Context, id common.Hash) (ledger.Receipt, error)
	Claim(ctx context.Context, id common.Hash) (ledger.Receipt, error)
}

// EventSource is satisfied by history.LedgerSource and history.IndexSource.
type EventSource interface {
	PlayerEvents(ctx context.Context, player common.Address) ([]ledger.Event, error)
}

type Job struct {
	ctl     Controller
	source  EventSource
	log     *slog.Logger
	metrics gometrics.Registry

	// done remembers matches already refunded so later sweeps skip them.
	done *lru.Cache
}

func New(ctl Controller, source EventSource, logger *slog.Logger, registry gometrics.Registry) (*Job, error) {
	if logger == nil {
		logger = slog.Default()
	}

	done, err := lru.New(1024)
	if err != nil {
		return nil, fmt.Errorf("create reclaimed cache: %w", err)
	}

	return &Job{
		ctl:     ctl,
		source:  source,
		log:     logger.With("component", "reclaimer", "caller", ctl.Caller().Hex()),
		metrics: registry,
		done:    done,
	}, nil
}

func (j *Job) Name() string {
	return "reclaimer"
}

// Run sweeps once. Per-match failures are logged and left for the next
// sweep; only a failure to list candidates fails the run.
func (j *Job) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)

	return err
}

// Sweep returns how many matches were refunded.
func (j *Job) Sweep(ctx context.Context) (int, error) {
	caller := j.ctl.Caller()

	evs, err := j.source.PlayerEvents(ctx, caller)
	if err != nil {
		return 0, fmt.Errorf("list created matches: %w", err)
	}

	swept := 0

	for _, ev := range evs {
		if ev.Kind != ledger.EventCreated || ev.Player != caller || j.done.Contains(ev.MatchID) {
			continue
		}

		ok, err := j.reclaim(ctx, ev.MatchID)
		if err != nil {
			j.log.WarnContext(ctx, "reclaim failed, will retry", "match_id", ev.MatchID.Hex(), "err", err)
			continue
		}

		if ok {
			swept++
		}
	}

	if swept > 0 {
		metrics.Counter(j.metrics, metrics.ReclaimerSwept).Inc(int64(swept))
		j.log.InfoContext(ctx, "abandoned matches refunded", "count", swept)
	}

	return swept, nil
}

func (j *Job) reclaim(ctx context.Context, id common.Hash) (bool, error) {
	view, err := j.ctl.Status(ctx, id)
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}

	switch {
	case view.Expirable:
		_, err = j.ctl.Reclaim(ctx, id)
	case view.State == match.StateExpired && view.PlayerA == j.ctl.Caller():
		// Expired earlier but the refund claim never landed.
		_, err = j.ctl.Claim(ctx, id)
	case view.State != match.StateCreated:
		j.done.Add(id, struct{}{})

		return false, nil
	default:
		return false, nil
	}

	if errors.Is(err, ledger.ErrAlreadyClaimed) {
		j.done.Add(id, struct{}{})

		return false, nil
	}

	if err != nil {
		return false, err
	}

	j.done.Add(id, struct{}{})

	return true, nil
}
