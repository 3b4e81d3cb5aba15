// Package txwait implements submit-once, poll-for-receipt confirmation.
package txwait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/fastprodman/sealedrps/internal/ledger"
)

type Config struct {
	Interval    time.Duration `env:"POLL_INTERVAL" default:"2s"`
	MaxAttempts int           `env:"POLL_MAX_ATTEMPTS" default:"30"`
}

func DefaultConfig() Config {
	return Config{Interval: 2 * time.Second, MaxAttempts: 30}
}

type ReceiptReader interface {
	Receipt(ctx context.Context, txHash common.Hash) (ledger.Receipt, error)
}

type Waiter struct {
	reader ReceiptReader
	clock  clockwork.Clock
	cfg    Config
	log    *slog.Logger
}

func New(reader ReceiptReader, clock clockwork.Clock, cfg Config, logger *slog.Logger) *Waiter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Waiter{reader: reader, clock: clock, cfg: cfg, log: logger.With("component", "txwait")}
}

func (w *Waiter) Config() Config {
	return w.cfg
}

// Transact submits exactly once and waits for the receipt. Submission errors
// are fatal and returned immediately.
func (w *Waiter) Transact(ctx context.Context, op string, id common.Hash, submit func(ctx context.Context) (common.Hash, error)) (ledger.Receipt, error) {
	tx, err := submit(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrSubmissionFailed) {
			err = fmt.Errorf("%w: %w", ledger.ErrSubmissionFailed, err)
		}

		return ledger.Receipt{}, &ledger.OpError{Op: op, MatchID: id, Err: err}
	}

	w.log.InfoContext(ctx, "transaction submitted", "op", op, "match_id", id.Hex(), "tx_hash", tx.Hex())

	return w.Wait(ctx, op, id, tx)
}

// Wait polls for txHash at a fixed interval. A missing receipt or a transient
// read error only fails the final attempt; a mined but failed transaction is
// returned as a RevertError at once.
func (w *Waiter) Wait(ctx context.Context, op string, id, txHash common.Hash) (ledger.Receipt, error) {
	report := reporterFrom(ctx)

	var lastErr error

	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		p := Progress{Op: op, MatchID: id, TxHash: txHash, Attempt: attempt, MaxAttempts: w.cfg.MaxAttempts}
		report(p)
		w.log.DebugContext(ctx, p.String(), "op", op, "tx_hash", txHash.Hex(), "attempt", attempt, "max_attempts", w.cfg.MaxAttempts)

		r, err := w.reader.Receipt(ctx, txHash)
		switch {
		case err == nil && r.Succeeded:
			return r, nil
		case err == nil:
			w.log.WarnContext(ctx, "transaction reverted", "op", op, "tx_hash", txHash.Hex(), "reason", r.RevertReason)

			return r, &ledger.OpError{Op: op, MatchID: id, TxHash: txHash, Err: &ledger.RevertError{Reason: r.RevertReason}}
		case !errors.Is(err, ledger.ErrReceiptNotFound):
			lastErr = err
		}

		if attempt == w.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ledger.Receipt{}, &ledger.OpError{Op: op, MatchID: id, TxHash: txHash, Err: fmt.Errorf("%w: %w", ledger.ErrUnconfirmed, ctx.Err())}
		case <-w.clock.After(w.cfg.Interval):
		}
	}

	err := ledger.ErrUnconfirmed
	if lastErr != nil {
		err = fmt.Errorf("%w: last poll: %w", ledger.ErrUnconfirmed, lastErr)
	}

	w.log.WarnContext(ctx, "transaction unconfirmed, may still settle", "op", op, "tx_hash", txHash.Hex(), "attempts", w.cfg.MaxAttempts)

	return ledger.Receipt{}, &ledger.OpError{Op: op, MatchID: id, TxHash: txHash, Err: err}
}
