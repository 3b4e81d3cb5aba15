// Package lifecycle drives a match from LOCKED to settlement and handles
// refunds for abandoned matches.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/infra/metrics"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/txwait"
)

var (
	ErrNotJoined = errors.New("match not joined yet")
	ErrExpired   = errors.New("match expired")
)

type Config struct {
	LockWaitInterval time.Duration `env:"LOCK_WAIT_INTERVAL" default:"2s"`
	LockWaitAttempts int           `env:"LOCK_WAIT_ATTEMPTS" default:"150"`
	StatusCacheSize  int           `env:"STATUS_CACHE_SIZE" default:"512"`
}

type Controller struct {
	gw      ledger.Gateway
	enc     encryption.Service
	waiter  *txwait.Waiter
	cfg     Config
	clock   clockwork.Clock
	log     *slog.Logger
	metrics gometrics.Registry

	// settled holds statuses that can no longer change.
	settled *lru.Cache
}

type Option func(*Controller)

func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.log = l }
}

func WithMetrics(r gometrics.Registry) Option {
	return func(ctl *Controller) { ctl.metrics = r }
}

func New(gw ledger.Gateway, enc encryption.Service, waiter *txwait.Waiter, cfg Config, opts ...Option) (*Controller, error) {
	if cfg.LockWaitInterval <= 0 {
		cfg.LockWaitInterval = 2 * time.Second
	}
	if cfg.LockWaitAttempts <= 0 {
		cfg.LockWaitAttempts = 150
	}
	if cfg.StatusCacheSize <= 0 {
		cfg.StatusCacheSize = 512
	}

	cache, err := lru.New(cfg.StatusCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create status cache: %w", err)
	}

	ctl := &Controller{
		gw:      gw,
		enc:     enc,
		waiter:  waiter,
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		log:     slog.Default(),
		settled: cache,
	}

	for _, opt := range opts {
		opt(ctl)
	}

	ctl.log = ctl.log.With("component", "lifecycle", "caller", gw.Caller().Hex())

	return ctl, nil
}

func (c *Controller) Caller() common.Address {
	return c.gw.Caller()
}

// Status returns the live status of id with fields derived for the caller.
func (c *Controller) Status(ctx context.Context, id common.Hash) (View, error) {
	st, err := c.status(ctx, id)
	if err != nil {
		return View{}, err
	}

	return NewView(st, c.gw.Caller(), c.clock.Now()), nil
}

// Resolve submits resolve for a LOCKED match and waits for confirmation.
func (c *Controller) Resolve(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	return c.transact(ctx, "resolve", id, func(ctx context.Context) (common.Hash, error) {
		return c.gw.Resolve(ctx, id)
	})
}

// DecryptAndFinalize reads the encrypted outcome, decrypts the winner for
// the caller and writes it back with finalizeWinner.
func (c *Controller) DecryptAndFinalize(ctx context.Context, id common.Hash) (Finalization, error) {
	st, err := c.status(ctx, id)
	if err != nil {
		return Finalization{}, &ledger.OpError{Op: "finalizeWinner", MatchID: id, Err: err}
	}

	if st.State != match.StateResolved || st.Finalized {
		return Finalization{}, &ledger.OpError{
			Op:      "finalizeWinner",
			MatchID: id,
			Err:     fmt.Errorf("%w: match is %s, finalized=%t", ledger.ErrInvalidMatchState, st.State, st.Finalized),
		}
	}

	handle, err := c.gw.EncryptedOutcome(ctx, id)
	if err != nil {
		return Finalization{}, &ledger.OpError{Op: "finalizeWinner", MatchID: id, Err: fmt.Errorf("read encrypted outcome: %w", err)}
	}

	winner, err := encryption.DecryptAddress(ctx, c.enc, handle, c.gw.Contract(), c.gw.Caller())
	if err != nil {
		if !errors.Is(err, encryption.ErrUnavailable) && !errors.Is(err, encryption.ErrUnauthorized) &&
			!errors.Is(err, encryption.ErrInvalidHandle) {
			err = fmt.Errorf("%w: %w", encryption.ErrUnavailable, err)
		}

		return Finalization{}, &ledger.OpError{Op: "finalizeWinner", MatchID: id, Err: err}
	}

	c.log.InfoContext(ctx, "outcome decrypted", "match_id", id.Hex(), "winner", winner.Hex())

	receipt, err := c.transact(ctx, "finalizeWinner", id, func(ctx context.Context) (common.Hash, error) {
		return c.gw.FinalizeWinner(ctx, id, winner)
	})
	if err != nil {
		return Finalization{Winner: winner}, err
	}

	return Finalization{Winner: winner, Draw: winner == match.EmptyAddress, Receipt: receipt}, nil
}

// Settle pushes id through whichever of resolve and finalize are still
// outstanding. Steps already on the ledger, including ones the opponent
// lands first, are skipped.
func (c *Controller) Settle(ctx context.Context, id common.Hash) (View, error) {
	st, err := c.status(ctx, id)
	if err != nil {
		return View{}, &ledger.OpError{Op: "settle", MatchID: id, Err: err}
	}

	if st.State == match.StateLocked {
		_, err = c.Resolve(ctx, id)
		st, err = c.afterStep(ctx, id, err)
		if err != nil {
			return View{}, err
		}
	}

	if st.State == match.StateResolved && !st.Finalized {
		_, err = c.DecryptAndFinalize(ctx, id)
		st, err = c.afterStep(ctx, id, err)
		if err != nil {
			return View{}, err
		}
	}

	view := NewView(st, c.gw.Caller(), c.clock.Now())

	if st.State != match.StateResolved || !st.Finalized {
		return view, &ledger.OpError{
			Op:      "settle",
			MatchID: id,
			Err:     fmt.Errorf("%w: match is %s", ledger.ErrInvalidMatchState, st.State),
		}
	}

	metrics.Counter(c.metrics, metrics.LifecycleSettled).Inc(1)

	return view, nil
}

// afterStep re-reads the status after a settlement step. A step rejected by
// the registry is forgiven when someone else already moved the match on.
func (c *Controller) afterStep(ctx context.Context, id common.Hash, stepErr error) (match.Status, error) {
	if stepErr != nil && !errors.Is(stepErr, ledger.ErrInvalidMatchState) {
		return match.Status{}, stepErr
	}

	st, err := c.status(ctx, id)
	if err != nil {
		return match.Status{}, &ledger.OpError{Op: "settle", MatchID: id, Err: err}
	}

	if stepErr != nil && st.State != match.StateResolved {
		return match.Status{}, stepErr
	}

	if stepErr != nil {
		c.log.InfoContext(ctx, "settlement step already taken by another party", "match_id", id.Hex())
	}

	return st, nil
}

// Claim withdraws the caller's payout or refund. The registry enforces that
// each party is paid at most once.
func (c *Controller) Claim(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	r, err := c.transact(ctx, "claim", id, func(ctx context.Context) (common.Hash, error) {
		return c.gw.Claim(ctx, id)
	})
	if err == nil {
		metrics.Counter(c.metrics, metrics.LifecycleClaimed).Inc(1)
	}

	return r, err
}

// ExpireCreated abandons the caller's unjoined match after its deadline.
func (c *Controller) ExpireCreated(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	r, err := c.transact(ctx, "expireCreated", id, func(ctx context.Context) (common.Hash, error) {
		return c.gw.ExpireCreated(ctx, id)
	})
	if err == nil {
		metrics.Counter(c.metrics, metrics.LifecycleExpired).Inc(1)
	}

	return r, err
}

// Reclaim expires an abandoned match and claims the refund.
func (c *Controller) Reclaim(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	_, err := c.ExpireCreated(ctx, id)
	if err != nil {
		return ledger.Receipt{}, err
	}

	return c.Claim(ctx, id)
}

// AwaitLocked polls id until a second player has joined.
func (c *Controller) AwaitLocked(ctx context.Context, id common.Hash) (match.Status, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.LockWaitAttempts; attempt++ {
		st, err := c.gw.Status(ctx, id)
		switch {
		case err == nil && st.State == match.StateExpired:
			return st, &ledger.OpError{Op: "awaitLocked", MatchID: id, Err: ErrExpired}
		case err == nil && (st.State == match.StateLocked || st.State == match.StateResolved):
			return st, nil
		case err != nil && errors.Is(err, ledger.ErrMatchNotFound):
			return st, &ledger.OpError{Op: "awaitLocked", MatchID: id, Err: err}
		case err != nil:
			lastErr = err
		}

		c.log.DebugContext(ctx, "awaiting opponent", "match_id", id.Hex(), "attempt", attempt, "max_attempts", c.cfg.LockWaitAttempts)

		if attempt == c.cfg.LockWaitAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return match.Status{}, &ledger.OpError{Op: "awaitLocked", MatchID: id, Err: fmt.Errorf("%w: %w", ErrNotJoined, ctx.Err())}
		case <-c.clock.After(c.cfg.LockWaitInterval):
		}
	}

	err := ErrNotJoined
	if lastErr != nil {
		err = fmt.Errorf("%w: last read: %w", ErrNotJoined, lastErr)
	}

	return match.Status{}, &ledger.OpError{Op: "awaitLocked", MatchID: id, Err: err}
}

func (c *Controller) transact(ctx context.Context, op string, id common.Hash, submit func(ctx context.Context) (common.Hash, error)) (ledger.Receipt, error) {
	log := c.log.With("op", op, "match_id", id.Hex())

	r, err := c.waiter.Transact(ctx, op, id, submit)
	switch {
	case err == nil:
		log.InfoContext(ctx, "transaction confirmed", "tx_hash", r.TxHash.Hex(), "block", r.BlockNumber)
	case errors.Is(err, ledger.ErrUnconfirmed):
		metrics.Counter(c.metrics, metrics.LifecycleUnconfirmed).Inc(1)
		log.WarnContext(ctx, "transaction unconfirmed, may still settle; check history", "err", err)
	case errors.Is(err, ledger.ErrInvalidMatchState):
		metrics.Counter(c.metrics, metrics.LifecycleRejected).Inc(1)
		log.WarnContext(ctx, "transaction rejected", "err", err)
	default:
		log.ErrorContext(ctx, "transaction failed", "err", err)
	}

	return r, err
}

func (c *Controller) status(ctx context.Context, id common.Hash) (match.Status, error) {
	if v, ok := c.settled.Get(id); ok {
		return v.(match.Status), nil
	}

	st, err := c.gw.Status(ctx, id)
	if err != nil {
		return match.Status{}, err
	}

	err = st.Validate()
	if err != nil {
		return match.Status{}, fmt.Errorf("status %s: %w", id.Hex(), err)
	}

	if st.State == match.StateExpired || (st.State == match.StateResolved && st.Finalized) {
		c.settled.Add(id, st)
	}

	return st, nil
}
