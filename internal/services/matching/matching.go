package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/infra/metrics"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/txwait"
)

type Engine struct {
	gw      ledger.Gateway
	enc     encryption.Service
	waiter  *txwait.Waiter
	cfg     Config
	clock   clockwork.Clock
	log     *slog.Logger
	metrics gometrics.Registry

	mu       sync.Mutex
	inflight map[intentKey]string
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(r gometrics.Registry) Option {
	return func(e *Engine) { e.metrics = r }
}

func New(gw ledger.Gateway, enc encryption.Service, waiter *txwait.Waiter, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		gw:       gw,
		enc:      enc,
		waiter:   waiter,
		cfg:      cfg.withDefaults(),
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
		inflight: make(map[intentKey]string),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.log = e.log.With("component", "matching", "caller", gw.Caller().Hex())

	return e
}

// FindOrCreate turns intent into exactly one create or join transaction.
// A lost join race is reported as ErrJoinRaceLost with the contested id in
// the result.
func (e *Engine) FindOrCreate(ctx context.Context, intent Intent) (Result, error) {
	intent, err := e.normalize(intent)
	if err != nil {
		return Result{}, err
	}

	release, err := e.acquire(intent)
	if err != nil {
		return Result{}, err
	}
	defer release()

	return e.findOrCreate(ctx, intent, uuid.NewString(), nil)
}

// Play runs FindOrCreate and restarts matchmaking from scratch after a lost
// join race, never retrying the contested match.
func (e *Engine) Play(ctx context.Context, intent Intent) (Result, error) {
	intent, err := e.normalize(intent)
	if err != nil {
		return Result{}, err
	}

	release, err := e.acquire(intent)
	if err != nil {
		return Result{}, err
	}
	defer release()

	session := uuid.NewString()
	exclude := make(map[common.Hash]struct{})

	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRaceRetries+1; attempt++ {
		res, err := e.findOrCreate(ctx, intent, session, exclude)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}

		if !errors.Is(err, ErrJoinRaceLost) {
			return res, err
		}

		lastErr = err
		exclude[res.MatchID] = struct{}{}

		e.log.InfoContext(ctx, "join race lost, restarting matchmaking",
			"session", session, "match_id", res.MatchID.Hex(), "attempt", attempt)
	}

	return Result{Session: session}, lastErr
}

// ValidPendingCount counts first-page pool entries that pass re-validation.
func (e *Engine) ValidPendingCount(ctx context.Context, mode match.Mode, stake *big.Int) (int, error) {
	page, err := e.gw.PendingMatches(ctx, mode, stake, 0, e.cfg.PageSize)
	if err != nil {
		return 0, fmt.Errorf("pending matches: %w", err)
	}

	n := 0
	for _, id := range page.IDs {
		if e.revalidate(ctx, id, mode, stake) == nil {
			n++
		}
	}

	return n, nil
}

func (e *Engine) findOrCreate(ctx context.Context, intent Intent, session string, exclude map[common.Hash]struct{}) (Result, error) {
	log := e.log.With("session", session, "mode", intent.Mode.String(), "stake", intent.Stake.String())

	candidate, found, err := e.scan(ctx, intent, exclude, log)
	if err != nil {
		return Result{Session: session}, &ledger.OpError{Op: "findOrCreate", Err: err}
	}

	op := "createAndCommit"
	if found {
		op = "joinAndCommit"
	}

	commit, err := e.enc.EncryptMove(ctx, e.gw.Contract(), e.gw.Caller(), intent.Move)
	if err != nil {
		metrics.Counter(e.metrics, metrics.EncryptionUnavailable).Inc(1)
		if !errors.Is(err, encryption.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", encryption.ErrUnavailable, err)
		}

		log.WarnContext(ctx, "no commitment obtained, nothing submitted", "op", op, "err", err)

		return Result{Session: session}, &ledger.OpError{Op: op, MatchID: candidate, Err: err}
	}

	if found {
		return e.join(ctx, intent, session, candidate, commit, log)
	}

	return e.create(ctx, intent, session, commit, log)
}

func (e *Engine) join(ctx context.Context, intent Intent, session string, id common.Hash, commit match.Commitment, log *slog.Logger) (Result, error) {
	res := Result{Session: session, MatchID: id, Decision: DecisionJoined}

	receipt, err := e.waiter.Transact(ctx, "joinAndCommit", id, func(ctx context.Context) (common.Hash, error) {
		return e.gw.JoinAndCommit(ctx, id, commit, match.Value(intent.Mode, intent.Stake))
	})
	if err != nil {
		var opErr *ledger.OpError
		if errors.As(err, &opErr) {
			res.TxHash = opErr.TxHash
		}

		if errors.Is(err, ledger.ErrInvalidMatchState) {
			metrics.Counter(e.metrics, metrics.MatchRaceLost).Inc(1)
			return res, fmt.Errorf("%w: %w", ErrJoinRaceLost, err)
		}

		return res, err
	}

	res.TxHash = receipt.TxHash
	res.BlockNumber = receipt.BlockNumber
	metrics.Counter(e.metrics, metrics.MatchJoined).Inc(1)
	log.InfoContext(ctx, "joined match", "match_id", id.Hex(), "tx_hash", receipt.TxHash.Hex())

	return res, nil
}

func (e *Engine) create(ctx context.Context, intent Intent, session string, commit match.Commitment, log *slog.Logger) (Result, error) {
	res := Result{Session: session, Decision: DecisionCreated}

	params := ledger.CreateParams{
		Commitment: commit,
		Mode:       intent.Mode,
		Stake:      intent.Stake,
		Deadline:   e.clock.Now().Add(intent.DeadlineOffset).Truncate(time.Second),
	}

	receipt, err := e.waiter.Transact(ctx, "createAndCommit", common.Hash{}, func(ctx context.Context) (common.Hash, error) {
		return e.gw.CreateAndCommit(ctx, params)
	})
	if err != nil {
		var opErr *ledger.OpError
		if errors.As(err, &opErr) {
			res.TxHash = opErr.TxHash
		}

		return res, err
	}

	id, ok := ledger.CreatedMatchID(receipt)
	if !ok {
		return res, &ledger.OpError{Op: "createAndCommit", TxHash: receipt.TxHash, Err: errMissingCreatedEvent}
	}

	res.MatchID = id
	res.TxHash = receipt.TxHash
	res.BlockNumber = receipt.BlockNumber
	res.Deadline = params.Deadline
	metrics.Counter(e.metrics, metrics.MatchCreated).Inc(1)
	log.InfoContext(ctx, "created match", "match_id", id.Hex(), "tx_hash", receipt.TxHash.Hex(), "deadline", params.Deadline)

	return res, nil
}

// scan polls the pool until a joinable candidate appears or the time budget
// elapses. Only a cancelled ctx is an error.
func (e *Engine) scan(ctx context.Context, intent Intent, exclude map[common.Hash]struct{}, log *slog.Logger) (common.Hash, bool, error) {
	defer metrics.Timer(e.metrics, metrics.MatchScan).UpdateSince(time.Now())

	start := e.clock.Now()

	for tick := 1; ; tick++ {
		id, ok := e.pick(ctx, intent, exclude, log)
		if ok {
			log.DebugContext(ctx, "candidate selected", "match_id", id.Hex(), "tick", tick)
			return id, true, nil
		}

		remaining := intent.TimeBudget - e.clock.Since(start)
		if remaining <= 0 {
			log.DebugContext(ctx, "time budget elapsed, creating", "ticks", tick)
			return common.Hash{}, false, nil
		}

		select {
		case <-ctx.Done():
			return common.Hash{}, false, ctx.Err()
		case <-e.clock.After(min(e.cfg.PollInterval, remaining)):
		}
	}
}

// pick returns the oldest pool entry that passes re-validation.
func (e *Engine) pick(ctx context.Context, intent Intent, exclude map[common.Hash]struct{}, log *slog.Logger) (common.Hash, bool) {
	page, err := e.gw.PendingMatches(ctx, intent.Mode, intent.Stake, 0, e.cfg.PageSize)
	if err != nil {
		metrics.Counter(e.metrics, metrics.MatchPoolReadFailed).Inc(1)
		log.WarnContext(ctx, "pool read failed, treating as empty", "err", err)

		return common.Hash{}, false
	}

	for _, id := range page.IDs {
		if _, skip := exclude[id]; skip {
			continue
		}

		err := e.revalidate(ctx, id, intent.Mode, intent.Stake)
		if err != nil {
			metrics.Counter(e.metrics, metrics.MatchStaleCandidate).Inc(1)
			log.DebugContext(ctx, "skipping candidate", "match_id", id.Hex(), "err", err)

			continue
		}

		return id, true
	}

	return common.Hash{}, false
}

// revalidate re-reads the live status and applies the validity predicate.
func (e *Engine) revalidate(ctx context.Context, id common.Hash, mode match.Mode, stake *big.Int) error {
	st, err := e.gw.Status(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", errStaleCandidate, err)
	}

	if st.Mode != mode || st.Stake == nil || st.Stake.Cmp(stake) != 0 {
		return fmt.Errorf("%w: pool entry does not match intent", errStaleCandidate)
	}

	if !st.Joinable(e.gw.Caller(), e.clock.Now()) {
		return fmt.Errorf("%w: state=%s deadline=%s", errStaleCandidate, st.State, st.Deadline.UTC().Format(time.RFC3339))
	}

	return nil
}

func (e *Engine) normalize(intent Intent) (Intent, error) {
	if !intent.Mode.Valid() {
		return intent, fmt.Errorf("%w: %w", ErrInvalidIntent, match.ErrInvalidMode)
	}

	if !intent.Move.Valid() {
		return intent, fmt.Errorf("%w: %w", ErrInvalidIntent, match.ErrInvalidMove)
	}

	if intent.Stake == nil {
		intent.Stake = new(big.Int)
	}

	err := match.ValidateStake(intent.Mode, intent.Stake)
	if err != nil {
		return intent, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	if intent.DeadlineOffset <= 0 {
		intent.DeadlineOffset = e.cfg.DeadlineOffset
	}

	if intent.TimeBudget < 0 {
		intent.TimeBudget = 0
	} else if intent.TimeBudget == 0 {
		intent.TimeBudget = e.cfg.TimeBudget
	}

	return intent, nil
}

type intentKey struct {
	mode  match.Mode
	stake string
}

// acquire guards against two concurrent local actions on the same intent.
func (e *Engine) acquire(intent Intent) (func(), error) {
	key := intentKey{mode: intent.Mode, stake: intent.Stake.String()}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inflight[key]; busy {
		return nil, fmt.Errorf("%w: %s %s", ErrIntentInFlight, intent.Mode, intent.Stake)
	}

	e.inflight[key] = e.gw.Caller().Hex()

	return func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}, nil
}
