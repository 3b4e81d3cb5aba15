package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/services/history"
	"github.com/fastprodman/sealedrps/internal/services/lifecycle"
	"github.com/fastprodman/sealedrps/internal/services/matching"
)

// Matcher is satisfied by matching.Engine.
type Matcher interface {
	Play(ctx context.Context, intent matching.Intent) (matching.Result, error)
	ValidPendingCount(ctx context.Context, mode match.Mode, stake *big.Int) (int, error)
}

// Lifecycle is satisfied by lifecycle.Controller.
type Lifecycle interface {
	Caller() common.Address
	Status(ctx context.Context, id common.Hash) (lifecycle.View, error)
	Resolve(ctx context.Context, id common.Hash) (ledger.Receipt, error)
	DecryptAndFinalize(ctx context.Context, id common.Hash) (lifecycle.Finalization, error)
	Settle(ctx context.Context, id common.Hash) (lifecycle.View, error)
	Claim(ctx context.Context, id common.Hash) (ledger.Receipt, error)
	ExpireCreated(ctx context.Context, id common.Hash) (ledger.Receipt, error)
}

type PoolReader interface {
	PendingMatches(ctx context.Context, mode match.Mode, stake *big.Int, offset, limit uint64) (ledger.Page, error)
}

// HistoryLister is satisfied by history.Service.
type HistoryLister interface {
	List(ctx context.Context, player common.Address, opts history.Options) ([]history.Entry, error)
}

type Services struct {
	Matcher   Matcher
	Lifecycle Lifecycle
	Pool      PoolReader
	History   HistoryLister
}

// HandlerProvider exposes the session's matchmaking and lifecycle
// operations as HTTP handlers.
type HandlerProvider struct {
	svc Services
	log *slog.Logger
}

func NewHandler(svc Services, logger *slog.Logger) *HandlerProvider {
	if logger == nil {
		logger = slog.Default()
	}

	return &HandlerProvider{svc: svc, log: logger.With("component", "api")}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return errors.New("empty body")
	}

	if err != nil {
		return errors.New("invalid JSON")
	}

	return nil
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Unconfirmed
// transactions are accepted, not failed: they may still land.
//
//nolint:cyclop
func (h *HandlerProvider) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		opErr  *ledger.OpError
		status int
		msg    string
	)

	switch {
	case errors.Is(err, ledger.ErrUnconfirmed):
		resp := map[string]string{
			"status":  "unconfirmed",
			"message": "transaction may still settle; check history",
		}
		if errors.As(err, &opErr) {
			if opErr.TxHash != (common.Hash{}) {
				resp["txHash"] = opErr.TxHash.Hex()
			}
			if opErr.MatchID != (common.Hash{}) {
				resp["matchId"] = opErr.MatchID.Hex()
			}
		}

		h.log.WarnContext(r.Context(), "transaction unconfirmed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusAccepted, resp)

		return
	case errors.Is(err, matching.ErrInvalidIntent),
		errors.Is(err, match.ErrInvalidMode),
		errors.Is(err, match.ErrInvalidMove):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, matching.ErrIntentInFlight):
		status, msg = http.StatusTooManyRequests, "an identical play is already in flight"
	case errors.Is(err, matching.ErrJoinRaceLost):
		status, msg = http.StatusConflict, "join race lost"
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		status, msg = http.StatusConflict, "already claimed"
	case errors.Is(err, ledger.ErrInvalidMatchState),
		errors.Is(err, lifecycle.ErrExpired):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, ledger.ErrMatchNotFound):
		status, msg = http.StatusNotFound, "match not found"
	case errors.Is(err, encryption.ErrUnauthorized):
		status, msg = http.StatusForbidden, "not authorized to decrypt"
	case errors.Is(err, encryption.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "encryption service unavailable"
	case errors.Is(err, ledger.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "ledger unavailable"
	case errors.Is(err, ledger.ErrSubmissionFailed):
		status, msg = http.StatusBadGateway, "transaction submission failed"
	default:
		status, msg = http.StatusInternalServerError, "internal error"
	}

	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		h.log.InfoContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "err", err)
	}

	writeError(w, status, msg)
}
