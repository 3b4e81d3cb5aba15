package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/services/history"
	"github.com/fastprodman/sealedrps/internal/services/matching"
	"github.com/fastprodman/sealedrps/internal/txwait"
	"github.com/fastprodman/sealedrps/pkg/amount"
)

const (
	defaultPoolLimit = 20
	maxPoolLimit     = 100

	// maxHistoryLimit caps ?limit= on history; an omitted limit lists everything.
	maxHistoryLimit = 1000
)

func parseMatchID(r *http.Request) (common.Hash, error) {
	raw := chi.URLParam(r, "matchId")
	if raw == "" {
		return common.Hash{}, errors.New("missing matchId")
	}

	return match.ParseID(raw)
}

func parseUint(raw string, def uint64) (uint64, error) {
	if raw == "" {
		return def, nil
	}

	return strconv.ParseUint(raw, 10, 64)
}

// Play handles POST /matches/play.
func (h *HandlerProvider) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode, err := match.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	move, err := match.ParseMove(req.Move)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid move")
		return
	}

	stake, err := amount.ParseETH(req.Stake)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stake: "+err.Error())
		return
	}

	if req.DeadlineSeconds < 0 {
		writeError(w, http.StatusBadRequest, "deadlineSeconds must not be negative")
		return
	}

	intent := matching.Intent{
		Mode:           mode,
		Stake:          stake,
		Move:           move,
		DeadlineOffset: time.Duration(req.DeadlineSeconds) * time.Second,
	}

	if req.TimeBudgetMs != nil {
		intent.TimeBudget = -1
		if *req.TimeBudgetMs > 0 {
			intent.TimeBudget = time.Duration(*req.TimeBudgetMs) * time.Millisecond
		}
	}

	res, err := h.svc.Matcher.Play(h.withProgress(r), intent)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Decision == matching.DecisionCreated {
		status = http.StatusCreated
	}

	writeJSON(w, status, newPlayResponse(res))
}

// Status handles GET /matches/{matchId}.
func (h *HandlerProvider) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid matchId in path")
		return
	}

	view, err := h.svc.Lifecycle.Status(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newStatusResponse(view))
}

// Resolve handles POST /matches/{matchId}/resolve.
func (h *HandlerProvider) Resolve(w http.ResponseWriter, r *http.Request) {
	h.receiptStep(w, r, h.svc.Lifecycle.Resolve)
}

// Claim handles POST /matches/{matchId}/claim.
func (h *HandlerProvider) Claim(w http.ResponseWriter, r *http.Request) {
	h.receiptStep(w, r, h.svc.Lifecycle.Claim)
}

// Expire handles POST /matches/{matchId}/expire.
func (h *HandlerProvider) Expire(w http.ResponseWriter, r *http.Request) {
	h.receiptStep(w, r, h.svc.Lifecycle.ExpireCreated)
}

// Finalize handles POST /matches/{matchId}/finalize.
func (h *HandlerProvider) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid matchId in path")
		return
	}

	fin, err := h.svc.Lifecycle.DecryptAndFinalize(h.withProgress(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	resp := finalizeResponse{receiptResponse: newReceiptResponse(id, fin.Receipt), Draw: fin.Draw}
	if !fin.Draw {
		resp.Winner = fin.Winner.Hex()
	}

	writeJSON(w, http.StatusOK, resp)
}

// Settle handles POST /matches/{matchId}/settle.
func (h *HandlerProvider) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid matchId in path")
		return
	}

	view, err := h.svc.Lifecycle.Settle(h.withProgress(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newStatusResponse(view))
}

// Pool handles GET /pool?mode=&stake=&offset=&limit=.
func (h *HandlerProvider) Pool(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := match.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	stake, err := amount.ParseETH(q.Get("stake"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid stake")
		return
	}

	offset, err := parseUint(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	limit, err := parseUint(q.Get("limit"), defaultPoolLimit)
	if err != nil || limit == 0 || limit > maxPoolLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1..%d", maxPoolLimit))
		return
	}

	page, err := h.svc.Pool.PendingMatches(r.Context(), mode, stake, offset, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	valid, err := h.svc.Matcher.ValidPendingCount(r.Context(), mode, stake)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	ids := make([]string, 0, len(page.IDs))
	for _, id := range page.IDs {
		ids = append(ids, id.Hex())
	}

	writeJSON(w, http.StatusOK, poolResponse{
		Mode:    mode.String(),
		Stake:   amount.FormatETH(stake),
		IDs:     ids,
		Total:   page.Total,
		Valid:   valid,
		Offset:  offset,
		Limit:   limit,
		Waiting: valid > 0,
	})
}

// History handles GET /players/{address}/history?status=1&limit=.
func (h *HandlerProvider) History(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address in path")
		return
	}

	q := r.URL.Query()

	limit, err := parseUint(q.Get("limit"), 0)
	if err != nil || limit > maxHistoryLimit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 0..%d", maxHistoryLimit))
		return
	}

	withStatus, _ := strconv.ParseBool(q.Get("status"))

	entries, err := h.svc.History.List(r.Context(), common.HexToAddress(raw), history.Options{
		WithStatus: withStatus,
		Limit:      int(limit),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"player":  common.HexToAddress(raw).Hex(),
		"matches": newHistoryEntries(entries),
	})
}

// Session handles GET /session and reports the identity the server acts as.
func (h *HandlerProvider) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"caller": h.svc.Lifecycle.Caller().Hex()})
}

type receiptFunc func(ctx context.Context, id common.Hash) (ledger.Receipt, error)

func (h *HandlerProvider) receiptStep(w http.ResponseWriter, r *http.Request, step receiptFunc) {
	id, err := parseMatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid matchId in path")
		return
	}

	receipt, err := step(h.withProgress(r), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newReceiptResponse(id, receipt))
}

func (h *HandlerProvider) withProgress(r *http.Request) context.Context {
	return txwait.WithReporter(r.Context(), func(p txwait.Progress) {
		h.log.DebugContext(r.Context(), p.String(), "op", p.Op, "match_id", p.MatchID.Hex(), "tx_hash", p.TxHash.Hex())
	})
}
