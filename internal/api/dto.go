package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/services/history"
	"github.com/fastprodman/sealedrps/internal/services/lifecycle"
	"github.com/fastprodman/sealedrps/internal/services/matching"
	"github.com/fastprodman/sealedrps/pkg/amount"
)

type playRequest struct {
	Mode            string `json:"mode"`
	Stake           string `json:"stake"`
	Move            string `json:"move"`
	DeadlineSeconds int64  `json:"deadlineSeconds"`
	// TimeBudgetMs: omitted uses the server default, zero or less skips
	// waiting for the pool.
	TimeBudgetMs *int64 `json:"timeBudgetMs"`
}

type playResponse struct {
	Session     string     `json:"session"`
	Decision    string     `json:"decision"`
	MatchID     string     `json:"matchId"`
	TxHash      string     `json:"txHash"`
	BlockNumber uint64     `json:"blockNumber"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Attempts    int        `json:"attempts"`
}

func newPlayResponse(res matching.Result) playResponse {
	out := playResponse{
		Session:     res.Session,
		Decision:    string(res.Decision),
		MatchID:     res.MatchID.Hex(),
		TxHash:      res.TxHash.Hex(),
		BlockNumber: res.BlockNumber,
		Attempts:    res.Attempts,
	}

	if !res.Deadline.IsZero() {
		d := res.Deadline.UTC()
		out.Deadline = &d
	}

	return out
}

type statusResponse struct {
	MatchID     string    `json:"matchId"`
	State       string    `json:"state"`
	Mode        string    `json:"mode"`
	PlayerA     string    `json:"playerA"`
	PlayerB     string    `json:"playerB,omitempty"`
	Stake       string    `json:"stake"`
	Deadline    time.Time `json:"deadline"`
	Finalized   bool      `json:"finalized"`
	Winner      string    `json:"winner,omitempty"`
	Outcome     string    `json:"outcome"`
	Joinable    bool      `json:"joinable"`
	Expirable   bool      `json:"expirable"`
	ClaimableBy []string  `json:"claimableBy"`
}

func newStatusResponse(v lifecycle.View) statusResponse {
	out := statusResponse{
		MatchID:     v.ID.Hex(),
		State:       v.State.String(),
		Mode:        v.Mode.String(),
		PlayerA:     v.PlayerA.Hex(),
		Stake:       amount.FormatETH(v.Stake),
		Deadline:    v.Deadline.UTC(),
		Finalized:   v.Finalized,
		Outcome:     v.Outcome.String(),
		Joinable:    v.Joinable,
		Expirable:   v.Expirable,
		ClaimableBy: hexAddresses(v.ClaimableBy),
	}

	if v.PlayerB != match.EmptyAddress {
		out.PlayerB = v.PlayerB.Hex()
	}

	if v.Outcome == match.OutcomeWinner {
		out.Winner = v.Winner.Hex()
	}

	return out
}

type receiptResponse struct {
	MatchID     string `json:"matchId"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	GasCost     string `json:"gasCost"`
}

func newReceiptResponse(id common.Hash, r ledger.Receipt) receiptResponse {
	return receiptResponse{
		MatchID:     id.Hex(),
		TxHash:      r.TxHash.Hex(),
		BlockNumber: r.BlockNumber,
		GasCost:     amount.FormatETH(r.GasCost),
	}
}

type finalizeResponse struct {
	receiptResponse
	Winner string `json:"winner,omitempty"`
	Draw   bool   `json:"draw"`
}

type poolResponse struct {
	Mode    string   `json:"mode"`
	Stake   string   `json:"stake"`
	IDs     []string `json:"ids"`
	Total   uint64   `json:"total"`
	Valid   int      `json:"valid"`
	Offset  uint64   `json:"offset"`
	Limit   uint64   `json:"limit"`
	Waiting bool     `json:"waiting"`
}

type historyEntry struct {
	MatchID     string          `json:"matchId"`
	Kind        string          `json:"kind"`
	BlockNumber uint64          `json:"blockNumber"`
	TxHash      string          `json:"txHash"`
	Status      *statusResponse `json:"status,omitempty"`
	StatusError string          `json:"statusError,omitempty"`
}

func newHistoryEntries(entries []history.Entry) []historyEntry {
	out := make([]historyEntry, 0, len(entries))

	for _, e := range entries {
		item := historyEntry{
			MatchID:     e.MatchID.Hex(),
			Kind:        string(e.Kind),
			BlockNumber: e.BlockNumber,
			TxHash:      e.TxHash.Hex(),
		}

		if e.Status != nil {
			st := newStatusResponse(*e.Status)
			item.Status = &st
		}

		if e.StatusErr != nil {
			item.StatusError = e.StatusErr.Error()
		}

		out = append(out, item)
	}

	return out
}

func hexAddresses(addrs []common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Hex())
	}

	return out
}
