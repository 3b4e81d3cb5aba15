package evm

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

var errUnexpectedOutput = errors.New("unexpected call output")

func decodeStatus(id common.Hash, out []any, finalized bool) (match.Status, error) {
	if len(out) != 7 {
		return match.Status{}, fmt.Errorf("getStatus: %w: %d values", errUnexpectedOutput, len(out))
	}

	state, ok1 := out[0].(uint8)
	playerA, ok2 := out[1].(common.Address)
	playerB, ok3 := out[2].(common.Address)
	stake, ok4 := out[3].(*big.Int)
	deadline, ok5 := out[4].(uint64)
	mode, ok6 := out[5].(uint8)
	winner, ok7 := out[6].(common.Address)

	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return match.Status{}, fmt.Errorf("getStatus: %w: types", errUnexpectedOutput)
	}

	st := match.Status{
		ID:        id,
		State:     match.State(state),
		PlayerA:   playerA,
		PlayerB:   playerB,
		Stake:     stake,
		Deadline:  time.Unix(int64(deadline), 0),
		Mode:      match.Mode(mode),
		Winner:    winner,
		Finalized: finalized,
	}

	if !st.State.Valid() {
		return match.Status{}, fmt.Errorf("getStatus: unknown state %d", state)
	}

	return st, nil
}

func decodePage(out []any) (ledger.Page, error) {
	if len(out) != 2 {
		return ledger.Page{}, fmt.Errorf("getPendingMatches: %w", errUnexpectedOutput)
	}

	ids, ok1 := out[0].([][32]byte)
	total, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return ledger.Page{}, fmt.Errorf("getPendingMatches: %w: types", errUnexpectedOutput)
	}

	page := ledger.Page{IDs: make([]common.Hash, 0, len(ids)), Total: total.Uint64()}
	for _, id := range ids {
		page.IDs = append(page.IDs, common.Hash(id))
	}

	return page, nil
}

// decodeLog maps a registry log onto a ledger event.
func decodeLog(parsed abi.ABI, lg types.Log) (ledger.Event, bool) {
	if len(lg.Topics) < 3 || lg.Removed {
		return ledger.Event{}, false
	}

	var kind ledger.EventKind

	switch lg.Topics[0] {
	case parsed.Events[eventCreated].ID:
		kind = ledger.EventCreated
	case parsed.Events[eventJoined].ID:
		kind = ledger.EventJoined
	default:
		return ledger.Event{}, false
	}

	return ledger.Event{
		Kind:        kind,
		MatchID:     lg.Topics[1],
		Player:      common.BytesToAddress(lg.Topics[2].Bytes()),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}, true
}

func decodeReceipt(parsed abi.ABI, r *types.Receipt) ledger.Receipt {
	out := ledger.Receipt{
		TxHash:    r.TxHash,
		Succeeded: r.Status == types.ReceiptStatusSuccessful,
		GasCost:   new(big.Int),
	}

	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}

	if r.EffectiveGasPrice != nil {
		out.GasCost.Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	}

	for _, lg := range r.Logs {
		if lg == nil {
			continue
		}

		ev, ok := decodeLog(parsed, *lg)
		if ok {
			out.Events = append(out.Events, ev)
		}
	}

	return out
}

// revertReason extracts the Error(string) reason from a node error, if any.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			raw, decErr := hexutil.Decode(s)
			if decErr == nil {
				reason, unpackErr := abi.UnpackRevert(raw)
				if unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	const marker = "execution reverted"

	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}

	reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(marker):], ":"))
	if strings.HasPrefix(reason, "0x") {
		raw, decErr := hex.DecodeString(reason[2:])
		if decErr == nil {
			unpacked, unpackErr := abi.UnpackRevert(raw)
			if unpackErr == nil {
				reason = unpacked
			}
		}
	}

	return reason, true
}
