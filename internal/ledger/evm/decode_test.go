package evm

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestDecodeStatus_FromPackedOutput(t *testing.T) {
	t.Parallel()

	parsed, err := ParsedABI()
	require.NoError(t, err)

	stake := big.NewInt(10_000_000_000_000_000)
	deadline := uint64(1_700_000_600)

	raw, err := parsed.Methods["getStatus"].Outputs.Pack(
		uint8(match.StateLocked), alice, bob, stake, deadline, uint8(match.ModeWager), common.Address{},
	)
	require.NoError(t, err)

	out, err := parsed.Unpack("getStatus", raw)
	require.NoError(t, err)

	id := common.HexToHash("0x01")
	st, err := decodeStatus(id, out, false)
	require.NoError(t, err)
	require.Equal(t, id, st.ID)
	require.Equal(t, match.StateLocked, st.State)
	require.Equal(t, alice, st.PlayerA)
	require.Equal(t, bob, st.PlayerB)
	require.Equal(t, 0, stake.Cmp(st.Stake))
	require.Equal(t, time.Unix(int64(deadline), 0), st.Deadline)
	require.Equal(t, match.ModeWager, st.Mode)
	require.False(t, st.Finalized)

	_, err = decodeStatus(id, out[:3], false)
	require.ErrorIs(t, err, errUnexpectedOutput)
}

func TestDecodePage_FromPackedOutput(t *testing.T) {
	t.Parallel()

	parsed, err := ParsedABI()
	require.NoError(t, err)

	ids := [][32]byte{common.HexToHash("0xaa"), common.HexToHash("0xbb")}
	raw, err := parsed.Methods["getPendingMatches"].Outputs.Pack(ids, big.NewInt(3))
	require.NoError(t, err)

	out, err := parsed.Unpack("getPendingMatches", raw)
	require.NoError(t, err)

	page, err := decodePage(out)
	require.NoError(t, err)
	require.Equal(t, uint64(3), page.Total)
	require.Equal(t, []common.Hash{common.HexToHash("0xaa"), common.HexToHash("0xbb")}, page.IDs)
}

func TestDecodeReceipt_Logs(t *testing.T) {
	t.Parallel()

	parsed, err := ParsedABI()
	require.NoError(t, err)

	id := common.HexToHash("0xfeed")
	txHash := common.HexToHash("0x7777")

	created := &types.Log{
		Topics:      []common.Hash{parsed.Events[eventCreated].ID, id, common.BytesToHash(alice.Bytes())},
		BlockNumber: 12,
		TxHash:      txHash,
		Index:       3,
	}
	foreign := &types.Log{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")), id, id}}

	r := decodeReceipt(parsed, &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		TxHash:            txHash,
		BlockNumber:       big.NewInt(12),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(2),
		Logs:              []*types.Log{foreign, created},
	})

	require.True(t, r.Succeeded)
	require.Equal(t, uint64(12), r.BlockNumber)
	require.Equal(t, int64(42000), r.GasCost.Int64())
	require.Len(t, r.Events, 1)

	got, ok := ledger.CreatedMatchID(r)
	require.True(t, ok)
	require.Equal(t, id, got)
	require.Equal(t, alice, r.Events[0].Player)
	require.Equal(t, uint(3), r.Events[0].LogIndex)
}

func TestDecodeLog_Joined(t *testing.T) {
	t.Parallel()

	parsed, err := ParsedABI()
	require.NoError(t, err)

	ev, ok := decodeLog(parsed, types.Log{
		Topics: []common.Hash{parsed.Events[eventJoined].ID, common.HexToHash("0x1"), common.BytesToHash(bob.Bytes())},
	})
	require.True(t, ok)
	require.Equal(t, ledger.EventJoined, ev.Kind)
	require.Equal(t, bob, ev.Player)

	_, ok = decodeLog(parsed, types.Log{Topics: []common.Hash{parsed.Events[eventJoined].ID}})
	require.False(t, ok)
}

type dataErr struct {
	msg  string
	data any
}

func (e dataErr) Error() string  { return e.msg }
func (e dataErr) ErrorData() any { return e.data }

func TestRevertReason(t *testing.T) {
	t.Parallel()

	// Error(string) selector + abi-encoded "not created"
	encoded := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"000000000000000000000000000000000000000000000000000000000000000b" +
		"6e6f742063726561746564000000000000000000000000000000000000000000"

	reason, ok := revertReason(dataErr{msg: "execution reverted", data: encoded})
	require.True(t, ok)
	require.Equal(t, ledger.ReasonNotCreated, reason)

	reason, ok = revertReason(errors.New("failed to estimate gas: execution reverted: already claimed"))
	require.True(t, ok)
	require.Equal(t, ledger.ReasonAlreadyClaimed, reason)

	_, ok = revertReason(errors.New("connection refused"))
	require.False(t, ok)
}

func TestBumpFee(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(130), BumpFee(big.NewInt(100), 30).Int64())
	require.Equal(t, int64(2), BumpFee(big.NewInt(1), 30).Int64(), "rounds up")
	require.Equal(t, int64(100), BumpFee(big.NewInt(100), 0).Int64())
	require.Nil(t, BumpFee(nil, 30))

	tip, feeCap := feeCaps(big.NewInt(10), big.NewInt(100), 30)
	require.Equal(t, int64(13), tip.Int64())
	require.Equal(t, int64(273), feeCap.Int64())
}
