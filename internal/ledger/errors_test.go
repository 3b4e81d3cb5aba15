package ledger

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestClassifyRevert(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, ClassifyRevert(ReasonAlreadyClaimed), ErrAlreadyClaimed)
	require.ErrorIs(t, ClassifyRevert(ReasonAlreadyClaimed), ErrInvalidMatchState)
	require.ErrorIs(t, ClassifyRevert(ReasonNotCreated), ErrInvalidMatchState)
	require.NotErrorIs(t, ClassifyRevert(ReasonNotCreated), ErrAlreadyClaimed)
	require.ErrorIs(t, ClassifyRevert("something new"), ErrInvalidMatchState)
}

func TestRevertError(t *testing.T) {
	t.Parallel()

	var err error = &RevertError{Reason: ReasonAlreadyClaimed}
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.Equal(t, "execution reverted: already claimed", err.Error())

	wrapped := fmt.Errorf("claim: %w", err)
	var rev *RevertError
	require.True(t, errors.As(wrapped, &rev))
	require.Equal(t, ReasonAlreadyClaimed, rev.Reason)
}

func TestSubmissionRejected(t *testing.T) {
	t.Parallel()

	err := SubmissionRejected(ReasonSelfJoin)
	require.ErrorIs(t, err, ErrSubmissionFailed)
	require.ErrorIs(t, err, ErrInvalidMatchState)
	require.NotErrorIs(t, err, ErrUnconfirmed)
}

func TestOpError(t *testing.T) {
	t.Parallel()

	id := common.HexToHash("0x01")
	tx := common.HexToHash("0x02")
	err := &OpError{Op: "resolve", MatchID: id, TxHash: tx, Err: ErrUnconfirmed}

	require.ErrorIs(t, err, ErrUnconfirmed)
	require.True(t, strings.HasPrefix(err.Error(), "resolve match "+id.Hex()))
	require.Contains(t, err.Error(), "tx "+tx.Hex())

	noCtx := &OpError{Op: "play", Err: ErrSubmissionFailed}
	require.Equal(t, "play: transaction submission failed", noCtx.Error())
}

func TestCreatedMatchID(t *testing.T) {
	t.Parallel()

	id := common.HexToHash("0xbeef")
	r := Receipt{Events: []Event{
		{Kind: EventJoined, MatchID: common.HexToHash("0x1")},
		{Kind: EventCreated, MatchID: id},
	}}

	got, ok := CreatedMatchID(r)
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok = CreatedMatchID(Receipt{})
	require.False(t, ok)
}
