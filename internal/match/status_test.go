package match

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestStatus_Joinable(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	base := Status{
		State:    StateCreated,
		PlayerA:  alice,
		Stake:    big.NewInt(10),
		Mode:     ModeWager,
		Deadline: now.Add(time.Minute),
	}

	tests := []struct {
		name   string
		mutate func(s *Status)
		caller common.Address
		want   bool
	}{
		{name: "valid", mutate: func(*Status) {}, caller: bob, want: true},
		{name: "own_match", mutate: func(*Status) {}, caller: alice, want: false},
		{name: "locked", mutate: func(s *Status) { s.State = StateLocked }, caller: bob, want: false},
		{name: "deadline_now", mutate: func(s *Status) { s.Deadline = now }, caller: bob, want: false},
		{name: "deadline_passed", mutate: func(s *Status) { s.Deadline = now.Add(-time.Second) }, caller: bob, want: false},
		{name: "already_has_b", mutate: func(s *Status) { s.PlayerB = bob }, caller: common.HexToAddress("0xc"), want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := base
			tt.mutate(&s)
			require.Equal(t, tt.want, s.Joinable(tt.caller, now))
		})
	}
}

func TestStatus_Expirable(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	s := Status{State: StateCreated, PlayerA: alice, Deadline: now.Add(-time.Second)}

	require.True(t, s.Expirable(alice, now))
	require.False(t, s.Expirable(bob, now), "only playerA may expire")

	atDeadline := s
	atDeadline.Deadline = now
	require.False(t, atDeadline.Expirable(alice, now), "deadline must be strictly in the past")

	joined := s
	joined.PlayerB = bob
	joined.State = StateLocked
	require.False(t, joined.Expirable(alice, now))
}

func TestStatus_OutcomeAndClaimants(t *testing.T) {
	t.Parallel()

	s := Status{State: StateLocked, PlayerA: alice, PlayerB: bob}
	require.Equal(t, OutcomePending, s.Outcome())
	require.Nil(t, s.ClaimableBy())

	s.State = StateResolved
	require.Equal(t, OutcomePending, s.Outcome(), "resolved without a finalized winner is pending")

	s.Finalized = true
	require.Equal(t, OutcomeDraw, s.Outcome())
	require.Equal(t, []common.Address{alice, bob}, s.ClaimableBy())

	s.Winner = bob
	require.Equal(t, OutcomeWinner, s.Outcome())
	require.Equal(t, []common.Address{bob}, s.ClaimableBy())

	expired := Status{State: StateExpired, PlayerA: alice}
	require.Equal(t, OutcomeRefund, expired.Outcome())
	require.Equal(t, []common.Address{alice}, expired.ClaimableBy())
}

func TestStatus_Validate(t *testing.T) {
	t.Parallel()

	ok := Status{State: StateCreated, PlayerA: alice, Mode: ModeWager, Stake: big.NewInt(1)}
	require.NoError(t, ok.Validate())

	practice := Status{State: StateCreated, PlayerA: alice, Mode: ModePractice, Stake: new(big.Int)}
	require.NoError(t, practice.Validate())

	self := ok
	self.PlayerB = alice
	require.True(t, errors.Is(self.Validate(), ErrInvariant))

	stakedPractice := practice
	stakedPractice.Stake = big.NewInt(5)
	require.ErrorIs(t, stakedPractice.Validate(), ErrInvariant)

	freeWager := ok
	freeWager.Stake = nil
	require.ErrorIs(t, freeWager.Validate(), ErrInvariant)

	badState := ok
	badState.State = State(7)
	require.ErrorIs(t, badState.Validate(), ErrInvariant)
}

func TestParsers(t *testing.T) {
	t.Parallel()

	m, err := ParseMove(" Scissors ")
	require.NoError(t, err)
	require.Equal(t, Scissors, m)

	_, err = ParseMove("lizard")
	require.ErrorIs(t, err, ErrInvalidMove)

	mode, err := ParseMode("1")
	require.NoError(t, err)
	require.Equal(t, ModeWager, mode)

	_, err = ParseMode("ranked")
	require.ErrorIs(t, err, ErrInvalidMode)

	id, err := ParseID("0x" + "ab00000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, byte(0xab), id[0])

	_, err = ParseID("0x1234")
	require.Error(t, err)
}

func TestValue(t *testing.T) {
	t.Parallel()

	stake := big.NewInt(42)
	require.Equal(t, int64(0), Value(ModePractice, stake).Int64())

	v := Value(ModeWager, stake)
	require.Equal(t, int64(42), v.Int64())

	v.SetInt64(1)
	require.Equal(t, int64(42), stake.Int64(), "Value must copy the stake")
}
