package sealed

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/match"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newCoprocessor(t *testing.T) *Coprocessor {
	t.Helper()

	c, err := New([]byte("test secret"))
	require.NoError(t, err)

	return c
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	c := newCoprocessor(t)
	ctx := context.Background()

	for _, m := range []match.Move{match.Rock, match.Paper, match.Scissors} {
		commit, err := c.EncryptMove(ctx, contract, alice, m)
		require.NoError(t, err)
		require.NotEqual(t, common.Hash{}, commit.Handle)

		got, err := encryption.DecryptMove(ctx, c, commit.Handle, contract, alice)
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
}

func TestEncrypt_HandlesAreUnique(t *testing.T) {
	t.Parallel()

	c := newCoprocessor(t)

	a, err := c.EncryptMove(context.Background(), contract, alice, match.Rock)
	require.NoError(t, err)
	b, err := c.EncryptMove(context.Background(), contract, alice, match.Rock)
	require.NoError(t, err)

	require.NotEqual(t, a.Handle, b.Handle, "same plaintext must not leak through equal handles")
}

func TestDecrypt_Authorization(t *testing.T) {
	t.Parallel()

	c := newCoprocessor(t)
	ctx := context.Background()

	commit, err := c.EncryptMove(ctx, contract, alice, match.Paper)
	require.NoError(t, err)

	_, err = c.Decrypt(ctx, commit.Handle, contract, bob)
	require.ErrorIs(t, err, encryption.ErrUnauthorized)

	_, err = c.Decrypt(ctx, commit.Handle, common.HexToAddress("0xdead"), alice)
	require.ErrorIs(t, err, encryption.ErrUnauthorized)

	_, err = c.Decrypt(ctx, common.HexToHash("0x1234"), contract, alice)
	require.ErrorIs(t, err, encryption.ErrInvalidHandle)
}

func TestVerifyInput(t *testing.T) {
	t.Parallel()

	c := newCoprocessor(t)

	commit, err := c.EncryptMove(context.Background(), contract, alice, match.Scissors)
	require.NoError(t, err)

	require.NoError(t, c.VerifyInput(commit.Handle, commit.Proof, contract, alice))
	require.ErrorIs(t, c.VerifyInput(commit.Handle, commit.Proof, contract, bob), ErrInvalidProof)
	require.ErrorIs(t, c.VerifyInput(commit.Handle, commit.Proof, common.HexToAddress("0xdead"), alice), ErrInvalidProof)

	tampered := append([]byte(nil), commit.Proof...)
	tampered[0] ^= 0xff
	require.ErrorIs(t, c.VerifyInput(commit.Handle, tampered, contract, alice), ErrInvalidProof)
}

func TestEvaluateOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		a, b   match.Move
		winner common.Address
	}{
		{name: "rock_beats_scissors", a: match.Rock, b: match.Scissors, winner: alice},
		{name: "paper_loses_to_scissors", a: match.Paper, b: match.Scissors, winner: bob},
		{name: "draw", a: match.Paper, b: match.Paper, winner: match.EmptyAddress},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newCoprocessor(t)
			ctx := context.Background()

			ca, err := c.EncryptMove(ctx, contract, alice, tt.a)
			require.NoError(t, err)
			cb, err := c.EncryptMove(ctx, contract, bob, tt.b)
			require.NoError(t, err)

			outcome, err := c.EvaluateOutcome(contract, ca.Handle, cb.Handle, alice, bob)
			require.NoError(t, err)

			for _, reader := range []common.Address{alice, bob} {
				got, err := encryption.DecryptAddress(ctx, c, outcome, contract, reader)
				require.NoError(t, err)
				require.Equal(t, tt.winner, got)
			}

			_, err = encryption.DecryptAddress(ctx, c, outcome, contract, common.HexToAddress("0xc"))
			require.ErrorIs(t, err, encryption.ErrUnauthorized)

			require.NoError(t, c.VerifyReveal(outcome, tt.winner))
			require.Error(t, c.VerifyReveal(outcome, common.HexToAddress("0xc")))
		})
	}
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	c := newCoprocessor(t)
	c.SetAvailable(false)

	_, err := c.EncryptMove(context.Background(), contract, alice, match.Rock)
	require.ErrorIs(t, err, encryption.ErrUnavailable)

	c.SetAvailable(true)
	_, err = c.EncryptMove(context.Background(), contract, alice, match.Rock)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.EncryptMove(ctx, contract, alice, match.Rock)
	require.ErrorIs(t, err, encryption.ErrUnavailable)
}
