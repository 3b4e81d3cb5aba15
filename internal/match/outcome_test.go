package match

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b Move
		want Result
	}{
		{Rock, Rock, ResultDraw},
		{Paper, Paper, ResultDraw},
		{Scissors, Scissors, ResultDraw},
		{Rock, Scissors, ResultAWins},
		{Scissors, Paper, ResultAWins},
		{Paper, Rock, ResultAWins},
		{Scissors, Rock, ResultBWins},
		{Paper, Scissors, ResultBWins},
		{Rock, Paper, ResultBWins},
	}

	for _, tt := range tests {
		got := Decide(tt.a, tt.b)
		if got != tt.want {
			t.Fatalf("%s vs %s: got %d, want %d", tt.a, tt.b, got, tt.want)
		}

		// swapping sides must mirror the result
		if Decide(tt.b, tt.a) != -got {
			t.Fatalf("%s vs %s: result not antisymmetric", tt.a, tt.b)
		}
	}
}

func TestWinnerAddress(t *testing.T) {
	t.Parallel()

	a := common.HexToAddress("0xa")
	b := common.HexToAddress("0xb")

	if WinnerAddress(ResultAWins, a, b) != a {
		t.Fatal("expected player A")
	}
	if WinnerAddress(ResultBWins, a, b) != b {
		t.Fatal("expected player B")
	}
	if WinnerAddress(ResultDraw, a, b) != EmptyAddress {
		t.Fatal("draw must yield the empty address")
	}
}
