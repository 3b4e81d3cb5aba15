package match

import "github.com/ethereum/go-ethereum/common"

type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeWinner
	OutcomeDraw
	OutcomeRefund
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWinner:
		return "winner"
	case OutcomeDraw:
		return "draw"
	case OutcomeRefund:
		return "refund"
	default:
		return "pending"
	}
}

// Result of one round from player A's point of view.
type Result int8

const (
	ResultDraw  Result = 0
	ResultAWins Result = 1
	ResultBWins Result = -1
)

// beats[m] is the move that m defeats.
var beats = [...]Move{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// Decide applies rock/paper/scissors precedence. Both moves must be valid.
func Decide(a, b Move) Result {
	switch {
	case a == b:
		return ResultDraw
	case beats[a] == b:
		return ResultAWins
	default:
		return ResultBWins
	}
}

// WinnerAddress maps a result onto the players; a draw yields EmptyAddress.
func WinnerAddress(r Result, playerA, playerB common.Address) common.Address {
	switch r {
	case ResultAWins:
		return playerA
	case ResultBWins:
		return playerB
	default:
		return EmptyAddress
	}
}
