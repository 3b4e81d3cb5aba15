package match

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidMode = errors.New("invalid mode")
	ErrInvalidMove = errors.New("invalid move")
)

// EmptyAddress marks an unset player or an unresolved/drawn winner.
var EmptyAddress = common.Address{}

type Mode uint8

const (
	ModePractice Mode = 0 // stake-free
	ModeWager    Mode = 1
)

func (m Mode) Valid() bool {
	return m == ModePractice || m == ModeWager
}

func (m Mode) String() string {
	switch m {
	case ModePractice:
		return "practice"
	case ModeWager:
		return "wager"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "practice", "0":
		return ModePractice, nil
	case "wager", "1":
		return ModeWager, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

type Move uint8

const (
	Rock     Move = 0
	Paper    Move = 1
	Scissors Move = 2
)

func (m Move) Valid() bool {
	return m <= Scissors
}

func (m Move) String() string {
	switch m {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return fmt.Sprintf("move(%d)", uint8(m))
	}
}

func ParseMove(s string) (Move, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rock", "r", "0":
		return Rock, nil
	case "paper", "p", "1":
		return Paper, nil
	case "scissors", "s", "2":
		return Scissors, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
}

// Commitment is an encrypted move bound to one registry contract and sender.
type Commitment struct {
	Handle common.Hash
	Proof  []byte
}

// ParseID accepts a 0x-prefixed 32-byte hex match identifier.
func ParseID(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid match id %q", s)
	}

	for _, c := range raw {
		isHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		if !isHex {
			return common.Hash{}, fmt.Errorf("invalid match id %q", s)
		}
	}

	return common.HexToHash(raw), nil
}
