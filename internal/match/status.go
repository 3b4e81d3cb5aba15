package match

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvariant = errors.New("match invariant violated")

// Status is the registry's view of one match.
type Status struct {
	ID        common.Hash
	State     State
	PlayerA   common.Address
	PlayerB   common.Address
	Stake     *big.Int
	Deadline  time.Time
	Mode      Mode
	Winner    common.Address
	Finalized bool
}

func (s Status) Stage() Stage {
	return Stage{State: s.State, Finalized: s.Finalized}
}

// Joinable is the matching validity predicate, evaluated against a freshly
// read status immediately before acting on a pool entry.
func (s Status) Joinable(caller common.Address, now time.Time) bool {
	return s.State == StateCreated &&
		s.Deadline.After(now) &&
		s.PlayerB == EmptyAddress &&
		s.PlayerA != caller
}

// Expirable mirrors the registry guard of expireCreated.
func (s Status) Expirable(caller common.Address, now time.Time) bool {
	return s.State == StateCreated &&
		now.After(s.Deadline) &&
		s.PlayerB == EmptyAddress &&
		s.PlayerA == caller
}

// Outcome derives the settlement outcome from a status.
func (s Status) Outcome() Outcome {
	switch {
	case s.State == StateExpired:
		return OutcomeRefund
	case s.State != StateResolved || !s.Finalized:
		return OutcomePending
	case s.Winner == EmptyAddress:
		return OutcomeDraw
	default:
		return OutcomeWinner
	}
}

// Participant reports whether addr is one of the two players.
func (s Status) Participant(addr common.Address) bool {
	if addr == EmptyAddress {
		return false
	}

	return addr == s.PlayerA || addr == s.PlayerB
}

// ClaimableBy lists the parties the registry would pay, ignoring whether
// they already claimed.
func (s Status) ClaimableBy() []common.Address {
	switch s.Outcome() {
	case OutcomeWinner:
		return []common.Address{s.Winner}
	case OutcomeDraw:
		return []common.Address{s.PlayerA, s.PlayerB}
	case OutcomeRefund:
		return []common.Address{s.PlayerA}
	default:
		return nil
	}
}

// Validate checks the data-model invariants.
func (s Status) Validate() error {
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %d", ErrInvariant, uint8(s.State))
	}

	if !s.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %d", ErrInvariant, uint8(s.Mode))
	}

	if s.PlayerB != EmptyAddress && s.PlayerA == s.PlayerB {
		return fmt.Errorf("%w: playerA == playerB", ErrInvariant)
	}

	err := ValidateStake(s.Mode, s.Stake)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}

	return nil
}

// ValidateStake enforces stake == 0 iff mode == PRACTICE.
func ValidateStake(mode Mode, stake *big.Int) error {
	zero := stake == nil || stake.Sign() == 0

	switch mode {
	case ModePractice:
		if !zero {
			return fmt.Errorf("practice match must have zero stake")
		}
	case ModeWager:
		if zero || stake.Sign() < 0 {
			return fmt.Errorf("wager match needs a positive stake")
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMode, uint8(mode))
	}

	return nil
}

// Value is the native value a create or join transaction must carry.
func Value(mode Mode, stake *big.Int) *big.Int {
	if mode != ModeWager || stake == nil {
		return new(big.Int)
	}

	return new(big.Int).Set(stake)
}
