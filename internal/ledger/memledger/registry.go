package memledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

// call evaluates a transaction's guards against current state. On success it
// returns the state change; apply may still revert before mutating anything.
type call func(c *Chain, from common.Address, value *big.Int) (apply func() ([]ledger.Event, string), reason string)

func createAndCommit(p ledger.CreateParams) call {
	return func(c *Chain, from common.Address, value *big.Int) (func() ([]ledger.Event, string), string) {
		if !p.Mode.Valid() {
			return nil, ledger.ReasonBadMode
		}

		if match.ValidateStake(p.Mode, p.Stake) != nil {
			return nil, ledger.ReasonBadStake
		}

		if value.Cmp(match.Value(p.Mode, p.Stake)) != 0 {
			return nil, ledger.ReasonStakeMismatch
		}

		deadline := p.Deadline.Truncate(time.Second)
		if !deadline.After(c.clock.Now()) {
			return nil, ledger.ReasonBadDeadline
		}

		if c.cop.VerifyInput(p.Commitment.Handle, p.Commitment.Proof, c.contract, from) != nil {
			return nil, ledger.ReasonInvalidProof
		}

		return func() ([]ledger.Event, string) {
			c.minted++
			id := c.hash("match", from.Bytes(), new(big.Int).SetUint64(c.minted).Bytes())
			stake := new(big.Int)
			if p.Stake != nil {
				stake.Set(p.Stake)
			}

			c.matches[id] = &record{
				status: match.Status{
					ID:       id,
					State:    match.StateCreated,
					PlayerA:  from,
					Stake:    stake,
					Deadline: deadline,
					Mode:     p.Mode,
				},
				moveA:   p.Commitment.Handle,
				claimed: make(map[common.Address]bool),
			}

			key := keyOf(p.Mode, stake)
			c.pools[key] = append(c.pools[key], id)

			return []ledger.Event{{Kind: ledger.EventCreated, MatchID: id, Player: from}}, ""
		}, ""
	}
}

func joinAndCommit(id common.Hash, commit match.Commitment) call {
	return func(c *Chain, from common.Address, value *big.Int) (func() ([]ledger.Event, string), string) {
		rec, ok := c.matches[id]
		if !ok {
			return nil, ledger.ReasonUnknownMatch
		}

		st := rec.status

		if st.State != match.StateCreated {
			return nil, ledger.ReasonNotCreated
		}

		if st.PlayerA == from {
			return nil, ledger.ReasonSelfJoin
		}

		if c.clock.Now().After(st.Deadline) {
			return nil, ledger.ReasonDeadlinePassed
		}

		if value.Cmp(match.Value(st.Mode, st.Stake)) != 0 {
			return nil, ledger.ReasonStakeMismatch
		}

		if c.cop.VerifyInput(commit.Handle, commit.Proof, c.contract, from) != nil {
			return nil, ledger.ReasonInvalidProof
		}

		return func() ([]ledger.Event, string) {
			next, err := match.Next(st.Stage(), true, match.TriggerJoin)
			if err != nil {
				return nil, ledger.ReasonNotCreated
			}

			rec.status.PlayerB = from
			rec.status.State = next.State
			rec.moveB = commit.Handle
			c.removeFromPool(keyOf(st.Mode, st.Stake), id)

			return []ledger.Event{{Kind: ledger.EventJoined, MatchID: id, Player: from}}, ""
		}, ""
	}
}

func resolve(id common.Hash) call {
	return func(c *Chain, _ common.Address, _ *big.Int) (func() ([]ledger.Event, string), string) {
		rec, ok := c.matches[id]
		if !ok {
			return nil, ledger.ReasonUnknownMatch
		}

		next, err := match.Next(rec.status.Stage(), true, match.TriggerResolve)
		if err != nil {
			return nil, ledger.ReasonNotLocked
		}

		return func() ([]ledger.Event, string) {
			st := rec.status

			outcome, err := c.cop.EvaluateOutcome(c.contract, rec.moveA, rec.moveB, st.PlayerA, st.PlayerB)
			if err != nil {
				return nil, ledger.ReasonInvalidProof
			}

			rec.outcome = outcome
			rec.status.State = next.State

			return nil, ""
		}, ""
	}
}

func finalizeWinner(id common.Hash, winner common.Address) call {
	return func(c *Chain, from common.Address, _ *big.Int) (func() ([]ledger.Event, string), string) {
		rec, ok := c.matches[id]
		if !ok {
			return nil, ledger.ReasonUnknownMatch
		}

		st := rec.status

		next, err := match.Next(st.Stage(), true, match.TriggerFinalize)
		if err != nil {
			if st.Finalized {
				return nil, ledger.ReasonAlreadyFinalized
			}

			return nil, ledger.ReasonNotResolved
		}

		if !st.Participant(from) && from != c.owner {
			return nil, ledger.ReasonNotAuthorized
		}

		if winner != match.EmptyAddress && !st.Participant(winner) {
			return nil, ledger.ReasonBadWinner
		}

		if c.cop.VerifyReveal(rec.outcome, winner) != nil {
			return nil, ledger.ReasonBadWinner
		}

		return func() ([]ledger.Event, string) {
			rec.status.Winner = winner
			rec.status.Finalized = next.Finalized

			return nil, ""
		}, ""
	}
}

func claim(id common.Hash) call {
	return func(c *Chain, from common.Address, _ *big.Int) (func() ([]ledger.Event, string), string) {
		rec, ok := c.matches[id]
		if !ok {
			return nil, ledger.ReasonUnknownMatch
		}

		st := rec.status

		var payout *big.Int

		switch st.Outcome() {
		case match.OutcomeWinner:
			if from != st.Winner {
				return nil, ledger.ReasonNotAuthorized
			}

			payout = new(big.Int).Mul(st.Stake, big.NewInt(2))
		case match.OutcomeDraw, match.OutcomeRefund:
			if !st.Participant(from) {
				return nil, ledger.ReasonNotAuthorized
			}

			payout = new(big.Int).Set(st.Stake)
		default:
			return nil, ledger.ReasonNotClaimable
		}

		if rec.claimed[from] {
			return nil, ledger.ReasonAlreadyClaimed
		}

		return func() ([]ledger.Event, string) {
			rec.claimed[from] = true
			c.pay(from, payout)

			return nil, ""
		}, ""
	}
}

func expireCreated(id common.Hash) call {
	return func(c *Chain, from common.Address, _ *big.Int) (func() ([]ledger.Event, string), string) {
		rec, ok := c.matches[id]
		if !ok {
			return nil, ledger.ReasonUnknownMatch
		}

		st := rec.status

		next, err := match.Next(st.Stage(), true, match.TriggerExpire)
		if err != nil {
			return nil, ledger.ReasonNotCreated
		}

		if st.PlayerA != from {
			return nil, ledger.ReasonNotPlayerA
		}

		if st.PlayerB != match.EmptyAddress {
			return nil, ledger.ReasonHasPlayerB
		}

		if !c.clock.Now().After(st.Deadline) {
			return nil, ledger.ReasonDeadlineNotPassed
		}

		return func() ([]ledger.Event, string) {
			rec.status.State = next.State
			c.removeFromPool(keyOf(st.Mode, st.Stake), id)

			return nil, ""
		}, ""
	}
}
