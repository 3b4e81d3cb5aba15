package match

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrBackwardTransition = errors.New("backward state transition")
)

// State values mirror the registry's on-chain enum ordering.
type State uint8

const (
	StateCreated  State = 0
	StateJoined   State = 1 // transient, never observed at rest
	StateLocked   State = 2
	StateResolved State = 3
	StateExpired  State = 4
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateJoined:
		return "joined"
	case StateLocked:
		return "locked"
	case StateResolved:
		return "resolved"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

func (s State) Valid() bool {
	return s <= StateExpired
}

// Terminal reports whether no further state change is possible.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateExpired
}

// OutcomeReadable reports whether the encrypted outcome handle may be read.
func (s State) OutcomeReadable() bool {
	return s == StateLocked || s == StateResolved
}

type Trigger uint8

const (
	TriggerCreate Trigger = iota
	TriggerJoin
	TriggerResolve
	TriggerFinalize
	TriggerExpire
)

func (t Trigger) String() string {
	switch t {
	case TriggerCreate:
		return "createAndCommit"
	case TriggerJoin:
		return "joinAndCommit"
	case TriggerResolve:
		return "resolve"
	case TriggerFinalize:
		return "finalizeWinner"
	case TriggerExpire:
		return "expireCreated"
	default:
		return fmt.Sprintf("trigger(%d)", uint8(t))
	}
}

// Stage is a position in the linear lifecycle. RESOLVED is split into
// outcome-pending and winner-set so finalize is also a forward step.
type Stage struct {
	State     State
	Finalized bool
}

func (s Stage) rank() int {
	switch s.State {
	case StateCreated:
		return 0
	case StateJoined:
		return 1
	case StateLocked:
		return 2
	case StateResolved:
		if s.Finalized {
			return 4
		}

		return 3
	case StateExpired:
		return 5
	default:
		return -1
	}
}

// Next applies t to s and returns the resulting stage. Guards that depend
// on callers, stakes or time are checked by the registry, not here.
func Next(s Stage, exists bool, t Trigger) (Stage, error) {
	if !exists {
		if t == TriggerCreate {
			return Stage{State: StateCreated}, nil
		}

		return s, fmt.Errorf("%w: %s on missing match", ErrIllegalTransition, t)
	}

	var to Stage

	switch t {
	case TriggerCreate:
		return s, fmt.Errorf("%w: match already exists", ErrIllegalTransition)
	case TriggerJoin:
		if s.State != StateCreated {
			return s, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, t, s.State)
		}
		// JOINED collapses into LOCKED within the same transaction.
		to = Stage{State: StateLocked}
	case TriggerResolve:
		if s.State != StateLocked {
			return s, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, t, s.State)
		}

		to = Stage{State: StateResolved}
	case TriggerFinalize:
		if s.State != StateResolved || s.Finalized {
			return s, fmt.Errorf("%w: %s from %s (finalized=%t)", ErrIllegalTransition, t, s.State, s.Finalized)
		}

		to = Stage{State: StateResolved, Finalized: true}
	case TriggerExpire:
		if s.State != StateCreated {
			return s, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, t, s.State)
		}

		to = Stage{State: StateExpired}
	default:
		return s, fmt.Errorf("%w: unknown trigger %d", ErrIllegalTransition, uint8(t))
	}

	err := Advance(s, to)
	if err != nil {
		return s, err
	}

	return to, nil
}

// Advance rejects any move that does not strictly progress the lifecycle.
func Advance(from, to Stage) error {
	if to.rank() < 0 || from.rank() < 0 {
		return fmt.Errorf("%w: unknown state", ErrIllegalTransition)
	}

	if to.rank() <= from.rank() {
		return fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, from.State, to.State)
	}

	// EXPIRED is only reachable from CREATED.
	if to.State == StateExpired && from.State != StateCreated {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from.State, to.State)
	}

	return nil
}
