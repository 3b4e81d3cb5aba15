package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnavailable       = errors.New("ledger unavailable")
	ErrSubmissionFailed  = errors.New("transaction submission failed")
	ErrUnconfirmed       = errors.New("transaction unconfirmed")
	ErrInvalidMatchState = errors.New("invalid match state")
	ErrReceiptNotFound   = errors.New("receipt not found")
	ErrMatchNotFound     = errors.New("match not found")
)

// ErrAlreadyClaimed is a more specific ErrInvalidMatchState.
var ErrAlreadyClaimed = fmt.Errorf("%w: already claimed", ErrInvalidMatchState)

// Revert reasons emitted by the registry.
const (
	ReasonUnknownMatch      = "unknown match"
	ReasonNotCreated        = "not created"
	ReasonSelfJoin          = "self join"
	ReasonDeadlinePassed    = "deadline passed"
	ReasonDeadlineNotPassed = "deadline not passed"
	ReasonBadDeadline       = "bad deadline"
	ReasonStakeMismatch     = "stake mismatch"
	ReasonBadStake          = "bad stake"
	ReasonBadMode           = "bad mode"
	ReasonInvalidProof      = "invalid proof"
	ReasonNotLocked         = "not locked"
	ReasonNotResolved       = "not resolved"
	ReasonAlreadyFinalized  = "already finalized"
	ReasonBadWinner         = "bad winner"
	ReasonNotAuthorized     = "not authorized"
	ReasonNotPlayerA        = "not playerA"
	ReasonHasPlayerB        = "has playerB"
	ReasonNotClaimable      = "not claimable"
	ReasonAlreadyClaimed    = "already claimed"
	ReasonInsufficientFunds = "insufficient funds"
)

// RevertError is a transaction rejected by a registry guard, either during
// preflight or after mining.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}

	return "execution reverted: " + e.Reason
}

func (e *RevertError) Unwrap() error {
	return ClassifyRevert(e.Reason)
}

// ClassifyRevert maps a revert reason onto the error taxonomy.
func ClassifyRevert(reason string) error {
	switch strings.TrimSpace(strings.ToLower(reason)) {
	case ReasonAlreadyClaimed:
		return ErrAlreadyClaimed
	default:
		return ErrInvalidMatchState
	}
}

// OpError carries the operation context of a failed lifecycle step.
type OpError struct {
	Op      string
	MatchID common.Hash
	TxHash  common.Hash
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder

	b.WriteString(e.Op)
	if e.MatchID != (common.Hash{}) {
		b.WriteString(" match ")
		b.WriteString(e.MatchID.Hex())
	}
	if e.TxHash != (common.Hash{}) {
		b.WriteString(" tx ")
		b.WriteString(e.TxHash.Hex())
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())

	return b.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// SubmissionRejected builds the error returned when a guard fails before
// broadcast. It satisfies both ErrSubmissionFailed and the revert taxonomy.
func SubmissionRejected(reason string) error {
	return fmt.Errorf("%w: %w", ErrSubmissionFailed, &RevertError{Reason: reason})
}
