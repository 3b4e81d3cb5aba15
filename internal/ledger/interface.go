package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/match"
)

type EventKind string

const (
	EventCreated EventKind = "created"
	EventJoined  EventKind = "joined"
)

// Event is a match creation or join log entry.
type Event struct {
	Kind        EventKind
	MatchID     common.Hash
	Player      common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

type EventFilter struct {
	Player    *common.Address // nil matches every player
	FromBlock uint64
	ToBlock   *uint64 // nil means head
}

type Receipt struct {
	TxHash       common.Hash
	BlockNumber  uint64
	Succeeded    bool
	RevertReason string
	Events       []Event
	GasCost      *big.Int
}

// Page is one window of the pending-match pool, oldest first.
type Page struct {
	IDs   []common.Hash
	Total uint64
}

type CreateParams struct {
	Commitment match.Commitment
	Mode       match.Mode
	Stake      *big.Int
	Deadline   time.Time
}

// Reader exposes the registry's read-only calls.
type Reader interface {
	Status(ctx context.Context, id common.Hash) (match.Status, error)
	EncryptedOutcome(ctx context.Context, id common.Hash) (common.Hash, error)
	PendingMatchCount(ctx context.Context, mode match.Mode, stake *big.Int) (uint64, error)
	PendingMatches(ctx context.Context, mode match.Mode, stake *big.Int, offset, limit uint64) (Page, error)
	// Receipt returns ErrReceiptNotFound until the transaction is mined.
	Receipt(ctx context.Context, txHash common.Hash) (Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Events(ctx context.Context, filter EventFilter) ([]Event, error)
}

// Submitter signs and broadcasts registry calls on behalf of one identity.
// Every method returns once the transaction is accepted for inclusion; use
// Reader.Receipt to learn its fate.
type Submitter interface {
	Caller() common.Address
	Contract() common.Address
	CreateAndCommit(ctx context.Context, params CreateParams) (common.Hash, error)
	JoinAndCommit(ctx context.Context, id common.Hash, commitment match.Commitment, value *big.Int) (common.Hash, error)
	Resolve(ctx context.Context, id common.Hash) (common.Hash, error)
	FinalizeWinner(ctx context.Context, id common.Hash, winner common.Address) (common.Hash, error)
	Claim(ctx context.Context, id common.Hash) (common.Hash, error)
	ExpireCreated(ctx context.Context, id common.Hash) (common.Hash, error)
}

type Gateway interface {
	Reader
	Submitter
}

// CreatedMatchID returns the id minted by the registry in a create receipt.
func CreatedMatchID(r Receipt) (common.Hash, bool) {
	for _, ev := range r.Events {
		if ev.Kind == EventCreated {
			return ev.MatchID, true
		}
	}

	return common.Hash{}, false
}
