package memledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

var _ ledger.Gateway = (*Client)(nil)

// Client is one identity's view of the chain.
type Client struct {
	chain *Chain
	from  common.Address
}

func (cl *Client) Caller() common.Address {
	return cl.from
}

func (cl *Client) Contract() common.Address {
	return cl.chain.contract
}

func (cl *Client) Status(ctx context.Context, id common.Hash) (match.Status, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return match.Status{}, err
	}

	rec, ok := c.matches[id]
	if !ok {
		return match.Status{}, fmt.Errorf("status %s: %w", id.Hex(), ledger.ErrMatchNotFound)
	}

	st := rec.status
	st.Stake = new(big.Int).Set(rec.status.Stake)

	return st, nil
}

func (cl *Client) EncryptedOutcome(ctx context.Context, id common.Hash) (common.Hash, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return common.Hash{}, err
	}

	rec, ok := c.matches[id]
	if !ok {
		return common.Hash{}, fmt.Errorf("encrypted outcome %s: %w", id.Hex(), ledger.ErrMatchNotFound)
	}

	if !rec.status.State.OutcomeReadable() {
		return common.Hash{}, fmt.Errorf("encrypted outcome %s in state %s: %w", id.Hex(), rec.status.State, ledger.ErrInvalidMatchState)
	}

	if rec.outcome == (common.Hash{}) {
		return common.Hash{}, fmt.Errorf("encrypted outcome %s: not resolved yet: %w", id.Hex(), ledger.ErrInvalidMatchState)
	}

	return rec.outcome, nil
}

func (cl *Client) PendingMatchCount(ctx context.Context, mode match.Mode, stake *big.Int) (uint64, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return 0, err
	}

	return uint64(len(c.pools[keyOf(mode, stake)])), nil
}

func (cl *Client) PendingMatches(ctx context.Context, mode match.Mode, stake *big.Int, offset, limit uint64) (ledger.Page, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return ledger.Page{}, err
	}

	ids := c.pools[keyOf(mode, stake)]
	total := uint64(len(ids))

	page := ledger.Page{Total: total, IDs: []common.Hash{}}
	if offset >= total {
		return page, nil
	}

	end := min(offset+limit, total)
	page.IDs = append(page.IDs, ids[offset:end]...)

	return page, nil
}

func (cl *Client) Receipt(ctx context.Context, txHash common.Hash) (ledger.Receipt, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return ledger.Receipt{}, err
	}

	r, ok := c.receipts[txHash]
	if !ok {
		return ledger.Receipt{}, ledger.ErrReceiptNotFound
	}

	r.Events = append([]ledger.Event(nil), r.Events...)

	return r, nil
}

func (cl *Client) BlockNumber(ctx context.Context) (uint64, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return 0, err
	}

	return c.head, nil
}

func (cl *Client) Events(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	c := cl.chain

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.read()
	if err != nil {
		return nil, err
	}

	var out []ledger.Event

	for _, ev := range c.events {
		if ev.BlockNumber < filter.FromBlock {
			continue
		}
		if filter.ToBlock != nil && ev.BlockNumber > *filter.ToBlock {
			continue
		}
		if filter.Player != nil && ev.Player != *filter.Player {
			continue
		}

		out = append(out, ev)
	}

	return out, nil
}

func (cl *Client) CreateAndCommit(ctx context.Context, params ledger.CreateParams) (common.Hash, error) {
	return cl.chain.submit(cl.from, match.Value(params.Mode, params.Stake), createAndCommit(params))
}

func (cl *Client) JoinAndCommit(ctx context.Context, id common.Hash, commitment match.Commitment, value *big.Int) (common.Hash, error) {
	return cl.chain.submit(cl.from, value, joinAndCommit(id, commitment))
}

func (cl *Client) Resolve(ctx context.Context, id common.Hash) (common.Hash, error) {
	return cl.chain.submit(cl.from, nil, resolve(id))
}

func (cl *Client) FinalizeWinner(ctx context.Context, id common.Hash, winner common.Address) (common.Hash, error) {
	return cl.chain.submit(cl.from, nil, finalizeWinner(id, winner))
}

func (cl *Client) Claim(ctx context.Context, id common.Hash) (common.Hash, error) {
	return cl.chain.submit(cl.from, nil, claim(id))
}

func (cl *Client) ExpireCreated(ctx context.Context, id common.Hash) (common.Hash, error) {
	return cl.chain.submit(cl.from, nil, expireCreated(id))
}
