// Package memledger is an in-process match registry with ledger semantics:
// transactions are preflighted on submission, applied one at a time when a
// block is mined, and observable only through receipts and events.
package memledger

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

// DefaultGasFee is 21000 gas at 1 gwei.
var DefaultGasFee = big.NewInt(21_000_000_000_000)

// Coprocessor evaluates encrypted moves on behalf of the registry.
type Coprocessor interface {
	VerifyInput(handle common.Hash, proof []byte, contract, sender common.Address) error
	EvaluateOutcome(contract common.Address, moveA, moveB common.Hash, playerA, playerB common.Address) (common.Hash, error)
	VerifyReveal(outcome common.Hash, winner common.Address) error
}

type Option func(*Chain)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Chain) { c.clock = clock }
}

func WithGasFee(fee *big.Int) Option {
	return func(c *Chain) { c.gasFee = new(big.Int).Set(fee) }
}

func WithOwner(owner common.Address) Option {
	return func(c *Chain) { c.owner = owner }
}

func WithContract(addr common.Address) Option {
	return func(c *Chain) { c.contract = addr }
}

// WithManualMining keeps submitted transactions in the mempool until Mine.
func WithManualMining() Option {
	return func(c *Chain) { c.autoMine = false }
}

type poolKey struct {
	mode  match.Mode
	stake string
}

func keyOf(mode match.Mode, stake *big.Int) poolKey {
	if stake == nil {
		stake = new(big.Int)
	}

	return poolKey{mode: mode, stake: stake.String()}
}

type record struct {
	status  match.Status
	moveA   common.Hash
	moveB   common.Hash
	outcome common.Hash
	claimed map[common.Address]bool
}

type pendingTx struct {
	hash  common.Hash
	from  common.Address
	value *big.Int
	call  call
}

type Chain struct {
	mu sync.Mutex

	clock    clockwork.Clock
	cop      Coprocessor
	contract common.Address
	owner    common.Address
	gasFee   *big.Int
	autoMine bool

	nonce    uint64
	minted   uint64
	head     uint64
	matches  map[common.Hash]*record
	pools    map[poolKey][]common.Hash
	balances map[common.Address]*big.Int
	escrow   *big.Int
	mempool  []*pendingTx
	receipts map[common.Hash]ledger.Receipt
	events   []ledger.Event

	readFaults int
	readsDown  bool
	dropNext   int
}

func New(cop Coprocessor, opts ...Option) *Chain {
	c := &Chain{
		clock:    clockwork.NewRealClock(),
		cop:      cop,
		contract: common.HexToAddress("0x5eA1ed0000000000000000000000000000005105"),
		gasFee:   new(big.Int).Set(DefaultGasFee),
		autoMine: true,
		matches:  make(map[common.Hash]*record),
		pools:    make(map[poolKey][]common.Hash),
		balances: make(map[common.Address]*big.Int),
		escrow:   new(big.Int),
		receipts: make(map[common.Hash]ledger.Receipt),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect returns a gateway that signs as from.
func (c *Chain) Connect(from common.Address) *Client {
	return &Client{chain: c, from: from}
}

func (c *Chain) Contract() common.Address {
	return c.contract
}

func (c *Chain) Owner() common.Address {
	return c.owner
}

func (c *Chain) Clock() clockwork.Clock {
	return c.clock
}

// Fund credits amount to addr.
func (c *Chain) Fund(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balanceOf(addr).Add(c.balanceOf(addr), amount)
}

func (c *Chain) Balance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return new(big.Int).Set(c.balanceOf(addr))
}

// Escrow is the value currently held by the registry.
func (c *Chain) Escrow() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return new(big.Int).Set(c.escrow)
}

func (c *Chain) GasFee() *big.Int {
	return new(big.Int).Set(c.gasFee)
}

// FailReads makes the next n read calls fail with ledger.ErrUnavailable.
func (c *Chain) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readFaults = n
}

// SetReadsAvailable toggles a persistent read outage.
func (c *Chain) SetReadsAvailable(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readsDown = !ok
}

// DropNext makes the next n accepted transactions vanish without a receipt.
func (c *Chain) DropNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropNext = n
}

// Pending is the number of transactions waiting in the mempool.
func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.mempool)
}

// Mine applies every pending transaction in submission order as one block.
func (c *Chain) Mine() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mineLocked()
}

func (c *Chain) mineLocked() uint64 {
	if len(c.mempool) == 0 {
		return c.head
	}

	c.head++
	txs := c.mempool
	c.mempool = nil

	var logIndex uint
	for _, tx := range txs {
		r := c.execute(tx, &logIndex)
		c.receipts[tx.hash] = r
	}

	return c.head
}

func (c *Chain) execute(tx *pendingTx, logIndex *uint) ledger.Receipt {
	r := ledger.Receipt{
		TxHash:      tx.hash,
		BlockNumber: c.head,
		GasCost:     new(big.Int).Set(c.gasFee),
	}

	from := c.balanceOf(tx.from)

	// Funds may have moved since submit; nothing is charged when gas and
	// value can no longer be covered.
	if from.Cmp(new(big.Int).Add(c.gasFee, tx.value)) < 0 {
		r.RevertReason = ledger.ReasonInsufficientFunds
		r.GasCost = new(big.Int)

		return r
	}

	from.Sub(from, c.gasFee)

	apply, reason := tx.call(c, tx.from, tx.value)
	if reason != "" {
		r.RevertReason = reason
		return r
	}

	events, reason := apply()
	if reason != "" {
		r.RevertReason = reason
		return r
	}

	from.Sub(from, tx.value)
	c.escrow.Add(c.escrow, tx.value)

	for _, ev := range events {
		ev.BlockNumber = c.head
		ev.TxHash = tx.hash
		ev.LogIndex = *logIndex
		*logIndex++

		r.Events = append(r.Events, ev)
		c.events = append(c.events, ev)
	}

	r.Succeeded = true

	return r
}

// submit preflights call against current state, then queues it.
func (c *Chain) submit(from common.Address, value *big.Int, fn call) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	need := new(big.Int).Add(value, c.gasFee)
	if c.balanceOf(from).Cmp(need) < 0 {
		return common.Hash{}, ledger.SubmissionRejected(ledger.ReasonInsufficientFunds)
	}

	_, reason := fn(c, from, value)
	if reason != "" {
		return common.Hash{}, ledger.SubmissionRejected(reason)
	}

	c.nonce++
	hash := c.hash("tx", from.Bytes(), c.nonceBytes())

	if c.dropNext > 0 {
		c.dropNext--
		return hash, nil
	}

	c.mempool = append(c.mempool, &pendingTx{hash: hash, from: from, value: new(big.Int).Set(value), call: fn})

	if c.autoMine {
		c.mineLocked()
	}

	return hash, nil
}

func (c *Chain) read() error {
	if c.readsDown {
		return fmt.Errorf("read: %w", ledger.ErrUnavailable)
	}

	if c.readFaults > 0 {
		c.readFaults--
		return fmt.Errorf("read: %w", ledger.ErrUnavailable)
	}

	return nil
}

func (c *Chain) balanceOf(addr common.Address) *big.Int {
	b, ok := c.balances[addr]
	if !ok {
		b = new(big.Int)
		c.balances[addr] = b
	}

	return b
}

func (c *Chain) pay(to common.Address, amount *big.Int) {
	c.escrow.Sub(c.escrow, amount)
	c.balanceOf(to).Add(c.balanceOf(to), amount)
}

func (c *Chain) nonceBytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], c.nonce)

	return b[:]
}

func (c *Chain) hash(domain string, parts ...[]byte) common.Hash {
	data := append([][]byte{[]byte(domain), c.contract.Bytes()}, parts...)

	return crypto.Keccak256Hash(data...)
}

func (c *Chain) removeFromPool(key poolKey, id common.Hash) {
	ids := c.pools[key]
	for i, v := range ids {
		if v == id {
			c.pools[key] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}
