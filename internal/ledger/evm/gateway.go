// Package evm implements the ledger gateway against the deployed registry
// contract over JSON-RPC.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

var _ ledger.Gateway = (*Gateway)(nil)

// Backend is the node surface the gateway needs; *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Config struct {
	Contract       common.Address
	PrivateKey     *ecdsa.PrivateKey
	ChainID        *big.Int
	FeeBumpPercent uint64
}

type Gateway struct {
	backend  Backend
	abi      abi.ABI
	contract *bind.BoundContract
	address  common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	feeBump  uint64
	closer   func()
}

// Dial connects to rpcURL and binds the registry. A nil ChainID is fetched
// from the node.
func Dial(ctx context.Context, rpcURL string, cfg Config) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	if cfg.ChainID == nil || cfg.ChainID.Sign() == 0 {
		cfg.ChainID, err = client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
	}

	g, err := New(client, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	g.closer = client.Close

	return g, nil
}

func New(backend Backend, cfg Config) (*Gateway, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("evm gateway: private key required")
	}

	if cfg.ChainID == nil {
		return nil, errors.New("evm gateway: chain id required")
	}

	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}

	return &Gateway{
		backend:  backend,
		abi:      parsed,
		contract: bind.NewBoundContract(cfg.Contract, parsed, backend, backend, backend),
		address:  cfg.Contract,
		key:      cfg.PrivateKey,
		from:     crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		chainID:  cfg.ChainID,
		feeBump:  cfg.FeeBumpPercent,
	}, nil
}

func (g *Gateway) Close() {
	if g.closer != nil {
		g.closer()
	}
}

func (g *Gateway) Caller() common.Address {
	return g.from
}

func (g *Gateway) Contract() common.Address {
	return g.address
}

func (g *Gateway) call(ctx context.Context, method string, params ...any) ([]any, error) {
	var out []any

	err := g.contract.Call(&bind.CallOpts{Context: ctx, From: g.from}, &out, method, params...)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, fmt.Errorf("%s: %w", method, &ledger.RevertError{Reason: reason})
		}

		return nil, fmt.Errorf("%s: %w: %w", method, ledger.ErrUnavailable, err)
	}

	return out, nil
}

func (g *Gateway) Status(ctx context.Context, id common.Hash) (match.Status, error) {
	out, err := g.call(ctx, "getStatus", [32]byte(id))
	if err != nil {
		return match.Status{}, err
	}

	fin, err := g.call(ctx, "isFinalized", [32]byte(id))
	if err != nil {
		return match.Status{}, err
	}

	finalized, _ := fin[0].(bool)

	st, err := decodeStatus(id, out, finalized)
	if err != nil {
		return match.Status{}, err
	}

	if st.PlayerA == match.EmptyAddress {
		return match.Status{}, fmt.Errorf("status %s: %w", id.Hex(), ledger.ErrMatchNotFound)
	}

	return st, nil
}

func (g *Gateway) EncryptedOutcome(ctx context.Context, id common.Hash) (common.Hash, error) {
	out, err := g.call(ctx, "getEncryptedOutcome", [32]byte(id))
	if err != nil {
		return common.Hash{}, err
	}

	h, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("getEncryptedOutcome: %w", errUnexpectedOutput)
	}

	// The registry stores a zero handle until resolve has run.
	if h == ([32]byte{}) {
		return common.Hash{}, fmt.Errorf("getEncryptedOutcome %s: not resolved yet: %w", id.Hex(), ledger.ErrInvalidMatchState)
	}

	return common.Hash(h), nil
}

func (g *Gateway) PendingMatchCount(ctx context.Context, mode match.Mode, stake *big.Int) (uint64, error) {
	out, err := g.call(ctx, "getPendingMatchCount", uint8(mode), nonNil(stake))
	if err != nil {
		return 0, err
	}

	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("getPendingMatchCount: %w", errUnexpectedOutput)
	}

	return n.Uint64(), nil
}

func (g *Gateway) PendingMatches(ctx context.Context, mode match.Mode, stake *big.Int, offset, limit uint64) (ledger.Page, error) {
	out, err := g.call(ctx, "getPendingMatches", uint8(mode), nonNil(stake),
		new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit))
	if err != nil {
		return ledger.Page{}, err
	}

	return decodePage(out)
}

func (g *Gateway) Receipt(ctx context.Context, txHash common.Hash) (ledger.Receipt, error) {
	r, err := g.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return ledger.Receipt{}, ledger.ErrReceiptNotFound
		}

		return ledger.Receipt{}, fmt.Errorf("receipt %s: %w: %w", txHash.Hex(), ledger.ErrUnavailable, err)
	}

	out := decodeReceipt(g.abi, r)
	if !out.Succeeded {
		out.RevertReason = g.replayReason(ctx, txHash, r.BlockNumber)
	}

	return out, nil
}

// replayReason re-executes a failed transaction at its block to recover the
// revert string. Failures leave the reason empty.
func (g *Gateway) replayReason(ctx context.Context, txHash common.Hash, block *big.Int) string {
	tx, _, err := g.backend.TransactionByHash(ctx, txHash)
	if err != nil {
		return ""
	}

	from, err := types.Sender(types.LatestSignerForChainID(g.chainID), tx)
	if err != nil {
		return ""
	}

	_, err = g.backend.CallContract(ctx, ethereum.CallMsg{
		From:  from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}, block)
	if err == nil {
		return ""
	}

	reason, _ := revertReason(err)

	return reason
}

func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := g.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w: %w", ledger.ErrUnavailable, err)
	}

	return n, nil
}

func (g *Gateway) Events(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{g.address},
		FromBlock: new(big.Int).SetUint64(filter.FromBlock),
		Topics: [][]common.Hash{
			{g.abi.Events[eventCreated].ID, g.abi.Events[eventJoined].ID},
			nil,
		},
	}

	if filter.ToBlock != nil {
		q.ToBlock = new(big.Int).SetUint64(*filter.ToBlock)
	}

	if filter.Player != nil {
		q.Topics = append(q.Topics, []common.Hash{common.BytesToHash(filter.Player.Bytes())})
	}

	logs, err := g.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w: %w", ledger.ErrUnavailable, err)
	}

	events := make([]ledger.Event, 0, len(logs))
	for _, lg := range logs {
		ev, ok := decodeLog(g.abi, lg)
		if ok {
			events = append(events, ev)
		}
	}

	return events, nil
}

func (g *Gateway) CreateAndCommit(ctx context.Context, p ledger.CreateParams) (common.Hash, error) {
	return g.transact(ctx, match.Value(p.Mode, p.Stake), "createAndCommit",
		[32]byte(p.Commitment.Handle), p.Commitment.Proof, uint8(p.Mode), nonNil(p.Stake), uint64(p.Deadline.Unix()))
}

func (g *Gateway) JoinAndCommit(ctx context.Context, id common.Hash, c match.Commitment, value *big.Int) (common.Hash, error) {
	return g.transact(ctx, value, "joinAndCommit", [32]byte(id), [32]byte(c.Handle), c.Proof)
}

func (g *Gateway) Resolve(ctx context.Context, id common.Hash) (common.Hash, error) {
	return g.transact(ctx, nil, "resolve", [32]byte(id))
}

func (g *Gateway) FinalizeWinner(ctx context.Context, id common.Hash, winner common.Address) (common.Hash, error) {
	return g.transact(ctx, nil, "finalizeWinner", [32]byte(id), winner)
}

func (g *Gateway) Claim(ctx context.Context, id common.Hash) (common.Hash, error) {
	return g.transact(ctx, nil, "claim", [32]byte(id))
}

func (g *Gateway) ExpireCreated(ctx context.Context, id common.Hash) (common.Hash, error) {
	return g.transact(ctx, nil, "expireCreated", [32]byte(id))
}

func (g *Gateway) transact(ctx context.Context, value *big.Int, method string, params ...any) (common.Hash, error) {
	opts, err := g.transactOpts(ctx, value)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s: %w: %w", method, ledger.ErrSubmissionFailed, err)
	}

	tx, err := g.contract.Transact(opts, method, params...)
	if err != nil {
		if reason, ok := revertReason(err); ok && isEstimateFailure(err) {
			return common.Hash{}, fmt.Errorf("%s: %w", method, ledger.SubmissionRejected(reason))
		}

		return common.Hash{}, fmt.Errorf("%s: %w: %w", method, ledger.ErrSubmissionFailed, err)
	}

	return tx.Hash(), nil
}

func (g *Gateway) transactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(g.key, g.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}

	opts.Context = ctx
	opts.Value = nonNil(value)

	head, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("head: %w", err)
	}

	if head.BaseFee == nil {
		price, err := g.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}

		opts.GasPrice = BumpFee(price, g.feeBump)

		return opts, nil
	}

	tip, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}

	opts.GasTipCap, opts.GasFeeCap = feeCaps(tip, head.BaseFee, g.feeBump)

	return opts, nil
}

func isEstimateFailure(err error) bool {
	msg := err.Error()

	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "estimate gas")
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return v
}
