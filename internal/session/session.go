// Package session wires one playing identity: its ledger gateway, the
// encryption service and the matching and lifecycle services built on them.
package session

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/fastprodman/sealedrps/internal/config"
	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/encryption/relayer"
	"github.com/fastprodman/sealedrps/internal/encryption/sealed"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/ledger/evm"
	"github.com/fastprodman/sealedrps/internal/ledger/memledger"
	"github.com/fastprodman/sealedrps/internal/services/history"
	"github.com/fastprodman/sealedrps/internal/services/lifecycle"
	"github.com/fastprodman/sealedrps/internal/services/matching"
	"github.com/fastprodman/sealedrps/internal/txwait"
	"github.com/fastprodman/sealedrps/pkg/amount"
)

type Config struct {
	Ledger     config.LedgerConfig
	Encryption config.EncryptionConfig
	Polling    txwait.Config
	Matching   matching.Config
	Lifecycle  lifecycle.Config
}

type Session struct {
	Gateway    ledger.Gateway
	Encryption encryption.Service
	Waiter     *txwait.Waiter
	Engine     *matching.Engine
	Lifecycle  *lifecycle.Controller

	// Chain is set for the memory driver only.
	Chain *memledger.Chain

	lookback uint64
	closer   func()
}

// Open builds the session described by cfg. The memory ledger needs the
// sealed coprocessor, since it evaluates outcomes in-process; the evm ledger
// needs the relayer.
func Open(ctx context.Context, cfg Config, clock clockwork.Clock, logger *slog.Logger, registry gometrics.Registry) (*Session, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	err := cfg.Ledger.Validate()
	if err != nil {
		return nil, err
	}

	err = cfg.Encryption.Validate()
	if err != nil {
		return nil, err
	}

	key, err := cfg.Ledger.Key()
	if err != nil {
		return nil, err
	}

	s := &Session{lookback: cfg.Ledger.HistoryLookback, closer: func() {}}

	switch cfg.Ledger.Driver {
	case config.LedgerMemory:
		err = s.openMemory(cfg, key, clock)
	default:
		err = s.openEVM(ctx, cfg, key)
	}

	if err != nil {
		return nil, err
	}

	s.Waiter = txwait.New(s.Gateway, clock, cfg.Polling, logger)
	s.Engine = matching.New(s.Gateway, s.Encryption, s.Waiter, cfg.Matching,
		matching.WithClock(clock), matching.WithLogger(logger), matching.WithMetrics(registry))

	s.Lifecycle, err = lifecycle.New(s.Gateway, s.Encryption, s.Waiter, cfg.Lifecycle,
		lifecycle.WithClock(clock), lifecycle.WithLogger(logger), lifecycle.WithMetrics(registry))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("init lifecycle: %w", err)
	}

	logger.InfoContext(ctx, "session opened",
		"caller", s.Gateway.Caller().Hex(),
		"contract", s.Gateway.Contract().Hex(),
		"ledger", cfg.Ledger.Driver,
		"encryption", cfg.Encryption.Driver,
	)

	return s, nil
}

func (s *Session) openMemory(cfg Config, key *ecdsa.PrivateKey, clock clockwork.Clock) error {
	if cfg.Encryption.Driver != config.EncryptionSealed {
		return fmt.Errorf("%w: the memory ledger requires the sealed encryption driver", config.ErrInvalidConfig)
	}

	cop, err := newSealed(cfg.Encryption)
	if err != nil {
		return err
	}

	funds, err := amount.ParseETH(cfg.Ledger.DevFunds)
	if err != nil {
		return fmt.Errorf("%w: LEDGER_DEV_FUNDS: %w", config.ErrInvalidConfig, err)
	}

	opts := []memledger.Option{memledger.WithClock(clock)}
	if common.IsHexAddress(cfg.Ledger.Contract) {
		opts = append(opts, memledger.WithContract(cfg.Ledger.ContractAddress()))
	}

	caller := crypto.PubkeyToAddress(key.PublicKey)

	s.Chain = memledger.New(cop, opts...)
	s.Chain.Fund(caller, funds)
	s.Gateway = s.Chain.Connect(caller)
	s.Encryption = cop

	return nil
}

func (s *Session) openEVM(ctx context.Context, cfg Config, key *ecdsa.PrivateKey) error {
	if cfg.Encryption.Driver != config.EncryptionRelayer {
		return fmt.Errorf("%w: the evm ledger requires the relayer encryption driver", config.ErrInvalidConfig)
	}

	gw, err := evm.Dial(ctx, cfg.Ledger.RPCURL, evm.Config{
		Contract:       cfg.Ledger.ContractAddress(),
		PrivateKey:     key,
		ChainID:        cfg.Ledger.ChainIDBig(),
		FeeBumpPercent: cfg.Ledger.FeeBumpPercent,
	})
	if err != nil {
		return fmt.Errorf("open evm gateway: %w", err)
	}

	s.Gateway = gw
	s.Encryption = relayer.New(cfg.Encryption.RelayerURL, cfg.Encryption.Timeout)
	s.closer = gw.Close

	return nil
}

func newSealed(cfg config.EncryptionConfig) (*sealed.Coprocessor, error) {
	secret, err := cfg.SealedSecret()
	if err != nil {
		return nil, err
	}

	cop, err := sealed.New(secret)
	if err != nil {
		return nil, fmt.Errorf("init sealed coprocessor: %w", err)
	}

	return cop, nil
}

func (s *Session) Caller() common.Address {
	return s.Gateway.Caller()
}

// LedgerHistory reads creation and join events straight from the ledger
// over the configured lookback window.
func (s *Session) LedgerHistory() history.LedgerSource {
	return history.LedgerSource{Reader: s.Gateway, Lookback: s.lookback}
}

func (s *Session) Close() {
	s.closer()
}
