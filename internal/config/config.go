// Package config holds the environment-bound settings shared by the binaries.
package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	LedgerMemory = "memory"
	LedgerEVM    = "evm"

	EncryptionSealed  = "sealed"
	EncryptionRelayer = "relayer"
)

var ErrInvalidConfig = errors.New("invalid config")

// PostgresConfig is optional; with an empty DSN the indexer is disabled and
// history is read from the ledger.
type PostgresConfig struct {
	DSN             string        `env:"PG_DSN" default:""`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"5"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m"`
}

func (c PostgresConfig) Enabled() bool {
	return c.DSN != ""
}

type LogConfig struct {
	Level      slog.Level `env:"APP_LOG_LEVEL" default:"INFO"`
	File       string     `env:"LOG_FILE" default:""`
	MaxSizeMB  int        `env:"LOG_MAX_SIZE_MB" default:"100"`
	MaxBackups int        `env:"LOG_MAX_BACKUPS" default:"5"`
	MaxAgeDays int        `env:"LOG_MAX_AGE_DAYS" default:"28"`
	Compress   bool       `env:"LOG_COMPRESS" default:"false"`
}

type LedgerConfig struct {
	Driver          string `env:"LEDGER_DRIVER" default:"memory"`
	RPCURL          string `env:"LEDGER_RPC_URL" default:""`
	Contract        string `env:"LEDGER_CONTRACT" default:""`
	PrivateKey      string `env:"LEDGER_PRIVATE_KEY" default:""`
	ChainID         uint64 `env:"LEDGER_CHAIN_ID" default:"0"`
	FeeBumpPercent  uint64 `env:"LEDGER_FEE_BUMP_PERCENT" default:"30"`
	HistoryLookback uint64 `env:"LEDGER_HISTORY_LOOKBACK" default:"2000"`
	// DevFunds is the ETH balance given to the caller by the memory driver.
	DevFunds string `env:"LEDGER_DEV_FUNDS" default:"100"`
}

func (c LedgerConfig) Validate() error {
	switch c.Driver {
	case LedgerMemory:
		return nil
	case LedgerEVM:
	default:
		return fmt.Errorf("%w: unknown ledger driver %q", ErrInvalidConfig, c.Driver)
	}

	if c.RPCURL == "" {
		return fmt.Errorf("%w: LEDGER_RPC_URL required for the evm driver", ErrInvalidConfig)
	}

	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("%w: LEDGER_CONTRACT %q is not an address", ErrInvalidConfig, c.Contract)
	}

	if c.PrivateKey == "" {
		return fmt.Errorf("%w: LEDGER_PRIVATE_KEY required for the evm driver", ErrInvalidConfig)
	}

	return nil
}

func (c LedgerConfig) ContractAddress() common.Address {
	return common.HexToAddress(c.Contract)
}

// Key parses PrivateKey. Without one a fresh key is generated, which only
// makes sense for the memory driver.
func (c LedgerConfig) Key() (*ecdsa.PrivateKey, error) {
	if c.PrivateKey == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}

		return key, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %w", ErrInvalidConfig, err)
	}

	return key, nil
}

func (c LedgerConfig) ChainIDBig() *big.Int {
	if c.ChainID == 0 {
		return nil
	}

	return new(big.Int).SetUint64(c.ChainID)
}

type EncryptionConfig struct {
	Driver     string        `env:"ENCRYPTION_DRIVER" default:"sealed"`
	RelayerURL string        `env:"ENCRYPTION_RELAYER_URL" default:""`
	Timeout    time.Duration `env:"ENCRYPTION_TIMEOUT" default:"10s"`
	// SealedKey is the hex secret of the local coprocessor; empty means a
	// random per-process key.
	SealedKey string `env:"ENCRYPTION_SEALED_KEY" default:""`
}

func (c EncryptionConfig) Validate() error {
	switch c.Driver {
	case EncryptionSealed:
		_, err := c.SealedSecret()

		return err
	case EncryptionRelayer:
		if c.RelayerURL == "" {
			return fmt.Errorf("%w: ENCRYPTION_RELAYER_URL required for the relayer driver", ErrInvalidConfig)
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown encryption driver %q", ErrInvalidConfig, c.Driver)
	}
}

func (c EncryptionConfig) SealedSecret() ([]byte, error) {
	if c.SealedKey == "" {
		return nil, nil
	}

	b, err := hex.DecodeString(strings.TrimPrefix(c.SealedKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: ENCRYPTION_SEALED_KEY: %w", ErrInvalidConfig, err)
	}

	return b, nil
}
