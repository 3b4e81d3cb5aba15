package matching

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/match"
)

var (
	ErrJoinRaceLost   = errors.New("join race lost")
	ErrIntentInFlight = errors.New("intent already in flight")
	ErrInvalidIntent  = errors.New("invalid intent")
)

var (
	errStaleCandidate      = errors.New("stale candidate")
	errMissingCreatedEvent = errors.New("create receipt carries no MatchCreated event")
)

type Config struct {
	TimeBudget     time.Duration `env:"MATCHING_TIME_BUDGET" default:"10s"`
	PollInterval   time.Duration `env:"MATCHING_POLL_INTERVAL" default:"1s"`
	PageSize       uint64        `env:"MATCHING_PAGE_SIZE" default:"20"`
	DeadlineOffset time.Duration `env:"MATCHING_DEADLINE_OFFSET" default:"600s"`
	MaxRaceRetries int           `env:"MATCHING_MAX_RACE_RETRIES" default:"3"`
}

func (c Config) withDefaults() Config {
	if c.TimeBudget < 0 {
		c.TimeBudget = 0
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PageSize == 0 {
		c.PageSize = 20
	}
	if c.DeadlineOffset <= 0 {
		c.DeadlineOffset = 600 * time.Second
	}
	if c.MaxRaceRetries < 0 {
		c.MaxRaceRetries = 0
	}

	return c
}

// Intent is what a session wants to play. Zero durations fall back to the
// engine configuration; a negative TimeBudget skips the pool scan wait.
type Intent struct {
	Mode           match.Mode
	Stake          *big.Int
	Move           match.Move
	DeadlineOffset time.Duration
	TimeBudget     time.Duration
}

type Decision string

const (
	DecisionJoined  Decision = "joined"
	DecisionCreated Decision = "created"
)

type Result struct {
	Session     string
	Decision    Decision
	MatchID     common.Hash
	TxHash      common.Hash
	BlockNumber uint64
	Deadline    time.Time // set for created matches
	Attempts    int
}
