package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	eventCreated = "MatchCreated"
	eventJoined  = "MatchJoined"
)

// registryABI covers the registry calls and events the gateway uses.
const registryABI = `[
  {"type":"function","name":"createAndCommit","stateMutability":"payable",
   "inputs":[{"name":"encMove","type":"bytes32"},{"name":"inputProof","type":"bytes"},{"name":"mode","type":"uint8"},{"name":"stake","type":"uint256"},{"name":"deadline","type":"uint64"}],
   "outputs":[{"name":"matchId","type":"bytes32"}]},
  {"type":"function","name":"joinAndCommit","stateMutability":"payable",
   "inputs":[{"name":"matchId","type":"bytes32"},{"name":"encMove","type":"bytes32"},{"name":"inputProof","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"resolve","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"finalizeWinner","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"bytes32"},{"name":"winner","type":"address"}],"outputs":[]},
  {"type":"function","name":"claim","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"expireCreated","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"getStatus","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"bytes32"}],
   "outputs":[{"name":"state","type":"uint8"},{"name":"playerA","type":"address"},{"name":"playerB","type":"address"},{"name":"stake","type":"uint256"},{"name":"deadline","type":"uint64"},{"name":"mode","type":"uint8"},{"name":"winner","type":"address"}]},
  {"type":"function","name":"isFinalized","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getEncryptedOutcome","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"bytes32"}],"outputs":[{"name":"","type":"bytes32"}]},
  {"type":"function","name":"getPendingMatchCount","stateMutability":"view",
   "inputs":[{"name":"mode","type":"uint8"},{"name":"stake","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPendingMatches","stateMutability":"view",
   "inputs":[{"name":"mode","type":"uint8"},{"name":"stake","type":"uint256"},{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
   "outputs":[{"name":"matchIds","type":"bytes32[]"},{"name":"total","type":"uint256"}]},
  {"type":"event","name":"MatchCreated","anonymous":false,
   "inputs":[{"name":"matchId","type":"bytes32","indexed":true},{"name":"playerA","type":"address","indexed":true}]},
  {"type":"event","name":"MatchJoined","anonymous":false,
   "inputs":[{"name":"matchId","type":"bytes32","indexed":true},{"name":"playerB","type":"address","indexed":true}]}
]`

// ParsedABI returns the registry ABI.
func ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse registry abi: %w", err)
	}

	return parsed, nil
}
