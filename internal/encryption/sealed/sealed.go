// Package sealed is an in-process coprocessor. Ciphertexts are sealed with
// NaCl secretbox and referenced by the keccak hash of the sealed bytes; input
// proofs are keyed BLAKE2b MACs binding a handle to its contract and sender.
package sealed

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/fastprodman/sealedrps/internal/encryption"
	"github.com/fastprodman/sealedrps/internal/match"
)

const nonceSize = 24

var ErrInvalidProof = errors.New("invalid input proof")

var _ encryption.Service = (*Coprocessor)(nil)

type ciphertext struct {
	sealed   []byte
	contract common.Address
	readers  map[common.Address]struct{}
}

type Coprocessor struct {
	sealKey [32]byte
	macKey  [32]byte

	mu      sync.RWMutex
	handles map[common.Hash]*ciphertext

	down atomic.Bool
}

// New derives the sealing and MAC keys from secret. An empty secret yields a
// random, process-local key.
func New(secret []byte) (*Coprocessor, error) {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, err := io.ReadFull(rand.Reader, secret)
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	c := &Coprocessor{handles: make(map[common.Hash]*ciphertext)}
	c.sealKey = blake2b.Sum256(append([]byte("sealedrps/seal/"), secret...))
	c.macKey = blake2b.Sum256(append([]byte("sealedrps/mac/"), secret...))

	return c, nil
}

// SetAvailable toggles the service; while unavailable every client call fails
// with encryption.ErrUnavailable.
func (c *Coprocessor) SetAvailable(ok bool) {
	c.down.Store(!ok)
}

func (c *Coprocessor) EncryptMove(ctx context.Context, contract, sender common.Address, move match.Move) (match.Commitment, error) {
	err := c.ready(ctx)
	if err != nil {
		return match.Commitment{}, err
	}

	if !move.Valid() {
		return match.Commitment{}, fmt.Errorf("encrypt move: %w", match.ErrInvalidMove)
	}

	handle, err := c.seal([]byte{byte(move)}, contract, sender)
	if err != nil {
		return match.Commitment{}, fmt.Errorf("encrypt move: %w", err)
	}

	return match.Commitment{Handle: handle, Proof: c.proof(handle, contract, sender)}, nil
}

func (c *Coprocessor) Decrypt(ctx context.Context, handle common.Hash, contract, requester common.Address) ([]byte, error) {
	err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	ct, ok := c.handles[handle]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("decrypt %s: %w", handle.Hex(), encryption.ErrInvalidHandle)
	}

	if ct.contract != contract {
		return nil, fmt.Errorf("decrypt %s: contract %s: %w", handle.Hex(), contract.Hex(), encryption.ErrUnauthorized)
	}

	c.mu.RLock()
	_, allowed := ct.readers[requester]
	c.mu.RUnlock()

	if !allowed {
		return nil, fmt.Errorf("decrypt %s: requester %s: %w", handle.Hex(), requester.Hex(), encryption.ErrUnauthorized)
	}

	return c.open(ct)
}

// VerifyInput checks that proof binds handle to contract and sender.
func (c *Coprocessor) VerifyInput(handle common.Hash, proof []byte, contract, sender common.Address) error {
	c.mu.RLock()
	ct, ok := c.handles[handle]
	c.mu.RUnlock()

	if !ok || ct.contract != contract {
		return ErrInvalidProof
	}

	if !hmac.Equal(proof, c.proof(handle, contract, sender)) {
		return ErrInvalidProof
	}

	return nil
}

// EvaluateOutcome computes the encrypted winner of two committed moves. The
// result is readable by both players.
func (c *Coprocessor) EvaluateOutcome(contract common.Address, moveA, moveB common.Hash, playerA, playerB common.Address) (common.Hash, error) {
	a, err := c.moveOf(moveA)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evaluate move A: %w", err)
	}

	b, err := c.moveOf(moveB)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evaluate move B: %w", err)
	}

	winner := match.WinnerAddress(match.Decide(a, b), playerA, playerB)

	return c.seal(winner.Bytes(), contract, playerA, playerB)
}

// VerifyReveal checks a claimed plaintext winner against the outcome handle.
func (c *Coprocessor) VerifyReveal(outcome common.Hash, winner common.Address) error {
	c.mu.RLock()
	ct, ok := c.handles[outcome]
	c.mu.RUnlock()

	if !ok {
		return encryption.ErrInvalidHandle
	}

	plain, err := c.open(ct)
	if err != nil {
		return err
	}

	if common.BytesToAddress(plain) != winner {
		return fmt.Errorf("revealed winner %s does not match outcome", winner.Hex())
	}

	return nil
}

func (c *Coprocessor) ready(ctx context.Context) error {
	if c.down.Load() {
		return encryption.ErrUnavailable
	}

	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("%w: %w", encryption.ErrUnavailable, err)
	}

	return nil
}

func (c *Coprocessor) seal(plain []byte, contract common.Address, readers ...common.Address) (common.Hash, error) {
	var nonce [nonceSize]byte

	_, err := io.ReadFull(rand.Reader, nonce[:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("read nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], plain, &nonce, &c.sealKey)
	handle := crypto.Keccak256Hash(sealed)

	ct := &ciphertext{
		sealed:   sealed,
		contract: contract,
		readers:  make(map[common.Address]struct{}, len(readers)),
	}
	for _, r := range readers {
		ct.readers[r] = struct{}{}
	}

	c.mu.Lock()
	c.handles[handle] = ct
	c.mu.Unlock()

	return handle, nil
}

func (c *Coprocessor) open(ct *ciphertext) ([]byte, error) {
	if len(ct.sealed) < nonceSize {
		return nil, encryption.ErrInvalidHandle
	}

	var nonce [nonceSize]byte
	copy(nonce[:], ct.sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, ct.sealed[nonceSize:], &nonce, &c.sealKey)
	if !ok {
		return nil, fmt.Errorf("open ciphertext: %w", encryption.ErrInvalidHandle)
	}

	return plain, nil
}

func (c *Coprocessor) moveOf(handle common.Hash) (match.Move, error) {
	c.mu.RLock()
	ct, ok := c.handles[handle]
	c.mu.RUnlock()

	if !ok {
		return 0, encryption.ErrInvalidHandle
	}

	plain, err := c.open(ct)
	if err != nil {
		return 0, err
	}

	if len(plain) != 1 || !match.Move(plain[0]).Valid() {
		return 0, match.ErrInvalidMove
	}

	return match.Move(plain[0]), nil
}

func (c *Coprocessor) proof(handle common.Hash, contract, sender common.Address) []byte {
	mac, _ := blake2b.New256(c.macKey[:]) // only fails for keys over 64 bytes
	mac.Write(handle.Bytes())
	mac.Write(contract.Bytes())
	mac.Write(sender.Bytes())

	return mac.Sum(nil)
}
