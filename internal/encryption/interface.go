package encryption

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/match"
)

var (
	ErrUnavailable   = errors.New("encryption unavailable")
	ErrUnauthorized  = errors.New("requester not authorized for handle")
	ErrInvalidHandle = errors.New("invalid ciphertext handle")
)

// Service produces move commitments bound to a registry contract and
// decrypts handles for authorized identities only.
type Service interface {
	EncryptMove(ctx context.Context, contract, sender common.Address, move match.Move) (match.Commitment, error)
	Decrypt(ctx context.Context, handle common.Hash, contract, requester common.Address) ([]byte, error)
}

// DecryptAddress decrypts a handle holding a 20-byte address.
func DecryptAddress(ctx context.Context, svc Service, handle common.Hash, contract, requester common.Address) (common.Address, error) {
	plain, err := svc.Decrypt(ctx, handle, contract, requester)
	if err != nil {
		return common.Address{}, err
	}

	if len(plain) != common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: plaintext is %d bytes, want address", ErrInvalidHandle, len(plain))
	}

	return common.BytesToAddress(plain), nil
}

// DecryptMove decrypts a handle holding a committed move.
func DecryptMove(ctx context.Context, svc Service, handle common.Hash, contract, requester common.Address) (match.Move, error) {
	plain, err := svc.Decrypt(ctx, handle, contract, requester)
	if err != nil {
		return 0, err
	}

	if len(plain) != 1 || !match.Move(plain[0]).Valid() {
		return 0, fmt.Errorf("%w: plaintext is not a move", ErrInvalidHandle)
	}

	return match.Move(plain[0]), nil
}
