package txwait

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type Progress struct {
	Op          string
	MatchID     common.Hash
	TxHash      common.Hash
	Attempt     int
	MaxAttempts int
}

func (p Progress) String() string {
	return fmt.Sprintf("awaiting confirmation, attempt %d of %d", p.Attempt, p.MaxAttempts)
}

type Reporter func(Progress)

type reporterKey struct{}

// WithReporter attaches a progress callback to every wait made under ctx.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

func reporterFrom(ctx context.Context) Reporter {
	r, ok := ctx.Value(reporterKey{}).(Reporter)
	if !ok || r == nil {
		return func(Progress) {}
	}

	return r
}
