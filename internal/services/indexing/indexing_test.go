package indexing

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/fastprodman/sealedrps/internal/encryption/sealed"
	"github.com/fastprodman/sealedrps/internal/infra/metrics"
	"github.com/fastprodman/sealedrps/internal/infra/pgtestutil"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/ledger/memledger"
	"github.com/fastprodman/sealedrps/internal/match"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func seedChain(t *testing.T, matches int) *memledger.Chain {
	t.Helper()

	cop, err := sealed.New([]byte("indexing"))
	if err != nil {
		t.Fatalf("coprocessor: %v", err)
	}

	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	chain := memledger.New(cop, memledger.WithClock(clock))
	chain.Fund(alice, big.NewInt(1_000_000_000_000_000_000))
	chain.Fund(bob, big.NewInt(1_000_000_000_000_000_000))

	ctx := context.Background()

	for i := 0; i < matches; i++ {
		commit, err := cop.EncryptMove(ctx, chain.Contract(), alice, match.Rock)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}

		tx, err := chain.Connect(alice).CreateAndCommit(ctx, ledger.CreateParams{
			Commitment: commit,
			Mode:       match.ModePractice,
			Deadline:   clock.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		r, err := chain.Connect(alice).Receipt(ctx, tx)
		if err != nil {
			t.Fatalf("receipt: %v", err)
		}

		id, _ := ledger.CreatedMatchID(r)

		commit, err = cop.EncryptMove(ctx, chain.Contract(), bob, match.Paper)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}

		_, err = chain.Connect(bob).JoinAndCommit(ctx, id, commit, nil)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	return chain
}

func TestIndexingService_Sync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		matches       int
		batch         uint64
		confirmations uint64
		wantStored    []int
	}{
		{name: "single_window", matches: 3, batch: 100, wantStored: []int{6}},
		{name: "windowed", matches: 3, batch: 2, wantStored: []int{2, 2, 2}},
		{name: "unconfirmed_tail_is_skipped", matches: 2, batch: 100, confirmations: 2, wantStored: []int{2}},
		{name: "empty_chain", matches: 0, batch: 100, wantStored: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			chain := seedChain(t, tt.matches)
			reg := metrics.NewRegistry()
			srv := New(db, chain.Connect(alice), Config{BatchBlocks: tt.batch, Confirmations: tt.confirmations}, nil, reg)

			ctx := context.Background()
			var stored []int

			for {
				b, err := srv.Sync(ctx)
				if err != nil {
					t.Fatalf("sync: %v", err)
				}
				if b.From > b.To {
					break
				}
				stored = append(stored, b.Stored)
			}

			if len(stored) != len(tt.wantStored) {
				t.Fatalf("batches = %v, want %v", stored, tt.wantStored)
			}
			for i := range stored {
				if stored[i] != tt.wantStored[i] {
					t.Fatalf("batches = %v, want %v", stored, tt.wantStored)
				}
			}

			total := 0
			for _, n := range tt.wantStored {
				total += n
			}
			if got := metrics.Counter(reg, metrics.IndexerEvents).Count(); got != int64(total) {
				t.Fatalf("indexed counter = %d, want %d", got, total)
			}
		})
	}
}

func TestIndexingService_ResyncIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	chain := seedChain(t, 2)
	ctx := context.Background()

	n, err := New(db, chain.Connect(alice), Config{}, nil, metrics.NewRegistry()).SyncAll(ctx)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if n != 4 {
		t.Fatalf("stored %d, want 4", n)
	}

	// a second indexer starting from genesis under another cursor sees the
	// same rows already present
	other := New(db, chain.Connect(alice), Config{Cursor: "replay"}, nil, metrics.NewRegistry())

	b, err := other.Sync(ctx)
	if err != nil {
		t.Fatalf("replay sync: %v", err)
	}
	if b.Stored != 0 || b.Duplicates != 4 {
		t.Fatalf("replay batch = %+v", b)
	}

	evs, err := other.Events(ctx, bob, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("bob events = %d, want 2", len(evs))
	}
	for _, ev := range evs {
		if ev.Kind != ledger.EventJoined {
			t.Fatalf("unexpected kind %s", ev.Kind)
		}
	}
}
