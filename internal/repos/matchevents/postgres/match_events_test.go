package matchevents

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fastprodman/sealedrps/internal/infra/pgtestutil"
	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/repos/matchevents"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11cE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0b")
)

func event(kind ledger.EventKind, id string, player common.Address, block uint64) ledger.Event {
	return ledger.Event{
		Kind:        kind,
		MatchID:     common.HexToHash(id),
		Player:      player,
		BlockNumber: block,
		TxHash:      common.HexToHash(id + "ff"),
	}
}

func TestMatchEvents_Insert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    []ledger.Event
		ev      ledger.Event
		wantErr error
	}{
		{
			name: "ok_insert",
			ev:   event(ledger.EventCreated, "0x01", alice, 10),
		},
		{
			name: "join_of_same_match",
			seed: []ledger.Event{event(ledger.EventCreated, "0x02", alice, 10)},
			ev:   event(ledger.EventJoined, "0x02", bob, 11),
		},
		{
			name:    "duplicate_event",
			seed:    []ledger.Event{event(ledger.EventCreated, "0x03", alice, 10)},
			ev:      event(ledger.EventCreated, "0x03", alice, 10),
			wantErr: matchevents.ErrDuplicateEvent,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			ctx := context.Background()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			//nolint:errcheck
			defer tx.Rollback()

			for _, ev := range tt.seed {
				err = repo.Insert(tx, ev)
				if err != nil {
					t.Fatalf("seed event: %v", err)
				}
			}

			err = repo.Insert(tx, tt.ev)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("unexpected error: got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatchEvents_ListByPlayer(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := context.Background()

	seed := []ledger.Event{
		event(ledger.EventCreated, "0x01", alice, 5),
		event(ledger.EventJoined, "0x01", bob, 6),
		event(ledger.EventCreated, "0x02", alice, 9),
		event(ledger.EventJoined, "0x03", alice, 7),
	}

	err := insertAll(ctx, db, repo, seed)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := repo.ListByPlayer(ctx, alice, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	wantBlocks := []uint64{9, 7, 5}
	if len(got) != len(wantBlocks) {
		t.Fatalf("got %d events, want %d", len(got), len(wantBlocks))
	}

	for i, ev := range got {
		if ev.BlockNumber != wantBlocks[i] {
			t.Fatalf("event %d: block %d, want %d", i, ev.BlockNumber, wantBlocks[i])
		}
		if ev.Player != alice {
			t.Fatalf("event %d: player %s", i, ev.Player.Hex())
		}
	}

	if got[1].Kind != ledger.EventJoined || got[1].MatchID != common.HexToHash("0x03") {
		t.Fatalf("unexpected second event: %+v", got[1])
	}

	limited, err := repo.ListByPlayer(ctx, alice, 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].BlockNumber != 9 {
		t.Fatalf("limit not applied: %+v", limited)
	}

	none, err := repo.ListByPlayer(ctx, common.HexToAddress("0x42"), 10)
	if err != nil {
		t.Fatalf("list unknown: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no events, got %d", len(none))
	}
}

func insertAll(ctx context.Context, db *sql.DB, repo *matchEventsRepo, evs []ledger.Event) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	for _, ev := range evs {
		err = repo.Insert(tx, ev)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}
