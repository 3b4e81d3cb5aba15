// Package history lists the matches an identity created or joined.
package history

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/services/lifecycle"
)

// Source yields raw creation and join events for a player.
type Source interface {
	PlayerEvents(ctx context.Context, player common.Address) ([]ledger.Event, error)
}

// StatusReader is satisfied by lifecycle.Controller.
type StatusReader interface {
	Status(ctx context.Context, id common.Hash) (lifecycle.View, error)
}

type Entry struct {
	MatchID     common.Hash
	Kind        ledger.EventKind
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	// Status is set only when enrichment was requested and succeeded.
	Status    *lifecycle.View
	StatusErr error
}

type Options struct {
	WithStatus bool
	Limit      int
}

type Service struct {
	sources     []Source
	statuses    StatusReader
	concurrency int
	log         *slog.Logger
}

func New(statuses StatusReader, concurrency int, logger *slog.Logger, sources ...Source) *Service {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		sources:     sources,
		statuses:    statuses,
		concurrency: concurrency,
		log:         logger.With("component", "history"),
	}
}

// List merges every source, keeps one entry per match and returns them
// newest first.
func (s *Service) List(ctx context.Context, player common.Address, opts Options) ([]Entry, error) {
	batches := make([][]ledger.Event, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			evs, err := src.PlayerEvents(gctx, player)
			if err != nil {
				return fmt.Errorf("read history source %d: %w", i, err)
			}

			batches[i] = evs

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	entries := Merge(player, slices.Concat(batches...)...)
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}

	if opts.WithStatus && s.statuses != nil {
		s.enrich(ctx, entries)
	}

	return entries, nil
}

// Merge keeps player's events, one per match at its highest block, sorted
// newest first.
func Merge(player common.Address, evs ...ledger.Event) []Entry {
	latest := make(map[common.Hash]ledger.Event, len(evs))

	for _, ev := range evs {
		if ev.Player != player {
			continue
		}

		prev, ok := latest[ev.MatchID]
		if ok && !newer(ev, prev) {
			continue
		}

		latest[ev.MatchID] = ev
	}

	out := make([]Entry, 0, len(latest))
	for _, ev := range latest {
		out = append(out, Entry{
			MatchID:     ev.MatchID,
			Kind:        ev.Kind,
			BlockNumber: ev.BlockNumber,
			TxHash:      ev.TxHash,
			LogIndex:    ev.LogIndex,
		})
	}

	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.BlockNumber, a.BlockNumber); c != 0 {
			return c
		}
		if c := cmp.Compare(b.LogIndex, a.LogIndex); c != 0 {
			return c
		}

		return a.MatchID.Cmp(b.MatchID)
	})

	return out
}

func newer(a, b ledger.Event) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber > b.BlockNumber
	}

	return a.LogIndex > b.LogIndex
}

// enrich attaches live statuses. A failed read is recorded on the entry.
func (s *Service) enrich(ctx context.Context, entries []Entry) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i := range entries {
		g.Go(func() error {
			v, err := s.statuses.Status(ctx, entries[i].MatchID)
			if err != nil {
				s.log.WarnContext(ctx, "status enrichment failed", "match_id", entries[i].MatchID.Hex(), "err", err)
				entries[i].StatusErr = err

				return nil
			}

			entries[i].Status = &v

			return nil
		})
	}

	_ = g.Wait()
}
