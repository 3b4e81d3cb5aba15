package main

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/fastprodman/sealedrps/internal/ledger"
	"github.com/fastprodman/sealedrps/internal/match"
	"github.com/fastprodman/sealedrps/internal/services/history"
	"github.com/fastprodman/sealedrps/internal/services/lifecycle"
	"github.com/fastprodman/sealedrps/internal/services/matching"
	"github.com/fastprodman/sealedrps/pkg/amount"
)

// PlayCmd finds an opponent or opens a new match.
func PlayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a waiting match or create one, committing an encrypted move",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modeRaw, _ := cmd.Flags().GetString("mode")
			moveRaw, _ := cmd.Flags().GetString("move")
			stakeRaw, _ := cmd.Flags().GetString("stake")
			deadline, _ := cmd.Flags().GetDuration("deadline")
			budget, _ := cmd.Flags().GetDuration("wait")
			await, _ := cmd.Flags().GetBool("await")
			noWait, _ := cmd.Flags().GetBool("no-wait")

			mode, err := match.ParseMode(modeRaw)
			if err != nil {
				return err
			}

			move, err := match.ParseMove(moveRaw)
			if err != nil {
				return err
			}

			stake, err := amount.ParseETH(stakeRaw)
			if err != nil {
				return err
			}

			// Zero leaves the engine's configured budget in place.
			if noWait || budget < 0 {
				budget = -1
			}

			res, err := a.sess.Engine.Play(cmd.Context(), matching.Intent{
				Mode:           mode,
				Stake:          stake,
				Move:           move,
				DeadlineOffset: deadline,
				TimeBudget:     budget,
			})
			if err != nil {
				return err
			}

			out := map[string]any{
				"session":  res.Session,
				"decision": res.Decision,
				"matchId":  res.MatchID.Hex(),
				"txHash":   res.TxHash.Hex(),
				"block":    res.BlockNumber,
				"attempts": res.Attempts,
			}
			if !res.Deadline.IsZero() {
				out["deadline"] = res.Deadline.UTC()
			}

			if await && res.Decision == matching.DecisionCreated {
				st, err := a.sess.Lifecycle.AwaitLocked(cmd.Context(), res.MatchID)
				if err != nil {
					return err
				}

				out["state"] = st.State.String()
				out["opponent"] = st.PlayerB.Hex()
			}

			return a.print(out)
		},
	}

	cmd.Flags().StringP("mode", "m", "practice", "practice or wager")
	cmd.Flags().StringP("move", "v", "", "rock, paper or scissors")
	cmd.Flags().StringP("stake", "s", "", "wager stake in ETH, e.g. 0.01")
	cmd.Flags().Duration("deadline", 0, "how long the match stays joinable (default from config)")
	cmd.Flags().Duration("wait", 0, "how long to look for an opponent before creating (default MATCHING_TIME_BUDGET)")
	cmd.Flags().Bool("no-wait", false, "scan the pool once, then create")
	cmd.Flags().Bool("await", false, "after creating, wait until an opponent joins")
	_ = cmd.MarkFlagRequired("move")

	return cmd
}

// StatusCmd prints the derived status of a match.
func StatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <matchId>",
		Short: "Show a match's state, outcome and who may claim",
		Args:  cobra.ExactArgs(1),
		RunE: withMatchID(func(ctx context.Context, id common.Hash) error {
			v, err := a.sess.Lifecycle.Status(ctx, id)
			if err != nil {
				return err
			}

			return a.print(viewOutput(v))
		}),
	}
}

func ResolveCmd(a *app) *cobra.Command {
	return receiptCmd(a, "resolve", "Compute the encrypted outcome of a locked match", a.resolve)
}

func ClaimCmd(a *app) *cobra.Command {
	return receiptCmd(a, "claim", "Withdraw a payout or refund", a.claim)
}

func ExpireCmd(a *app) *cobra.Command {
	return receiptCmd(a, "expire", "Abandon your unjoined match after its deadline", a.expire)
}

// FinalizeCmd decrypts the outcome and records the winner.
func FinalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <matchId>",
		Short: "Decrypt the outcome and publish the winner",
		Args:  cobra.ExactArgs(1),
		RunE: withMatchID(func(ctx context.Context, id common.Hash) error {
			fin, err := a.sess.Lifecycle.DecryptAndFinalize(ctx, id)
			if err != nil {
				return err
			}

			out := receiptOutput(id, fin.Receipt)
			out["draw"] = fin.Draw
			if !fin.Draw {
				out["winner"] = fin.Winner.Hex()
			}

			return a.print(out)
		}),
	}
}

// SettleCmd runs resolve and finalize as needed.
func SettleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settle <matchId>",
		Short: "Resolve and finalize a locked match, skipping steps already done",
		Args:  cobra.ExactArgs(1),
		RunE: withMatchID(func(ctx context.Context, id common.Hash) error {
			v, err := a.sess.Lifecycle.Settle(ctx, id)
			if err != nil {
				return err
			}

			return a.print(viewOutput(v))
		}),
	}
}

// PoolCmd lists waiting matches for a mode and stake.
func PoolCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "List pending matches and how many are joinable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modeRaw, _ := cmd.Flags().GetString("mode")
			stakeRaw, _ := cmd.Flags().GetString("stake")
			offset, _ := cmd.Flags().GetUint64("offset")
			limit, _ := cmd.Flags().GetUint64("limit")

			mode, err := match.ParseMode(modeRaw)
			if err != nil {
				return err
			}

			stake, err := amount.ParseETH(stakeRaw)
			if err != nil {
				return err
			}

			page, err := a.sess.Gateway.PendingMatches(cmd.Context(), mode, stake, offset, limit)
			if err != nil {
				return err
			}

			valid, err := a.sess.Engine.ValidPendingCount(cmd.Context(), mode, stake)
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(page.IDs))
			for _, id := range page.IDs {
				ids = append(ids, id.Hex())
			}

			return a.print(map[string]any{"total": page.Total, "valid": valid, "ids": ids})
		},
	}

	cmd.Flags().StringP("mode", "m", "practice", "practice or wager")
	cmd.Flags().StringP("stake", "s", "", "stake in ETH")
	cmd.Flags().Uint64("offset", 0, "page offset")
	cmd.Flags().Uint64("limit", 20, "page size")

	return cmd
}

// HistoryCmd lists matches a player created or joined, newest first.
func HistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [address]",
		Short: "List matches created or joined (default: your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			withStatus, _ := cmd.Flags().GetBool("status")
			limit, _ := cmd.Flags().GetInt("limit")

			player := a.sess.Caller()
			if len(args) == 1 {
				if !common.IsHexAddress(args[0]) {
					return errInvalidAddress(args[0])
				}

				player = common.HexToAddress(args[0])
			}

			svc := history.New(a.sess.Lifecycle, 0, nil, a.sess.LedgerHistory())

			entries, err := svc.List(cmd.Context(), player, history.Options{WithStatus: withStatus, Limit: limit})
			if err != nil {
				return err
			}

			out := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				item := map[string]any{
					"matchId": e.MatchID.Hex(),
					"kind":    e.Kind,
					"block":   e.BlockNumber,
					"txHash":  e.TxHash.Hex(),
				}
				if e.Status != nil {
					item["status"] = viewOutput(*e.Status)
				}
				if e.StatusErr != nil {
					item["statusError"] = e.StatusErr.Error()
				}

				out = append(out, item)
			}

			return a.print(out)
		},
	}

	cmd.Flags().Bool("status", false, "include each match's live status")
	cmd.Flags().Int("limit", 0, "maximum entries (0 = all)")

	return cmd
}

func (a *app) resolve(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	return a.sess.Lifecycle.Resolve(ctx, id)
}

func (a *app) claim(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	return a.sess.Lifecycle.Claim(ctx, id)
}

func (a *app) expire(ctx context.Context, id common.Hash) (ledger.Receipt, error) {
	return a.sess.Lifecycle.ExpireCreated(ctx, id)
}

func receiptCmd(a *app, use, short string, step func(context.Context, common.Hash) (ledger.Receipt, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <matchId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withMatchID(func(ctx context.Context, id common.Hash) error {
			r, err := step(ctx, id)
			if err != nil {
				return err
			}

			return a.print(receiptOutput(id, r))
		}),
	}
}

func withMatchID(fn func(ctx context.Context, id common.Hash) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := match.ParseID(args[0])
		if err != nil {
			return err
		}

		return fn(cmd.Context(), id)
	}
}

func receiptOutput(id common.Hash, r ledger.Receipt) map[string]any {
	return map[string]any{
		"matchId": id.Hex(),
		"txHash":  r.TxHash.Hex(),
		"block":   r.BlockNumber,
		"gasCost": amount.FormatETH(r.GasCost),
	}
}

func viewOutput(v lifecycle.View) map[string]any {
	out := map[string]any{
		"matchId":   v.ID.Hex(),
		"state":     v.State.String(),
		"mode":      v.Mode.String(),
		"playerA":   v.PlayerA.Hex(),
		"stake":     amount.FormatETH(v.Stake),
		"deadline":  v.Deadline.UTC().Format(time.RFC3339),
		"finalized": v.Finalized,
		"outcome":   v.Outcome.String(),
		"joinable":  v.Joinable,
		"expirable": v.Expirable,
	}

	if v.PlayerB != match.EmptyAddress {
		out["playerB"] = v.PlayerB.Hex()
	}

	if v.Outcome == match.OutcomeWinner {
		out["winner"] = v.Winner.Hex()
	}

	claimable := make([]string, 0, len(v.ClaimableBy))
	for _, c := range v.ClaimableBy {
		claimable = append(claimable, c.Hex())
	}

	out["claimableBy"] = claimable

	return out
}
