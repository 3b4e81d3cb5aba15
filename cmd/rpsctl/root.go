package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fastprodman/sealedrps/internal/config"
	"github.com/fastprodman/sealedrps/internal/infra/logging"
	"github.com/fastprodman/sealedrps/internal/session"
	"github.com/fastprodman/sealedrps/internal/txwait"
	"github.com/fastprodman/sealedrps/pkg/envconf"
)

type cliConfig struct {
	Log     config.LogConfig
	Session session.Config
}

// app holds the session opened for the running command.
type app struct {
	sess *session.Session
	out  io.Writer
}

// RootCmd builds the rpsctl command tree.
func RootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "rpsctl",
		Short:         "Play encrypted rock-paper-scissors on the match registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.sess != nil {
				a.sess.Close()
			}
		},
	}

	cmd.PersistentFlags().String("ledger", "", "ledger driver: memory or evm (overrides LEDGER_DRIVER)")
	cmd.PersistentFlags().String("encryption", "", "encryption driver: sealed or relayer (overrides ENCRYPTION_DRIVER)")
	cmd.PersistentFlags().String("rpc", "", "JSON-RPC endpoint (overrides LEDGER_RPC_URL)")
	cmd.PersistentFlags().String("relayer", "", "encryption relayer URL (overrides ENCRYPTION_RELAYER_URL)")
	cmd.PersistentFlags().String("log-level", "", "log level (overrides APP_LOG_LEVEL)")

	cmd.AddCommand(
		PlayCmd(a),
		StatusCmd(a),
		ResolveCmd(a),
		FinalizeCmd(a),
		SettleCmd(a),
		ClaimCmd(a),
		ExpireCmd(a),
		PoolCmd(a),
		HistoryCmd(a),
	)

	return cmd
}

func (a *app) open(cmd *cobra.Command) error {
	err := envconf.LoadDotenv()
	if err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := new(cliConfig)

	err = envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = applyFlags(cmd, cfg)
	if err != nil {
		return err
	}

	// Logs go to stderr so command output stays machine readable.
	slog.SetDefault(logging.NewJSON(cmd.ErrOrStderr(), cfg.Log.Level))

	a.out = cmd.OutOrStdout()

	a.sess, err = session.Open(cmd.Context(), cfg.Session, nil, slog.Default(), nil)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	progress := txwait.WithReporter(cmd.Context(), func(p txwait.Progress) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", p.Op, p)
	})
	cmd.SetContext(progress)

	return nil
}

func applyFlags(cmd *cobra.Command, cfg *cliConfig) error {
	flags := cmd.Flags()

	if v, _ := flags.GetString("ledger"); v != "" {
		cfg.Session.Ledger.Driver = v
	}

	if v, _ := flags.GetString("encryption"); v != "" {
		cfg.Session.Encryption.Driver = v
	}

	if v, _ := flags.GetString("rpc"); v != "" {
		cfg.Session.Ledger.RPCURL = v
	}

	if v, _ := flags.GetString("relayer"); v != "" {
		cfg.Session.Encryption.RelayerURL = v
	}

	if v, _ := flags.GetString("log-level"); v != "" {
		err := cfg.Log.Level.UnmarshalText([]byte(v))
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}

	return nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}

func errInvalidAddress(s string) error {
	return fmt.Errorf("invalid address %q", s)
}
