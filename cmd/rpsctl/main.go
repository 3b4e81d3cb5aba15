// Command rpsctl plays and manages encrypted rock-paper-scissors matches
// from the terminal, as the identity given by LEDGER_PRIVATE_KEY.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := RootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		//nolint:gocritic
		os.Exit(1)
	}
}
