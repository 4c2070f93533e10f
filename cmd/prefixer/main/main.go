package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arthur-debert/prefixer/cmd/prefixer"
	"github.com/arthur-debert/prefixer/pkg/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := prefixer.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		styles := ui.NewStyles(os.Stderr, ui.IsColorTerminal(os.Stderr))
		fmt.Fprintln(os.Stderr, styles.Error.Render(fmt.Sprintf("Error: %v", err)))
		stop()
		os.Exit(1)
	}
}
