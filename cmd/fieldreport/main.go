// Command fieldreport edits, completes and exports field-service reports
// stored on this device, and serves the same operations over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fieldreport",
		Short: "Local-first field service reports",
		Long: `fieldreport keeps service reports on this device while they are written.

Drafts are saved to a local SQLite store and mirrored to remote storage in the
background. Completing a report assigns its number and publishes HTML,
Markdown and JSON exports. Configuration comes from the environment or a .env
file (DATA_DIR, STORAGE_PROVIDER, AI_PROVIDER, ...).`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newCmd(),
		listCmd(),
		showCmd(),
		setCmd(),
		addCmd(),
		issueCmd(),
		attachCmd(),
		summarizeCmd(),
		scanCmd(),
		completeCmd(),
		exportCmd(),
		auditCmd(),
		previewCmd(),
		serveCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
