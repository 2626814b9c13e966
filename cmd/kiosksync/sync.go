package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and exit",
	Long: `Fetch the manifest and reconcile the cache once, with the same backoff
and fallback behavior as the agent's startup sync. The agent must not be
running: both would write the same cache and history.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCloser, err := initLogging(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newAgent(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.syncer.Run(ctx)
	if err != nil {
		reportNoManifest(cmd.OutOrStdout(), cfg, err)
		return err
	}

	out := cmd.OutOrStdout()
	if outcome.Source == types.ManifestSourceFallback {
		fmt.Fprintf(out, "! Server unreachable after %d attempts, saved manifest kept (%d assets)\n",
			outcome.Attempts, len(outcome.Manifest.Images))
		return nil
	}

	result := outcome.Reconcile
	if result == nil {
		fmt.Fprintf(out, "! Manifest fetched but the cache at %s could not be reconciled\n", outcome.CacheDir)
		return nil
	}

	fmt.Fprintf(out, "✓ Synced deployment %s into %s\n", outcome.DeploymentID, outcome.CacheDir)
	fmt.Fprintf(out, "  Downloaded: %d\n", len(result.Downloaded))
	fmt.Fprintf(out, "  Present:    %d\n", len(result.Present))
	fmt.Fprintf(out, "  Evicted:    %d\n", len(result.Evicted))
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "  Failed:     %d\n", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Fprintf(out, "    - %v\n", f)
		}
	}
	return nil
}
