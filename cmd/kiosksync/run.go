package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/kiosksync/pkg/api"
	"github.com/cuemby/kiosksync/pkg/events"
	"github.com/cuemby/kiosksync/pkg/heartbeat"
	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/runtime"
	"github.com/cuemby/kiosksync/pkg/syncer"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the kiosk agent",
	Long: `Run the kiosk agent in the foreground.

The agent resolves the deployment's manifest once at startup (fetching it,
or falling back to the saved copy), then polls the control endpoint and
restarts itself when the server requests it. Health, metrics and the
resolved manifest are served on the configured HTTP address.`,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	// Restart requests older than this process are not replayed
	startedAt := types.Now()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCloser, err := initLogging(cmd, cfg, true)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logger := log.WithDeploymentID(cfg.DeploymentID.String())
	relaunched, _ := cmd.Flags().GetBool("relaunch")
	logger.Info().
		Str("version", Version).
		Str("tenant", cfg.Tenant).
		Str("app_data", cfg.AppData).
		Bool("relaunched", relaunched).
		Msg("Starting kiosk agent")

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(broker.Subscribe())

	a, err := newAgent(cfg, broker)
	if err != nil {
		return err
	}
	defer a.Close()

	relauncher, err := runtime.NewProcessRelauncher(runtime.Config{Shutdown: cancel})
	if err != nil {
		return err
	}

	// Start status server in background
	errCh := make(chan error, 1)
	var server *api.HealthServer
	if cfg.HTTP.Addr != "" {
		server = api.NewHealthServer(a.syncer)
		go func() {
			if err := server.Start(cfg.HTTP.Addr); err != nil {
				errCh <- fmt.Errorf("status server error: %w", err)
			}
		}()
	}
	defer shutdownServer(server)

	collector := metrics.NewCollector(cfg.CacheDir(), cfg.HTTP.CacheScanInterval.Std())
	collector.Start()
	defer collector.Stop()

	// The restart monitor runs for the life of the process, whatever the
	// startup sync does
	monitor := heartbeat.NewMonitor(a.client, a.markers, relauncher, heartbeat.Config{
		Interval: cfg.Heartbeat.Interval.Std(),
		Baseline: startedAt,
		Events:   broker,
	})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	outcome, err := a.syncer.Run(ctx)
	switch {
	case err == nil:
		collector.Collect()
		switch outcome.Source {
		case types.ManifestSourceFetched:
			fmt.Fprintf(out, "✓ Manifest fetched: %d assets in %s\n", len(outcome.Manifest.Images), outcome.CacheDir)
		case types.ManifestSourceFallback:
			fmt.Fprintf(out, "! Server unreachable, showing saved manifest: %d assets\n", len(outcome.Manifest.Images))
		}
	case ctx.Err() != nil:
		// interrupted, or a relaunch was started while syncing
	case errors.Is(err, syncer.ErrNoFallbackAvailable):
		// keep serving the failure and polling for a restart
		reportNoManifest(out, cfg, err)
	default:
		return err
	}

	fmt.Fprintln(out, "Agent is running. Press Ctrl+C to stop.")

	// Wait for signal, relaunch or server error
	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "\nShutting down...")
		err = nil
	case err = <-errCh:
		fmt.Fprintf(cmd.ErrOrStderr(), "\nError: %v\n", err)
		cancel()
	}

	fmt.Fprintln(out, "✓ Shutdown complete")
	return err
}

func shutdownServer(server *api.HealthServer) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Logger.Warn().Err(err).Msg("Status server shutdown failed")
	}
}

// logEvents writes every published event to the log until the
// subscription closes
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		entry := logger.Debug().
			Str("event_id", event.ID).
			Str("type", string(event.Type))
		for k, v := range event.Metadata {
			entry = entry.Str(k, v)
		}
		entry.Msg(event.Message)
	}
}
