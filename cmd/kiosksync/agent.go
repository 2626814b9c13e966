package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/kiosksync/pkg/client"
	"github.com/cuemby/kiosksync/pkg/config"
	"github.com/cuemby/kiosksync/pkg/events"
	"github.com/cuemby/kiosksync/pkg/reconciler"
	"github.com/cuemby/kiosksync/pkg/storage"
	"github.com/cuemby/kiosksync/pkg/syncer"
)

// agent holds the components shared by the run and sync commands
type agent struct {
	cfg      *config.Config
	client   *client.Client
	broker   *events.Broker
	history  *storage.BoltStore
	fallback *storage.FileManifestStore
	markers  *storage.FileMarkerStore
	syncer   *syncer.Orchestrator
}

func newAgent(cfg *config.Config, broker *events.Broker) (*agent, error) {
	apiClient, err := client.NewClient(client.Config{
		ServerURL:       cfg.Tenant,
		DeploymentID:    cfg.DeploymentID.String(),
		Password:        cfg.Password,
		Timeout:         cfg.Sync.RequestTimeout.Std(),
		DownloadTimeout: cfg.Sync.DownloadTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	history, err := storage.NewBoltStore(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	fallback := storage.NewFileManifestStore(cfg.FallbackPath())

	rec := reconciler.NewReconciler(apiClient, reconciler.Config{
		Concurrency: cfg.Sync.Concurrency,
		Events:      broker,
	})

	orch, err := syncer.NewOrchestrator(apiClient, rec, syncer.Config{
		DeploymentID: cfg.DeploymentID.String(),
		CacheDir:     cfg.CacheDir(),
		MaxAttempts:  cfg.Sync.MaxAttempts,
		BaseDelay:    cfg.Sync.BaseDelay.Std(),
		Multiplier:   cfg.Sync.Multiplier,
		MaxDelay:     cfg.Sync.MaxDelay.Std(),
		Fallback:     fallback,
		History:      history,
		Events:       broker,
	})
	if err != nil {
		history.Close()
		return nil, err
	}

	return &agent{
		cfg:      cfg,
		client:   apiClient,
		broker:   broker,
		history:  history,
		fallback: fallback,
		markers:  storage.NewFileMarkerStore(cfg.MarkerPath()),
		syncer:   orch,
	}, nil
}

func (a *agent) Close() error {
	return a.history.Close()
}

// reportNoManifest tells whoever is watching the kiosk why the screen is
// empty
func reportNoManifest(w io.Writer, cfg *config.Config, err error) {
	if !errors.Is(err, syncer.ErrNoFallbackAvailable) {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "✗ No content available for this kiosk.")
	fmt.Fprintf(w, "  The content server at %s could not be reached and no\n", cfg.Tenant)
	fmt.Fprintln(w, "  playlist has been saved on this device yet.")
	fmt.Fprintf(w, "  Check the network connection and deployment %s, then restart.\n", cfg.DeploymentID)
}
