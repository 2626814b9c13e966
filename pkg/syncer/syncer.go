package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/kiosksync/pkg/client"
	"github.com/cuemby/kiosksync/pkg/events"
	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/reconciler"
	"github.com/cuemby/kiosksync/pkg/scheduler"
	"github.com/cuemby/kiosksync/pkg/storage"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 30 * time.Second
	DefaultMultiplier  = 1.5
	DefaultMaxDelay    = 300 * time.Second
)

// ErrNoFallbackAvailable means every fetch attempt failed and no manifest
// was ever saved. The agent has nothing to show.
var ErrNoFallbackAvailable = errors.New("no manifest available: server unreachable and no saved manifest")

// allStates feeds the state gauge so exactly one label is set at a time
var allStates = []string{
	string(types.SyncStateIdle),
	string(types.SyncStateFetching),
	string(types.SyncStateBackoff),
	string(types.SyncStateCached),
	string(types.SyncStateDegraded),
	string(types.SyncStateFailed),
}

// ManifestFetcher fetches the current manifest and its raw body
type ManifestFetcher interface {
	FetchManifest(ctx context.Context) (*types.Manifest, []byte, error)
}

// CacheReconciler applies an asset list to a cache directory
type CacheReconciler interface {
	Reconcile(ctx context.Context, assets []types.Asset, cacheDir string) (*reconciler.Result, error)
}

// Config holds orchestrator configuration
type Config struct {
	DeploymentID string
	CacheDir     string

	// MaxAttempts bounds the retries after the initial fetch
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Fallback persists the last fetched manifest (required)
	Fallback storage.ManifestStore

	// History records cycles and the asset ledger (optional)
	History storage.HistoryStore

	// Events receives sync events (optional)
	Events events.Publisher

	// Sleeper waits out backoff delays (default: real timers)
	Sleeper scheduler.Sleeper
}

// BackoffDelay returns the wait after the given zero-based failed attempt:
// min(30s * 1.5^attempt, 300s)
func BackoffDelay(attempt int) time.Duration {
	return backoffDelay(DefaultBaseDelay, DefaultMultiplier, DefaultMaxDelay, attempt)
}

func backoffDelay(base time.Duration, multiplier float64, ceiling time.Duration, attempt int) time.Duration {
	delay := float64(base)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(ceiling) {
			return ceiling
		}
	}
	return min(time.Duration(delay), ceiling)
}

// Outcome is a resolved manifest together with where its files live
type Outcome struct {
	Manifest     *types.Manifest
	Source       types.ManifestSource
	State        types.SyncState
	CacheDir     string
	DeploymentID string

	// Reconcile is nil when the manifest came from the fallback store
	Reconcile *reconciler.Result

	Attempts int
	CycleID  string
}

// LocalPath returns the cache path of an asset
func (o *Outcome) LocalPath(asset types.Asset) string {
	return filepath.Join(o.CacheDir, asset.Filename)
}

// Orchestrator resolves the manifest for a deployment: it fetches with
// bounded exponential backoff, reconciles the cache on success and falls
// back to the saved manifest when the server stays unreachable.
type Orchestrator struct {
	fetcher    ManifestFetcher
	reconciler CacheReconciler
	cfg        Config
	logger     zerolog.Logger

	mu    sync.RWMutex
	state types.SyncState
	last  *Outcome
	err   error
}

// NewOrchestrator creates a new sync orchestrator
func NewOrchestrator(fetcher ManifestFetcher, rec CacheReconciler, cfg Config) (*Orchestrator, error) {
	if cfg.Fallback == nil {
		return nil, fmt.Errorf("fallback manifest store is required")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = scheduler.TimerSleeper{}
	}

	metrics.RegisterComponent(metrics.ComponentSync, false, "not synced yet")

	return &Orchestrator{
		fetcher:    fetcher,
		reconciler: rec,
		cfg:        cfg,
		logger:     log.WithDeploymentID(cfg.DeploymentID).With().Str("component", "syncer").Logger(),
		state:      types.SyncStateIdle,
	}, nil
}

// State returns the current orchestrator state
func (o *Orchestrator) State() types.SyncState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Last returns the most recent outcome, or nil before the first success
func (o *Orchestrator) Last() *Outcome {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Err returns the error that ended the latest cycle without a manifest,
// or nil
func (o *Orchestrator) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.err
}

// Run performs one sync cycle: an initial fetch plus up to MaxAttempts
// retries, each preceded by its backoff delay. It returns
// ErrNoFallbackAvailable when every fetch failed and nothing was saved, or
// ctx's error if cancelled while waiting. Every other failure is absorbed
// into the outcome.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	record := &types.SyncRecord{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Source:    types.ManifestSourceNone,
	}
	o.setErr(nil)

	for attempt := 0; ; attempt++ {
		o.setState(types.SyncStateFetching)
		manifest, raw, err := o.fetcher.FetchManifest(ctx)
		if err == nil {
			metrics.SyncAttemptsTotal.WithLabelValues("success").Inc()
			return o.applyFetched(ctx, record, attempt+1, manifest, raw), nil
		}

		metrics.SyncAttemptsTotal.WithLabelValues("failure").Inc()
		o.logFetchFailure(attempt+1, err)

		if ctx.Err() != nil {
			return o.abort(record, attempt+1, ctx.Err())
		}
		if attempt >= o.cfg.MaxAttempts {
			return o.degrade(record, attempt+1, err)
		}

		delay := backoffDelay(o.cfg.BaseDelay, o.cfg.Multiplier, o.cfg.MaxDelay, attempt)
		o.setState(types.SyncStateBackoff)
		o.logger.Info().
			Int("retry", attempt+1).
			Dur("delay", delay).
			Msg("Retrying manifest fetch after backoff")

		if err := o.cfg.Sleeper.Sleep(ctx, delay); err != nil {
			return o.abort(record, attempt+1, err)
		}
	}
}

func (o *Orchestrator) logFetchFailure(attempt int, err error) {
	event := o.logger.Warn().Err(err).Int("attempt", attempt).Int("max_retries", o.cfg.MaxAttempts)

	var statusErr *client.StatusError
	switch {
	case errors.Is(err, client.ErrTimeout):
		event.Str("reason", "timeout")
	case client.IsUnreachable(err):
		event.Str("reason", "unreachable")
	case errors.As(err, &statusErr):
		event.Str("reason", "status").Int("status", statusErr.StatusCode)
	case errors.Is(err, client.ErrDecode):
		event.Str("reason", "decode")
	}
	event.Msg("Manifest fetch failed")
}

// applyFetched persists the manifest, then reconciles the cache exactly once
func (o *Orchestrator) applyFetched(ctx context.Context, record *types.SyncRecord, attempts int, manifest *types.Manifest, raw []byte) *Outcome {
	o.logger.Info().
		Int("attempt", attempts).
		Int("assets", len(manifest.Images)).
		Msg("Manifest fetched")
	o.publish(events.New(events.EventManifestFetched, "manifest fetched",
		"deployment_id", o.cfg.DeploymentID, "assets", strconv.Itoa(len(manifest.Images))))

	// The fallback must be written before the cache is touched
	if err := o.cfg.Fallback.Save(raw); err != nil {
		o.logger.Error().Err(err).Msg("Failed to save fallback manifest")
	}

	outcome := &Outcome{
		Manifest:     manifest,
		Source:       types.ManifestSourceFetched,
		State:        types.SyncStateCached,
		CacheDir:     o.cfg.CacheDir,
		DeploymentID: o.cfg.DeploymentID,
		Attempts:     attempts,
		CycleID:      record.ID,
	}
	record.Attempts = attempts
	record.Source = types.ManifestSourceFetched
	record.Assets = len(manifest.Images)

	result, err := o.reconciler.Reconcile(ctx, manifest.Images, o.cfg.CacheDir)
	switch {
	case err != nil:
		o.logger.Error().Err(err).Str("cache_dir", o.cfg.CacheDir).Msg("Cache reconciliation failed")
		record.Error = err.Error()
		metrics.MarkDegraded(metrics.ComponentSync, "cache unusable: "+err.Error())
	default:
		outcome.Reconcile = result
		record.Downloaded = len(result.Downloaded)
		record.Evicted = len(result.Evicted)
		record.Failed = len(result.Failed)
		if ferr := result.Err(); ferr != nil {
			record.Error = ferr.Error()
			o.logger.Warn().Int("failed", len(result.Failed)).Msg("Some assets did not sync")
			metrics.MarkDegraded(metrics.ComponentSync, fmt.Sprintf("%d assets failed to sync", len(result.Failed)))
		} else {
			metrics.UpdateComponent(metrics.ComponentSync, true, "manifest fetched")
		}
		o.updateLedger(result)
	}

	o.setState(types.SyncStateCached)
	metrics.SyncCyclesTotal.WithLabelValues(string(types.ManifestSourceFetched)).Inc()
	o.finish(record, types.SyncStateCached)
	o.publish(events.New(events.EventSyncCompleted, "sync completed",
		"deployment_id", o.cfg.DeploymentID,
		"downloaded", strconv.Itoa(record.Downloaded),
		"evicted", strconv.Itoa(record.Evicted),
		"failed", strconv.Itoa(record.Failed)))

	o.logger.Info().
		Int("downloaded", record.Downloaded).
		Int("evicted", record.Evicted).
		Int("failed", record.Failed).
		Msg("Sync completed")

	o.setLast(outcome)
	return outcome
}

// degrade resolves the saved manifest after every attempt failed. The saved
// manifest is served as-is; the cache is not reconciled against it.
func (o *Orchestrator) degrade(record *types.SyncRecord, attempts int, lastErr error) (*Outcome, error) {
	o.setState(types.SyncStateDegraded)
	record.Attempts = attempts

	manifest, _, err := o.cfg.Fallback.Load()
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Error().Err(err).Msg("Saved manifest is unreadable")
		}

		o.setState(types.SyncStateFailed)
		record.Error = fmt.Sprintf("%v (last fetch error: %v)", ErrNoFallbackAvailable, lastErr)
		o.finish(record, types.SyncStateFailed)
		metrics.UpdateComponent(metrics.ComponentSync, false, "no manifest available")
		o.publish(events.New(events.EventSyncFailed, "no manifest available",
			"deployment_id", o.cfg.DeploymentID, "error", fmt.Sprint(lastErr)))
		o.logger.Error().Err(lastErr).Int("attempts", attempts).Msg("Sync failed and no saved manifest exists")

		err = fmt.Errorf("%w: last error: %v", ErrNoFallbackAvailable, lastErr)
		o.setErr(err)
		return nil, err
	}

	record.Source = types.ManifestSourceFallback
	record.Assets = len(manifest.Images)
	record.Error = fmt.Sprint(lastErr)
	o.finish(record, types.SyncStateDegraded)

	metrics.SyncCyclesTotal.WithLabelValues(string(types.ManifestSourceFallback)).Inc()
	metrics.MarkDegraded(metrics.ComponentSync, "serving saved manifest")
	o.publish(events.New(events.EventSyncDegraded, "serving saved manifest",
		"deployment_id", o.cfg.DeploymentID, "error", fmt.Sprint(lastErr)))
	o.logger.Warn().
		Int("attempts", attempts).
		Int("assets", len(manifest.Images)).
		Msg("Server unreachable, serving saved manifest")

	outcome := &Outcome{
		Manifest:     manifest,
		Source:       types.ManifestSourceFallback,
		State:        types.SyncStateDegraded,
		CacheDir:     o.cfg.CacheDir,
		DeploymentID: o.cfg.DeploymentID,
		Attempts:     attempts,
		CycleID:      record.ID,
	}
	o.setLast(outcome)
	return outcome, nil
}

func (o *Orchestrator) abort(record *types.SyncRecord, attempts int, err error) (*Outcome, error) {
	o.setState(types.SyncStateFailed)
	record.Attempts = attempts
	record.Error = err.Error()
	o.finish(record, types.SyncStateFailed)
	return nil, err
}

func (o *Orchestrator) updateLedger(result *reconciler.Result) {
	if o.cfg.History == nil {
		return
	}

	now := time.Now()
	for _, d := range result.Downloaded {
		err := o.cfg.History.PutAsset(&types.AssetRecord{
			Filename:  d.Asset.Filename,
			Source:    d.Asset.Source(),
			Digest:    d.Digest,
			Size:      d.Size,
			FetchedAt: now,
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("asset", d.Asset.Filename).Msg("Failed to record asset")
		}
	}
	for _, name := range result.Evicted {
		if err := o.cfg.History.DeleteAsset(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			o.logger.Warn().Err(err).Str("asset", name).Msg("Failed to remove asset record")
		}
	}
}

func (o *Orchestrator) finish(record *types.SyncRecord, state types.SyncState) {
	record.State = state
	record.FinishedAt = time.Now()

	if o.cfg.History == nil {
		return
	}
	if err := o.cfg.History.RecordCycle(record); err != nil {
		o.logger.Warn().Err(err).Str("cycle_id", record.ID).Msg("Failed to record sync cycle")
	}
}

func (o *Orchestrator) setState(state types.SyncState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	metrics.SetSyncState(string(state), allStates)
}

func (o *Orchestrator) setLast(outcome *Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = outcome
}

func (o *Orchestrator) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *Orchestrator) publish(event *events.Event) {
	if o.cfg.Events != nil {
		o.cfg.Events.Publish(event)
	}
}
