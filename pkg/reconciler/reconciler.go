package reconciler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/kiosksync/pkg/events"
	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency caps simultaneous asset downloads
const DefaultConcurrency = 4

// tempPrefix names in-flight downloads. Leftovers from an interrupted pass
// are not referenced by any manifest and get evicted by the next one.
const tempPrefix = types.DownloadTempPrefix

// ErrInvalidFilename is returned for asset filenames that would escape the
// cache directory
var ErrInvalidFilename = errors.New("invalid asset filename")

// Downloader opens the body of a remote asset
type Downloader interface {
	Download(ctx context.Context, source string) (io.ReadCloser, error)
}

// Op identifies the reconciler operation that failed
type Op string

const (
	OpDownload Op = "download"
	OpEvict    Op = "evict"
)

// AssetError is a failure confined to one asset
type AssetError struct {
	Filename string
	Op       Op
	Err      error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Filename, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// Config holds reconciler configuration
type Config struct {
	// Concurrency caps simultaneous downloads (default 4)
	Concurrency int

	// Events receives per-asset events (optional)
	Events events.Publisher
}

// Reconciler makes a cache directory match a manifest's asset list
type Reconciler struct {
	downloader  Downloader
	concurrency int
	events      events.Publisher
	logger      zerolog.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(downloader Downloader, cfg Config) *Reconciler {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Reconciler{
		downloader:  downloader,
		concurrency: concurrency,
		events:      cfg.Events,
		logger:      log.WithComponent("reconciler"),
	}
}

// Plan is the work a reconciliation pass will do, computed from the
// directory state at the start of the pass
type Plan struct {
	// Want maps every valid filename to its source, last entry winning
	Want map[string]string

	// Download holds assets missing from the cache, one per filename
	Download []types.Asset

	// Present holds wanted filenames already in the cache
	Present []string

	// Evict holds plain files in the cache that no asset names
	Evict []string

	// Invalid holds filenames rejected by validation
	Invalid []string
}

// Plan computes the download and eviction sets without touching anything
func (r *Reconciler) Plan(assets []types.Asset, cacheDir string) (*Plan, error) {
	plan := &Plan{Want: make(map[string]string, len(assets))}

	var order []string
	for _, asset := range assets {
		if !ValidFilename(asset.Filename) {
			plan.Invalid = append(plan.Invalid, asset.Filename)
			continue
		}
		if _, seen := plan.Want[asset.Filename]; !seen {
			order = append(order, asset.Filename)
		}
		plan.Want[asset.Filename] = asset.Source()
	}

	for _, name := range order {
		if _, err := os.Lstat(filepath.Join(cacheDir, name)); err == nil {
			plan.Present = append(plan.Present, name)
			continue
		}
		plan.Download = append(plan.Download, types.Asset{Filename: name, Path: plan.Want[name]})
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory %s: %w", cacheDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, wanted := plan.Want[entry.Name()]; !wanted {
			plan.Evict = append(plan.Evict, entry.Name())
		}
	}

	return plan, nil
}

// Download is the outcome of fetching one asset
type Download struct {
	Asset  types.Asset
	Size   int64
	Digest string
	Err    error
}

// Result summarizes a reconciliation pass
type Result struct {
	Downloaded []Download
	Present    []string
	Evicted    []string
	Failed     []*AssetError
}

// Err joins every per-asset failure, or returns nil
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Reconcile downloads every asset missing from cacheDir and deletes every
// plain file the assets do not name. Per-asset failures are collected in the
// result and never stop the pass; eviction runs even when downloads failed.
// The returned error is reserved for a cache directory that cannot be
// created or listed.
func (r *Reconciler) Reconcile(ctx context.Context, assets []types.Asset, cacheDir string) (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", cacheDir, err)
	}

	plan, err := r.Plan(assets, cacheDir)
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Int("assets", len(assets)).
		Int("download", len(plan.Download)).
		Int("present", len(plan.Present)).
		Int("evict", len(plan.Evict)).
		Msg("Reconciling cache")

	result := &Result{Present: plan.Present}

	for _, name := range plan.Invalid {
		r.logger.Warn().Str("asset", name).Msg("Skipping asset with invalid filename")
		result.Failed = append(result.Failed, &AssetError{Filename: name, Op: OpDownload, Err: ErrInvalidFilename})
	}

	for _, d := range r.downloadAll(ctx, cacheDir, plan.Download) {
		if d.Err != nil {
			result.Failed = append(result.Failed, &AssetError{Filename: d.Asset.Filename, Op: OpDownload, Err: d.Err})
			continue
		}
		result.Downloaded = append(result.Downloaded, d)
	}

	for _, name := range plan.Evict {
		if err := r.evict(cacheDir, name); err != nil {
			result.Failed = append(result.Failed, &AssetError{Filename: name, Op: OpEvict, Err: err})
			continue
		}
		result.Evicted = append(result.Evicted, name)
	}

	return result, nil
}

// downloadAll fetches assets through a bounded pool. Each goroutine owns one
// slot of the returned slice.
func (r *Reconciler) downloadAll(ctx context.Context, cacheDir string, assets []types.Asset) []Download {
	downloads := make([]Download, len(assets))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, asset := range assets {
		g.Go(func() error {
			downloads[i] = r.download(ctx, cacheDir, asset)
			return nil
		})
	}
	_ = g.Wait()

	return downloads
}

func (r *Reconciler) download(ctx context.Context, cacheDir string, asset types.Asset) Download {
	logger := log.WithAsset(r.logger, asset.Filename)
	d := Download{Asset: asset}

	size, digest, err := r.fetchTo(ctx, cacheDir, asset)
	if err != nil {
		d.Err = err
		metrics.AssetDownloadsTotal.WithLabelValues("failure").Inc()
		logger.Warn().Err(err).Str("source", asset.Source()).Msg("Asset download failed")
		r.publish(events.New(events.EventAssetFailed, "asset download failed",
			"asset", asset.Filename, "error", err.Error()))
		return d
	}

	d.Size = size
	d.Digest = digest
	metrics.AssetDownloadsTotal.WithLabelValues("success").Inc()
	metrics.AssetDownloadBytes.Add(float64(size))
	logger.Info().Str("source", asset.Source()).Int64("bytes", size).Msg("Downloaded asset")
	r.publish(events.New(events.EventAssetDownloaded, "asset downloaded",
		"asset", asset.Filename, "digest", digest, "size", strconv.FormatInt(size, 10)))
	return d
}

// fetchTo streams an asset into a temp file and renames it into place, so
// the final name only ever holds a complete body
func (r *Reconciler) fetchTo(ctx context.Context, cacheDir string, asset types.Asset) (int64, string, error) {
	body, err := r.downloader.Download(ctx, asset.Source())
	if err != nil {
		return 0, "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(cacheDir, tempPrefix+"*")
	if err != nil {
		return 0, "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, "", fmt.Errorf("failed to write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, "", fmt.Errorf("failed to close asset: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return 0, "", fmt.Errorf("failed to chmod asset: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(cacheDir, asset.Filename)); err != nil {
		os.Remove(tmpName)
		return 0, "", fmt.Errorf("failed to move asset into place: %w", err)
	}

	return size, "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}

func (r *Reconciler) evict(cacheDir, name string) error {
	err := os.Remove(filepath.Join(cacheDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		metrics.AssetEvictionsTotal.WithLabelValues("failure").Inc()
		r.logger.Warn().Err(err).Str("asset", name).Msg("Eviction failed")
		return err
	}

	metrics.AssetEvictionsTotal.WithLabelValues("success").Inc()
	r.logger.Info().Str("asset", name).Msg("Evicted file not in manifest")
	r.publish(events.New(events.EventAssetEvicted, "asset evicted", "asset", name))
	return nil
}

func (r *Reconciler) publish(event *events.Event) {
	if r.events != nil {
		r.events.Publish(event)
	}
}

// ValidFilename reports whether name can be stored directly inside a cache
// directory
func ValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
