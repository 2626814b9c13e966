package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cuemby/kiosksync/pkg/config"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/storage"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved manifest, restart marker and sync history",
	Long: `Show what this kiosk has on disk: the saved manifest, the restart marker,
the cache contents and the most recent sync cycles.

Examples:
  # Human-readable summary
  kiosksync status

  # Machine-readable
  kiosksync status -o json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", "text", "Output format: text, json or yaml")
	statusCmd.Flags().Int("cycles", 5, "Number of recent sync cycles to show")
}

// statusReport is the document printed by the status command
type statusReport struct {
	DeploymentID string               `json:"deployment_id"`
	Tenant       string               `json:"tenant"`
	AppData      string               `json:"app_data"`
	CacheDir     string               `json:"cache_dir"`
	CacheFiles   int                  `json:"cache_files"`
	CacheBytes   int64                `json:"cache_bytes"`
	Manifest     *manifestSummary     `json:"manifest,omitempty"`
	ManifestErr  string               `json:"manifest_error,omitempty"`
	Marker       *markerSummary       `json:"restart_marker,omitempty"`
	History      []*types.SyncRecord  `json:"history,omitempty"`
	Assets       []*types.AssetRecord `json:"assets,omitempty"`
	HistoryErr   string               `json:"history_error,omitempty"`
}

type manifestSummary struct {
	SlideDuration int      `json:"slide_duration"`
	Filenames     []string `json:"filenames"`
}

type markerSummary struct {
	Unix int64     `json:"unix"`
	Time time.Time `json:"time"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("output")
	cycles, _ := cmd.Flags().GetInt("cycles")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report := buildStatus(cfg, cycles)
	return writeStatus(cmd.OutOrStdout(), report, format)
}

func buildStatus(cfg *config.Config, cycles int) *statusReport {
	report := &statusReport{
		DeploymentID: cfg.DeploymentID.String(),
		Tenant:       cfg.Tenant,
		AppData:      cfg.AppData,
		CacheDir:     cfg.CacheDir(),
	}

	report.CacheFiles, report.CacheBytes = metrics.NewCollector(cfg.CacheDir(), 0).Collect()

	manifest, _, err := storage.NewFileManifestStore(cfg.FallbackPath()).Load()
	switch {
	case err == nil:
		report.Manifest = &manifestSummary{
			SlideDuration: manifest.Config.SlideDuration,
			Filenames:     manifest.Filenames(),
		}
	case !errors.Is(err, storage.ErrNotFound):
		report.ManifestErr = err.Error()
	}

	if ts, err := storage.NewFileMarkerStore(cfg.MarkerPath()).Load(); err == nil {
		report.Marker = &markerSummary{Unix: int64(ts), Time: ts.Time().UTC()}
	}

	// a running agent holds the database lock
	history, err := storage.OpenBoltStore(cfg.HistoryPath(), time.Second)
	if err != nil {
		report.HistoryErr = fmt.Sprintf("history unavailable (is the agent running?): %v", err)
		return report
	}
	defer history.Close()

	if report.History, err = history.ListCycles(cycles); err != nil {
		report.HistoryErr = err.Error()
	}
	if report.Assets, err = history.ListAssets(); err != nil {
		report.HistoryErr = err.Error()
	}
	return report
}

func writeStatus(w io.Writer, report *statusReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		// round-trip through JSON so the yaml keys match the json tags
		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		writeStatusText(w, report)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func writeStatusText(w io.Writer, r *statusReport) {
	fmt.Fprintf(w, "Deployment: %s\n", r.DeploymentID)
	fmt.Fprintf(w, "Tenant:     %s\n", r.Tenant)
	fmt.Fprintf(w, "Cache:      %s (%d files, %d bytes)\n", r.CacheDir, r.CacheFiles, r.CacheBytes)

	fmt.Fprintln(w)
	switch {
	case r.Manifest != nil:
		fmt.Fprintf(w, "Saved manifest: %d assets, %ds per slide\n", len(r.Manifest.Filenames), r.Manifest.SlideDuration)
		for _, name := range r.Manifest.Filenames {
			fmt.Fprintf(w, "  - %s\n", name)
		}
	case r.ManifestErr != "":
		fmt.Fprintf(w, "Saved manifest: unreadable: %s\n", r.ManifestErr)
	default:
		fmt.Fprintln(w, "Saved manifest: none")
	}

	if r.Marker != nil {
		fmt.Fprintf(w, "Restart marker: %d (%s)\n", r.Marker.Unix, r.Marker.Time.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "Restart marker: none")
	}

	fmt.Fprintln(w)
	if r.HistoryErr != "" {
		fmt.Fprintf(w, "History: %s\n", r.HistoryErr)
		return
	}

	fmt.Fprintf(w, "Recent sync cycles: %d\n", len(r.History))
	for _, c := range r.History {
		fmt.Fprintf(w, "  %s  %-8s  %-8s  attempts=%d downloaded=%d evicted=%d failed=%d\n",
			c.StartedAt.Format(time.RFC3339), c.State, c.Source, c.Attempts, c.Downloaded, c.Evicted, c.Failed)
		if c.Error != "" {
			fmt.Fprintf(w, "      %s\n", c.Error)
		}
	}

	fmt.Fprintf(w, "Cached assets: %d\n", len(r.Assets))
	for _, a := range r.Assets {
		fmt.Fprintf(w, "  %-32s %10d  %s\n", a.Filename, a.Size, a.Digest)
	}
}
