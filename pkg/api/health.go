package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/cuemby/kiosksync/pkg/reconciler"
	"github.com/cuemby/kiosksync/pkg/syncer"
	"github.com/cuemby/kiosksync/pkg/types"
)

// OutcomeSource exposes the latest sync result
type OutcomeSource interface {
	Last() *syncer.Outcome
	State() types.SyncState

	// Err is set when the latest cycle ended with no manifest at all
	Err() error
}

// HealthServer serves health, metrics and the resolved manifest over HTTP
type HealthServer struct {
	source OutcomeSource
	mux    *http.ServeMux
	server *http.Server
}

// NewHealthServer creates a new status HTTP server
func NewHealthServer(source OutcomeSource) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		source: source,
		mux:    mux,
	}

	// Register endpoints
	mux.HandleFunc("/health", getOnly(metrics.HealthHandler()))
	mux.HandleFunc("/ready", getOnly(metrics.ReadyHandler()))
	mux.HandleFunc("/live", getOnly(metrics.LivenessHandler()))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/manifest", getOnly(hs.manifestHandler))

	hs.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return hs
}

// Start listens on addr and serves until Shutdown
func (hs *HealthServer) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return hs.Serve(l)
}

// Serve serves on l until Shutdown
func (hs *HealthServer) Serve(l net.Listener) error {
	metrics.RegisterComponent(metrics.ComponentAPI, true, "")
	log.Logger.Info().Str("addr", l.Addr().String()).Msg("Status server listening")

	err := hs.server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

// ManifestResponse is the /manifest document consumed by the display
type ManifestResponse struct {
	DeploymentID  string               `json:"deployment_id"`
	CacheDir      string               `json:"cache_dir"`
	Source        types.ManifestSource `json:"source"`
	State         types.SyncState      `json:"state"`
	CycleID       string               `json:"cycle_id,omitempty"`
	SlideDuration int                  `json:"slide_duration"`
	Images        []ManifestImage      `json:"images"`
}

// ManifestImage is one playlist entry with its cache location
type ManifestImage struct {
	Filename  string `json:"filename"`
	Source    string `json:"source"`
	LocalPath string `json:"local_path,omitempty"`
	Cached    bool   `json:"cached"`
}

// manifestHandler implements the /manifest endpoint
func (hs *HealthServer) manifestHandler(w http.ResponseWriter, r *http.Request) {
	var outcome *syncer.Outcome
	if hs.source != nil {
		outcome = hs.source.Last()
	}
	if outcome == nil {
		if err := hs.sourceErr(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "failed",
				"error":   "no manifest available",
				"message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "no manifest resolved yet",
		})
		return
	}

	response := ManifestResponse{
		DeploymentID:  outcome.DeploymentID,
		CacheDir:      outcome.CacheDir,
		Source:        outcome.Source,
		State:         hs.source.State(),
		CycleID:       outcome.CycleID,
		SlideDuration: outcome.Manifest.Config.SlideDuration,
		Images:        make([]ManifestImage, 0, len(outcome.Manifest.Images)),
	}
	for _, asset := range outcome.Manifest.Images {
		image := ManifestImage{
			Filename: asset.Filename,
			Source:   asset.Source(),
		}
		// the reconciler never stores these, so there is no path to hand out
		if reconciler.ValidFilename(asset.Filename) {
			image.LocalPath = outcome.LocalPath(asset)
			_, err := os.Stat(image.LocalPath)
			image.Cached = err == nil
		}
		response.Images = append(response.Images, image)
	}

	writeJSON(w, http.StatusOK, response)
}

func (hs *HealthServer) sourceErr() error {
	if hs.source == nil {
		return nil
	}
	return hs.source.Err()
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
