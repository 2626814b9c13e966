package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DownloadTempPrefix names in-flight downloads inside a cache directory
const DownloadTempPrefix = ".download-"

// Manifest is the playlist document served by the /player endpoint
type Manifest struct {
	Images []Asset     `json:"images"`
	Config SlideConfig `json:"config"`
}

// SlideConfig holds display settings that are passed through to the display layer unchanged
type SlideConfig struct {
	SlideDuration int `json:"slide_duration"`
}

// Asset is one playlist entry
type Asset struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Source returns the remote location of the asset. A fully qualified url
// takes precedence over path.
func (a Asset) Source() string {
	if a.URL != "" {
		return a.URL
	}
	return a.Path
}

// Filenames returns the asset filenames in display order
func (m *Manifest) Filenames() []string {
	names := make([]string, 0, len(m.Images))
	for _, a := range m.Images {
		names = append(names, a.Filename)
	}
	return names
}

// DecodeManifest parses a /player response body. A body without an images
// key is rejected so a truncated response can never evict the whole cache.
func DecodeManifest(data []byte) (*Manifest, error) {
	var probe struct {
		Images json.RawMessage `json:"images"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	if len(probe.Images) == 0 || bytes.Equal(probe.Images, []byte("null")) {
		return nil, fmt.Errorf("manifest has no images list")
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ControlResult values reported by the /control endpoint
const (
	ControlResultSuccess = "success"
)

// ControlResponse is the decoded /control response
type ControlResponse struct {
	Result  string  `json:"result"`
	Control Control `json:"control"`
}

// Control carries server-issued control signals
type Control struct {
	Restart UnixTime `json:"restart"`
}

// Succeeded reports whether the control response carries usable signals
func (c *ControlResponse) Succeeded() bool {
	return c.Result == ControlResultSuccess
}

// UnixTime is a timestamp in seconds since the epoch. It decodes from a JSON
// number or a numeric string.
type UnixTime int64

// UnmarshalJSON implements json.Unmarshaler
func (u *UnixTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*u = UnixTime(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %q", s)
	}
	*u = UnixTime(f)
	return nil
}

// Time converts the timestamp to a time.Time
func (u UnixTime) Time() time.Time {
	return time.Unix(int64(u), 0)
}

// Now returns the current time as a UnixTime
func Now() UnixTime {
	return UnixTime(time.Now().Unix())
}

// SyncState is a state of the sync orchestrator
type SyncState string

const (
	SyncStateIdle     SyncState = "idle"
	SyncStateFetching SyncState = "fetching"
	SyncStateBackoff  SyncState = "backoff"
	SyncStateCached   SyncState = "cached"
	SyncStateDegraded SyncState = "degraded"
	SyncStateFailed   SyncState = "failed"
)

// ManifestSource records where a resolved manifest came from
type ManifestSource string

const (
	ManifestSourceFetched  ManifestSource = "fetched"
	ManifestSourceFallback ManifestSource = "fallback"
	ManifestSourceNone     ManifestSource = "none"
)

// SyncRecord is the persisted summary of one sync cycle
type SyncRecord struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Attempts   int            `json:"attempts"`
	State      SyncState      `json:"state"`
	Source     ManifestSource `json:"source"`
	Assets     int            `json:"assets"`
	Downloaded int            `json:"downloaded"`
	Evicted    int            `json:"evicted"`
	Failed     int            `json:"failed"`
	Error      string         `json:"error,omitempty"`
}

// AssetRecord describes a file currently held in the cache
type AssetRecord struct {
	Filename  string    `json:"filename"`
	Source    string    `json:"source"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
}
