package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/kiosksync/pkg/types"
)

// Collector periodically samples the deployment cache directory
type Collector struct {
	cacheDir string
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector for cacheDir
func NewCollector(cacheDir string, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		cacheDir: cacheDir,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the cache directory once and returns the file count and
// total size it recorded. In-flight downloads are not counted.
func (c *Collector) Collect() (files int, bytes int64) {
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		CacheFiles.Set(0)
		CacheBytes.Set(0)
		return 0, 0
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), types.DownloadTempPrefix) {
			continue
		}
		info, err := os.Stat(filepath.Join(c.cacheDir, entry.Name()))
		if err != nil {
			continue
		}
		files++
		bytes += info.Size()
	}

	CacheFiles.Set(float64(files))
	CacheBytes.Set(float64(bytes))
	return files, bytes
}
