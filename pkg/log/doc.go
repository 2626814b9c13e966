/*
Package log provides structured logging for kiosksync using zerolog.

The package wraps a single global zerolog.Logger that every other package
derives child loggers from. Kiosks run unattended, so besides the console the
logger can tee every line as JSON into a file under the application data
directory, where an operator can collect it later.

# Usage

Initializing the logger:

	closer, err := log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		File:       "/home/kiosk/.config/com.chrisprimes.signage/log.txt",
	})
	if err != nil {
		return err
	}
	defer closer.Close()

Component loggers:

	logger := log.WithComponent("reconciler")
	logger.Info().Str("asset", "a.jpg").Msg("Downloaded asset")

	assetLog := log.WithAsset(logger, "a.jpg")
	assetLog.Warn().Err(err).Msg("Download failed")

# Log Levels

  - debug: heartbeat no-ops, per-file skip decisions
  - info: sync state transitions, downloads, evictions, restarts
  - warn: recoverable failures (fetch errors, failed downloads)
  - error: fallback unavailable, marker or manifest persistence failures

Before Init is called the global logger writes JSON to stdout, which keeps
tests and library use quiet-but-safe.
*/
package log
