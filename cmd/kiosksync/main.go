package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/kiosksync/pkg/config"
	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kiosksync",
	Short: "kiosksync - content sync agent for signage kiosks",
	Long: `kiosksync keeps an unattended signage kiosk in step with its deployment.

It fetches the playlist manifest from the content server, mirrors the media
it names into a local per-deployment cache, falls back to the last saved
manifest while the server is unreachable, and restarts itself when the
server publishes a new restart request.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"kiosksync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	addGlobalFlags(rootCmd)

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("app-data", "", "Application data directory (default: <user config dir>/"+config.AppID+")")
	flags.String("config", "", "Config file (default: <app-data>/"+config.ConfigFileName+")")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flags.Bool("log-json", false, "Log as JSON instead of console text")
	flags.Bool("relaunch", false, "Set on a process started by a server-requested restart")
	_ = flags.MarkHidden("relaunch")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kiosksync version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// loadConfig resolves app-data and reads the config the persistent flags
// point at
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	appData, _ := cmd.Flags().GetString("app-data")
	configPath, _ := cmd.Flags().GetString("config")

	if appData == "" {
		dir, err := config.DefaultAppData()
		if err != nil {
			return nil, err
		}
		appData = dir
	}
	if configPath == "" {
		configPath = filepath.Join(appData, config.ConfigFileName)
	}

	cfg, err := config.LoadFile(configPath, appData)
	if err != nil {
		return nil, err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	return cfg, nil
}

// initLogging configures the global logger. toFile is false for the
// one-shot commands so they do not write to the agent's log.
func initLogging(cmd *cobra.Command, cfg *config.Config, toFile bool) (io.Closer, error) {
	logCfg := log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     cmd.ErrOrStderr(),
	}
	if toFile && cfg.Log.ToFile {
		logCfg.File = cfg.LogPath()
	}

	closer, err := log.Init(logCfg)
	if err != nil {
		return nil, err
	}
	metrics.SetVersion(Version)
	return closer, nil
}
