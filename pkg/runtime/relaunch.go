package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/cuemby/kiosksync/pkg/log"
	"github.com/cuemby/kiosksync/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// RelaunchFlag marks a process started by a relaunch
	RelaunchFlag = "--relaunch"

	// appImageEnv is set by the AppImage runtime to the image path; the
	// mounted executable disappears once the old process exits
	appImageEnv = "APPIMAGE"
)

// Command is a process to start
type Command struct {
	Path string
	Args []string
}

// StartFunc starts a detached process and returns its pid
type StartFunc func(cmd Command) (int, error)

// Config holds relauncher configuration
type Config struct {
	// Executable overrides the binary to start (default: $APPIMAGE, else
	// the running executable)
	Executable string

	// Args are the arguments to pass on (default: os.Args[1:])
	Args []string

	// Getenv reads the environment (default os.Getenv)
	Getenv func(string) string

	// Start spawns the process (default: os/exec)
	Start StartFunc

	// Shutdown stops the current process once the new one has started
	Shutdown func()
}

// ProcessRelauncher replaces the running agent with a fresh copy of itself
type ProcessRelauncher struct {
	executable string
	args       []string
	start      StartFunc
	shutdown   func()
	logger     zerolog.Logger

	mu         sync.Mutex
	relaunched bool
}

// NewProcessRelauncher creates a relauncher for the current process
func NewProcessRelauncher(cfg Config) (*ProcessRelauncher, error) {
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	executable := cfg.Executable
	if executable == "" {
		executable = getenv(appImageEnv)
	}
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		executable = self
	}

	args := cfg.Args
	if args == nil && len(os.Args) > 1 {
		args = os.Args[1:]
	}

	start := cfg.Start
	if start == nil {
		start = startProcess
	}

	return &ProcessRelauncher{
		executable: executable,
		args:       args,
		start:      start,
		shutdown:   cfg.Shutdown,
		logger:     log.WithComponent("relauncher"),
	}, nil
}

// Command returns the process a relaunch would start: the same executable
// and arguments, with RelaunchFlag appended once
func (r *ProcessRelauncher) Command() Command {
	args := make([]string, 0, len(r.args)+1)
	for _, arg := range r.args {
		if arg != RelaunchFlag {
			args = append(args, arg)
		}
	}
	return Command{Path: r.executable, Args: append(args, RelaunchFlag)}
}

// Relaunch starts the replacement process and then invokes the shutdown
// hook. A relauncher fires at most once.
func (r *ProcessRelauncher) Relaunch(restart types.UnixTime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.relaunched {
		return fmt.Errorf("relaunch already in progress")
	}

	cmd := r.Command()
	pid, err := r.start(cmd)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	r.relaunched = true

	r.logger.Info().
		Str("executable", cmd.Path).
		Strs("args", cmd.Args).
		Int("pid", pid).
		Int64("restart", int64(restart)).
		Msg("Started replacement process")

	if r.shutdown != nil {
		r.shutdown()
	}
	return nil
}

func startProcess(c Command) (int, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release process %d: %w", pid, err)
	}
	return pid, nil
}
