package runtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantPath string
		wantArgs []string
	}{
		{
			name:     "explicit executable",
			cfg:      Config{Executable: "/opt/kiosksync", Args: []string{"run", "--log-json"}, Getenv: env(nil)},
			wantPath: "/opt/kiosksync",
			wantArgs: []string{"run", "--log-json", "--relaunch"},
		},
		{
			name:     "appimage wins over executable",
			cfg:      Config{Args: []string{"run"}, Getenv: env(map[string]string{"APPIMAGE": "/home/kiosk/Signage.AppImage"})},
			wantPath: "/home/kiosk/Signage.AppImage",
			wantArgs: []string{"run", "--relaunch"},
		},
		{
			name:     "relaunch flag not duplicated",
			cfg:      Config{Executable: "/opt/kiosksync", Args: []string{"run", "--relaunch"}, Getenv: env(nil)},
			wantPath: "/opt/kiosksync",
			wantArgs: []string{"run", "--relaunch"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewProcessRelauncher(tt.cfg)
			require.NoError(t, err)

			cmd := r.Command()
			assert.Equal(t, tt.wantPath, cmd.Path)
			assert.Equal(t, tt.wantArgs, cmd.Args)
		})
	}
}

func TestRelaunchStartsThenShutsDown(t *testing.T) {
	var order []string
	var started Command

	r, err := NewProcessRelauncher(Config{
		Executable: "/opt/kiosksync",
		Args:       []string{"run"},
		Getenv:     env(nil),
		Start: func(cmd Command) (int, error) {
			order = append(order, "start")
			started = cmd
			return 4242, nil
		},
		Shutdown: func() { order = append(order, "shutdown") },
	})
	require.NoError(t, err)

	require.NoError(t, r.Relaunch(150))
	assert.Equal(t, []string{"start", "shutdown"}, order)
	assert.Equal(t, []string{"run", "--relaunch"}, started.Args)

	// a second signal does not spawn another process
	assert.Error(t, r.Relaunch(200))
	assert.Equal(t, []string{"start", "shutdown"}, order)
}

func TestRelaunchStartFailure(t *testing.T) {
	shutdown := false
	r, err := NewProcessRelauncher(Config{
		Executable: "/missing/kiosksync",
		Args:       []string{},
		Getenv:     env(nil),
		Start:      func(Command) (int, error) { return 0, errors.New("no such file or directory") },
		Shutdown:   func() { shutdown = true },
	})
	require.NoError(t, err)

	assert.Error(t, r.Relaunch(150))
	assert.False(t, shutdown, "current process keeps running when the replacement fails to start")

	// a failed start does not consume the relaunch
	r.start = func(Command) (int, error) { return 1, nil }
	assert.NoError(t, r.Relaunch(150))
	assert.True(t, shutdown)
}

func TestStartProcessMissingBinary(t *testing.T) {
	_, err := startProcess(Command{Path: "/nonexistent/kiosksync-binary"})
	assert.Error(t, err)
}
