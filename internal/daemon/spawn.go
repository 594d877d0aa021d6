package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ErrServerNotReady is returned when a spawned server never registered itself.
var ErrServerNotReady = errors.New("server did not become ready")

// SpawnServer starts "applock serve" as a background process and returns its PID.
// The server is detached from the parent process (runs independently).
// An empty executable means the running binary.
func SpawnServer(executable string, args ...string) (int, error) {
	if executable == "" {
		var err error
		executable, err = os.Executable()
		if err != nil {
			return 0, err
		}
	}

	// Self-exec in server mode: applock serve [flags]
	cmd := exec.Command(executable, append([]string{"serve"}, args...)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// WaitForServer polls registry until a live server with pid has registered.
// A zero pid accepts any live server.
func WaitForServer(ctx context.Context, registry domain.ServerRegistry, pid int, interval time.Duration) (*domain.ServerRecord, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rec, err := registry.Lookup()
		if err == nil && rec != nil && (pid == 0 || rec.PID == pid) {
			if alive, _ := registry.IsAlive(); alive {
				return rec, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ErrServerNotReady
		case <-ticker.C:
		}
	}
}
