// Package daemonctl starts and stops a detached contractflowd process on behalf
// of the CLI.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"contractflow/internal/api"
	"contractflow/internal/config"
)

// DaemonBinary is the daemon executable name.
const DaemonBinary = "contractflowd"

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StatusSource is polled while waiting for a launched daemon.
type StatusSource interface {
	Status(ctx context.Context) (api.DaemonStatus, error)
}

// ResolveBinary finds contractflowd next to the running executable, falling
// back to PATH.
func ResolveBinary() (string, error) {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), DaemonBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", DaemonBinary, err)
	}
	return path, nil
}

// Launch starts a detached daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitReady polls src until the daemon reports running or timeout elapses.
func WaitReady(ctx context.Context, src StatusSource, timeout time.Duration) (api.DaemonStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		status, err := src.Status(ctx)
		if err == nil && status.Running {
			return status, nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return api.DaemonStatus{}, fmt.Errorf("daemon did not become ready within %s: %w", timeout, lastErr)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// PIDPath is where a running daemon records its pid.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "contractflowd.pid")
}

// ReadPID returns the recorded daemon pid.
func ReadPID(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}

// Stop signals the daemon recorded in cfg's pid file. It reports false when
// no daemon was running.
func Stop(cfg *config.Config) (bool, error) {
	pid, err := ReadPID(PIDPath(cfg))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			_ = os.Remove(PIDPath(cfg))
			return false, nil
		}
		return false, fmt.Errorf("signal daemon pid %d: %w", pid, err)
	}
	return true, nil
}
