package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ry-diffusion/Tina/internal/api"
	"github.com/ry-diffusion/Tina/internal/config"
)

const (
	probeTimeout = 2 * time.Second
	// daemonWait covers a first start that installs engine dependencies.
	daemonWait = 2 * time.Minute
)

// ErrDaemonUnavailable is returned when wppd does not answer and was not
// started.
var ErrDaemonUnavailable = errors.New("daemon not running")

// connect returns a client for a responsive daemon, starting one when
// allowed.
func connect(ctx context.Context, opts *RootOptions) (*api.Client, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	socketPath := cfg.Layout().SocketPath()

	if !probe(ctx, socketPath) {
		if opts.NoAutostart {
			return nil, fmt.Errorf("%w at %s", ErrDaemonUnavailable, socketPath)
		}
		fmt.Fprintln(opts.ErrOut, "starting wppd...")
		if err := startDaemon(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("start daemon: %w", err)
		}
		if !waitForDaemon(ctx, socketPath, daemonWait) {
			return nil, fmt.Errorf("%w: wppd did not answer within %s, see %s", ErrDaemonUnavailable, daemonWait, cfg.Layout().LogPath())
		}
	}
	return api.Dial(socketPath)
}

// probe makes a real status call on a fresh connection rather than just
// connecting the socket.
func probe(ctx context.Context, socketPath string) bool {
	c, err := api.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err = c.GetStatus(ctx)
	return err == nil
}

// startDaemon launches wppd detached, preferring the binary next to wppctl.
func startDaemon(configPath string) error {
	wppd := "wppd"
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "wppd")
		if _, err := os.Stat(sibling); err == nil {
			wppd = sibling
		}
	}

	cmd := exec.Command(wppd, "--config", configPath)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	// Inherit stderr so startup errors are visible.
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func waitForDaemon(ctx context.Context, socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probe(ctx, socketPath) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(300 * time.Millisecond):
		}
	}
	return false
}
