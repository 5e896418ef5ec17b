package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/ry-diffusion/Tina/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newTestBridge(t *testing.T, mode string) *Bridge {
	t.Helper()
	b := NewBridge(fakeEngineOptions(t, engineProject(t, true), mode), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Stop() })
	return b
}

// nextEvent returns the next decodable event from the bridge.
func nextEvent(t *testing.T, b *Bridge) protocol.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case line := <-b.Lines():
			if evt, ok := b.Decode(line); ok {
				return evt
			}
		case <-timeout:
			t.Fatal("timed out waiting for engine event")
		}
	}
}

func processGone(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestSendBeforeStart(t *testing.T) {
	b := NewBridge(Options{}, nil)
	err := b.Send(protocol.StartAccount{AccountID: "acme"})
	assert.ErrorIs(t, err, ErrProcessNotRunning)
	assert.False(t, b.IsRunning())
}

func TestStartIsIdempotent(t *testing.T) {
	b := newTestBridge(t, "echo")

	require.NoError(t, b.Start(context.Background()))
	pid := b.PID()
	require.NotZero(t, pid)

	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, pid, b.PID(), "second Start must not spawn a new engine")
	assert.True(t, b.IsRunning())
}

func TestStopIsIdempotent(t *testing.T) {
	b := newTestBridge(t, "echo")

	require.NoError(t, b.Stop(), "stop before start")
	require.NoError(t, b.Start(context.Background()))
	pid := b.PID()

	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())
	assert.False(t, b.IsRunning())
	assert.True(t, processGone(pid), "engine %d still alive", pid)
	assert.ErrorIs(t, b.Send(protocol.GetQrCode{AccountID: "acme"}), ErrProcessNotRunning)
}

func TestCommandsDeliveredInOrder(t *testing.T) {
	b := newTestBridge(t, "echo")
	require.NoError(t, b.Start(context.Background()))

	_, ok := nextEvent(t, b).(protocol.Ready)
	require.True(t, ok, "first event should be Ready")

	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, b.Send(protocol.StartAccount{AccountID: fmt.Sprintf("acct-%02d", i)}))
	}

	for i := 0; i < n; i++ {
		res, ok := nextEvent(t, b).(protocol.CommandResult)
		require.True(t, ok)
		data, ok := res.Data.(map[string]any)
		require.True(t, ok, "data = %#v", res.Data)
		assert.Equal(t, fmt.Sprintf("acct-%02d", i), data["account_id"])
		assert.EqualValues(t, i+1, data["seq"])
	}
}

func TestStopGracefulShutdown(t *testing.T) {
	b := newTestBridge(t, "echo")
	require.NoError(t, b.Start(context.Background()))
	nextEvent(t, b)
	pid := b.PID()

	start := time.Now()
	require.NoError(t, b.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, processGone(pid))
}

func TestStopForceKillsUnresponsiveEngine(t *testing.T) {
	b := newTestBridge(t, "ignore-shutdown")
	require.NoError(t, b.Start(context.Background()))
	nextEvent(t, b)
	pid := b.PID()

	start := time.Now()
	require.NoError(t, b.Stop())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, ShutdownGrace)
	assert.Less(t, elapsed, ShutdownGrace+time.Second)
	assert.True(t, processGone(pid), "engine %d survived Stop", pid)
}

func TestMissingManifestPreventsSpawn(t *testing.T) {
	dir := t.TempDir()
	b := NewBridge(fakeEngineOptions(t, dir, "marker"), zaptest.NewLogger(t))

	err := b.Start(context.Background())
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Contains(t, depErr.Error(), "package.json")
	assert.False(t, b.IsRunning())
	assert.NoFileExists(t, filepath.Join(dir, "spawned"))
}

func TestInstallFailureCarriesStderr(t *testing.T) {
	b := NewBridge(fakeEngineOptions(t, engineProject(t, false), "install-fail"), zaptest.NewLogger(t))

	err := b.EnsureDependencies(context.Background())
	var depErr *DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Contains(t, depErr.Output, "could not resolve left-pad")
}

func TestInstallCreatesDependencyCache(t *testing.T) {
	dir := engineProject(t, false)
	b := NewBridge(fakeEngineOptions(t, dir, "install-ok"), zaptest.NewLogger(t))

	require.NoError(t, b.EnsureDependencies(context.Background()))
	assert.DirExists(t, filepath.Join(dir, "node_modules"))
}

func TestBridgeAnswersWhileInstalling(t *testing.T) {
	dir := engineProject(t, false)
	b := NewBridge(fakeEngineOptions(t, dir, "install-slow"), zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Stop() })

	started := make(chan error, 1)
	go func() { started <- b.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "installing"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	begin := time.Now()
	assert.ErrorIs(t, b.Send(protocol.GetQrCode{AccountID: "acme"}), ErrProcessNotRunning)
	assert.False(t, b.IsRunning())
	assert.Zero(t, b.PID())
	assert.Less(t, time.Since(begin), time.Second)

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Start did not finish after the install")
	}
	assert.True(t, b.IsRunning())
	_, ok := nextEvent(t, b).(protocol.Ready)
	assert.True(t, ok)
}

func TestMissingInstallCommand(t *testing.T) {
	opts := fakeEngineOptions(t, engineProject(t, false), "echo")
	opts.InstallCommand = nil
	b := NewBridge(opts, nil)

	var depErr *DependencyError
	assert.ErrorAs(t, b.EnsureDependencies(context.Background()), &depErr)
}

func TestDecodeDropsNoiseAndCommands(t *testing.T) {
	b := newTestBridge(t, "noise")
	require.NoError(t, b.Start(context.Background()))

	select {
	case line := <-b.Lines():
		_, ok := b.Decode(line)
		assert.False(t, ok, "non-JSON line %q decoded", line)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
	_, ok := nextEvent(t, b).(protocol.Ready)
	assert.True(t, ok)

	cmd, err := protocol.Encode(protocol.NewCommand(protocol.StopAccount{AccountID: "acme"}))
	require.NoError(t, err)
	_, ok = b.Decode(string(cmd))
	assert.False(t, ok, "command line must not decode as an event")
}

func TestUnexpectedExitReported(t *testing.T) {
	b := newTestBridge(t, "crash")
	require.NoError(t, b.Start(context.Background()))

	_, ok := nextEvent(t, b).(protocol.Ready)
	require.True(t, ok)
	engineErr, ok := nextEvent(t, b).(protocol.Error)
	require.True(t, ok, "output written before the crash must still be delivered")
	assert.Equal(t, "fatal: boom", engineErr.Error)

	select {
	case err := <-b.Exits():
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
	case <-time.After(5 * time.Second):
		t.Fatal("no exit notification")
	}
	assert.False(t, b.IsRunning())
	assert.ErrorIs(t, b.Send(protocol.GetContacts{AccountID: "acme"}), ErrProcessNotRunning)
}

func TestRestartAfterStop(t *testing.T) {
	b := newTestBridge(t, "echo")
	require.NoError(t, b.Start(context.Background()))
	first := b.PID()
	require.NoError(t, b.Stop())

	require.NoError(t, b.Start(context.Background()))
	assert.NotEqual(t, first, b.PID())
	assert.True(t, b.IsRunning())
}

func TestStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBridge(fakeEngineOptions(t, engineProject(t, true), "echo"), nil)
	require.NoError(t, b.Start(context.Background()))
	require.NoError(t, b.Send(protocol.StartAccount{AccountID: "acme"}))
	require.NoError(t, b.Stop())
}
