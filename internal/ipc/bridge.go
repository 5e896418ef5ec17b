package ipc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ry-diffusion/Tina/internal/protocol"
	"go.uber.org/zap"
)

const (
	// ShutdownGrace is how long Stop waits for the engine to exit after
	// sending Shutdown before killing it.
	ShutdownGrace = 500 * time.Millisecond

	// InboundBuffer is the capacity of the raw stdout line channel.
	InboundBuffer = 1000

	reapTimeout = 2 * time.Second
)

// Options locate and launch the engine project.
type Options struct {
	Dir            string   // working directory of the engine
	Command        string   // entry executable
	Args           []string // entry arguments
	Env            []string // extra environment
	Manifest       string   // required project file, relative to Dir
	DepsDir        string   // dependency cache, relative to Dir; empty skips the install step
	InstallCommand []string // run in Dir when DepsDir is missing
}

// Bridge owns at most one engine process at a time.
//
// startMu serializes Start so concurrent starts spawn once. mu only guards
// proc and is never held while installing or waiting on the engine, so Send,
// IsRunning and PID answer immediately while a Start is in progress.
type Bridge struct {
	opts   Options
	logger *zap.Logger
	lines  chan string
	exits  chan error

	startMu sync.Mutex

	mu   sync.Mutex
	proc *Process
}

// NewBridge returns an idle bridge.
func NewBridge(opts Options, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		opts:   opts,
		logger: logger.Named("bridge"),
		lines:  make(chan string, InboundBuffer),
		exits:  make(chan error, 1),
	}
}

// Lines streams raw stdout lines of every engine this bridge spawns, in the
// order they were written.
func (b *Bridge) Lines() <-chan string { return b.lines }

// Exits reports engines that exited without Stop being called.
func (b *Bridge) Exits() <-chan error { return b.exits }

// EnsureDependencies checks the engine project is present and installs its
// dependencies when the cache directory is missing.
func (b *Bridge) EnsureDependencies(ctx context.Context) error {
	manifest := filepath.Join(b.opts.Dir, b.opts.Manifest)
	if _, err := os.Stat(manifest); err != nil {
		return &DependencyError{Reason: fmt.Sprintf("%s not found", manifest), Err: err}
	}
	if b.opts.DepsDir == "" {
		return nil
	}

	deps := filepath.Join(b.opts.Dir, b.opts.DepsDir)
	_, err := os.Stat(deps)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return &DependencyError{Reason: fmt.Sprintf("stat %s", deps), Err: err}
	}
	if len(b.opts.InstallCommand) == 0 {
		return &DependencyError{Reason: fmt.Sprintf("%s missing and no install command configured", deps)}
	}

	b.logger.Info("installing engine dependencies", zap.Strings("command", b.opts.InstallCommand))
	cmd := exec.CommandContext(ctx, b.opts.InstallCommand[0], b.opts.InstallCommand[1:]...)
	cmd.Dir = b.opts.Dir
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if len(b.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), b.opts.Env...)
	}
	if err := cmd.Run(); err != nil {
		return &DependencyError{Reason: "install failed", Output: string(bytes.TrimSpace(stderr.Bytes())), Err: err}
	}
	b.logger.Info("engine dependencies installed")
	return nil
}

// Start spawns the engine unless one is already running. Until the engine
// is spawned the bridge reports itself as not running.
func (b *Bridge) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.IsRunning() {
		return nil
	}

	if err := b.EnsureDependencies(ctx); err != nil {
		return err
	}

	p, err := Spawn(Spec{
		Dir:     b.opts.Dir,
		Command: b.opts.Command,
		Args:    b.opts.Args,
		Env:     b.opts.Env,
	}, b.lines, b.logger)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.proc = p
	b.mu.Unlock()
	go b.watch(p)
	return nil
}

// Stop asks the engine to shut down, waits up to ShutdownGrace for it to
// exit, then kills and reaps it. Stopping an idle bridge is a no-op.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	p := b.proc
	b.proc = nil
	if p != nil {
		p.stopRequested.Store(true)
	}
	b.mu.Unlock()

	if p == nil {
		return nil
	}

	grace := time.NewTimer(ShutdownGrace)
	defer grace.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	if line, err := protocol.Encode(protocol.NewCommand(protocol.Shutdown{})); err == nil {
		_ = p.Send(ctx, string(line))
	}
	cancel()

	select {
	case <-p.Exited():
		b.logger.Info("engine exited after shutdown request")
	case <-grace.C:
		b.logger.Warn("engine ignored shutdown request, killing", zap.Duration("grace", ShutdownGrace))
	}
	if err := p.Terminate(); err != nil {
		b.logger.Warn("kill engine", zap.Error(err))
	}

	ctx, cancel = context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()
	if err := p.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("reap engine %d: %w", p.PID(), err)
	}
	return nil
}

// Send encodes cmd and queues it for the engine.
func (b *Bridge) Send(cmd protocol.Command) error {
	b.mu.Lock()
	p := b.proc
	b.mu.Unlock()

	if p == nil {
		return ErrProcessNotRunning
	}
	line, err := protocol.Encode(protocol.NewCommand(cmd))
	if err != nil {
		return err
	}
	return p.Send(context.Background(), string(line))
}

// IsRunning polls the engine and forgets it as soon as it is seen dead.
func (b *Bridge) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.proc == nil {
		return false
	}
	if !b.proc.Poll() {
		b.proc = nil
		return false
	}
	return true
}

// PID returns the running engine's process id, or 0.
func (b *Bridge) PID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.proc == nil {
		return 0
	}
	return b.proc.PID()
}

// Decode parses a raw line as an engine Event. Commands and malformed lines
// are dropped.
func (b *Bridge) Decode(line string) (protocol.Event, bool) {
	m, err := protocol.Parse(line)
	if err != nil {
		b.logger.Debug("dropping engine line", zap.String("line", line), zap.Error(err))
		return nil, false
	}
	evt, ok := m.Event()
	if !ok {
		b.logger.Debug("dropping non-event line", zap.String("type", m.Payload.Type()))
		return nil, false
	}
	return evt, true
}

func (b *Bridge) watch(p *Process) {
	<-p.Exited()

	b.mu.Lock()
	if b.proc == p {
		b.proc = nil
	}
	expected := p.stopRequested.Load()
	b.mu.Unlock()

	if expected {
		return
	}
	// Helpers the engine forked must not outlive it.
	_ = p.killGroup()
	exitErr := &ExitError{PID: p.PID(), Err: p.waitErr}
	b.logger.Error("engine exited unexpectedly", zap.Error(exitErr))
	select {
	case b.exits <- exitErr:
	default:
		b.logger.Warn("exit notification dropped, previous one not consumed")
	}
}
