// Package ipc supervises the engine subprocess and frames the line protocol
// over its standard streams.
package ipc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/ry-diffusion/Tina/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle of a supervised process.
type State int32

const (
	NotSpawned State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case NotSpawned:
		return "not_spawned"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// stdinQueueSize bounds the lines waiting to be written to the engine.
const stdinQueueSize = 100

// Spec describes how to launch a process.
type Spec struct {
	Dir     string
	Command string
	Args    []string
	Env     []string // appended to the current environment
}

// Process owns one running engine and its three standard streams. A writer
// task drains the stdin queue, a reader task forwards stdout lines and a
// diagnostics task logs stderr. Each task owns its own stream.
type Process struct {
	cmd    *exec.Cmd
	logger *zap.Logger
	state  atomic.Int32

	queue      chan string
	quit       chan struct{} // closed by Terminate
	writerDone chan struct{}
	exited     chan struct{} // closed once the process is reaped
	waitErr    error

	stdout, stderr *os.File
	streams        errgroup.Group
	terminate      sync.Once

	stopRequested atomic.Bool // set by the owner before a deliberate stop
}

// Spawn starts the process described by spec and forwards every stdout line
// to out. A send to out blocks while out is full.
func Spawn(spec Spec, out chan<- string, logger *zap.Logger) (*Process, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = sysProcAttr()
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	// Plain pipes rather than StdoutPipe so cmd.Wait can reap the process
	// while the readers are still draining.
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeAll(outR, outW)
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		closeAll(outR, outW, errR, errW)
		return nil, &SpawnError{Command: spec.Command, Err: err}
	}
	closeAll(outW, errW)

	p := &Process{
		cmd:        cmd,
		logger:     logger.With(zap.Int("engine_pid", cmd.Process.Pid)),
		queue:      make(chan string, stdinQueueSize),
		quit:       make(chan struct{}),
		writerDone: make(chan struct{}),
		exited:     make(chan struct{}),
		stdout:     outR,
		stderr:     errR,
	}
	p.state.Store(int32(Running))

	go func() {
		p.waitErr = cmd.Wait()
		p.state.Store(int32(Terminated))
		close(p.exited)
	}()

	p.streams.Go(func() error { return p.writeLoop(stdin) })
	p.streams.Go(func() error { return p.readLoop(out) })
	p.streams.Go(func() error { return p.logLoop() })

	p.logger.Info("engine process started", zap.String("command", spec.Command), zap.Strings("args", spec.Args))
	return p, nil
}

// PID returns the operating system process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// State returns the lifecycle state without reaping.
func (p *Process) State() State { return State(p.state.Load()) }

// Exited is closed once the process has exited and been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Send queues one line for the engine, adding the trailing newline if
// missing. It blocks while the queue is full and fails with
// ErrChannelClosed once the writer has stopped.
func (p *Process) Send(ctx context.Context, line string) error {
	select {
	case <-p.writerDone:
		return ErrChannelClosed
	default:
	}
	select {
	case p.queue <- protocol.Frame(line):
		return nil
	case <-p.writerDone:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll reports whether the process is still alive.
func (p *Process) Poll() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Terminate kills the process and everything in its process group. It is
// safe to call any number of times, including after the process exited.
func (p *Process) Terminate() error {
	var err error
	p.terminate.Do(func() {
		close(p.quit)
		if !p.Poll() {
			return
		}
		err = p.killGroup()
		p.logger.Info("engine process terminated")
	})
	return err
}

// killGroup SIGKILLs the process group without touching the stream tasks.
// Output already written is still forwarded while out has room.
func (p *Process) killGroup() error {
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	err = p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait blocks until the process is reaped and its stream tasks finished. If
// ctx ends first the output pipes are closed to unblock the readers.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.exited:
	case <-ctx.Done():
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		_ = p.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// A grandchild outside the process group may still hold the pipes.
		closeAll(p.stdout, p.stderr)
		<-done
	}
	return p.waitErr
}

func (p *Process) writeLoop(stdin io.WriteCloser) error {
	defer close(p.writerDone)
	defer func() { _ = stdin.Close() }()

	for {
		select {
		case line := <-p.queue:
			if _, err := io.WriteString(stdin, line); err != nil {
				p.logger.Warn("engine stdin write failed", zap.Error(err))
				return nil
			}
		case <-p.quit:
			return nil
		case <-p.exited:
			return nil
		}
	}
}

func (p *Process) readLoop(out chan<- string) error {
	defer func() { _ = p.stdout.Close() }()

	r := bufio.NewReader(p.stdout)
	for {
		line, err := r.ReadString('\n')
		if line != "" && !p.forward(out, strings.TrimRight(line, "\r\n")) {
			return nil
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("engine stdout read failed", zap.Error(err))
			}
			return nil
		}
	}
}

// forward delivers line to out. After Terminate a line is only dropped when
// out is full.
func (p *Process) forward(out chan<- string, line string) bool {
	select {
	case out <- line:
		return true
	default:
	}
	select {
	case out <- line:
		return true
	case <-p.quit:
		return false
	}
}

func (p *Process) logLoop() error {
	defer func() { _ = p.stderr.Close() }()

	r := bufio.NewReader(p.stderr)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			p.logger.Warn("engine stderr", zap.String("line", line))
		}
		if err != nil {
			return nil
		}
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
