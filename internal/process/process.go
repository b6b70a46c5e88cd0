// Package process spawns language server child processes and exposes the
// pipes the transport layer communicates through.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/google/uuid"
)

// Config describes how to start a server process.
type Config struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables merged over the parent's.
	Env map[string]string

	// Dir is the working directory. Empty means the parent's.
	Dir string
}

// Process is a running language server child process.
type Process struct {
	id   string
	name string
	cmd  *exec.Cmd

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	exitCh chan error
	log    *slog.Logger
}

// Option configures a spawned process.
type Option func(*Process)

// WithLogger sets the logger used for process diagnostics and forwarded
// stderr output.
func WithLogger(log *slog.Logger) Option {
	return func(p *Process) {
		if log != nil {
			p.log = log
		}
	}
}

// WithName labels the process in log output (typically the server name).
func WithName(name string) Option {
	return func(p *Process) {
		p.name = name
	}
}

// Spawn starts the server process with stdin/stdout pipes attached.
// Stderr is piped as well; call ForwardStderr to surface it in the log,
// otherwise it is drained and discarded so the child never blocks on it.
func Spawn(cfg Config, opts ...Option) (*Process, error) {
	p := &Process{
		id:     uuid.New().String(),
		exitCh: make(chan error, 1),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.name == "" {
		p.name = cfg.Command
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if cfg.Dir != "" {
		cmd.Dir = cfg.Dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.stderr = stderr

	go p.monitor()

	return p, nil
}

// monitor waits for the process to exit and signals the exit channel.
func (p *Process) monitor() {
	err := p.cmd.Wait()
	select {
	case p.exitCh <- err:
	default:
	}
}

// ID returns the unique instance id assigned at spawn time. Restarted
// servers get fresh ids, which keeps log lines attributable across restarts.
func (p *Process) ID() string {
	return p.id
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stdin returns the pipe connected to the server's standard input.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout returns the pipe connected to the server's standard output.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// ForwardStderr copies the server's stderr into the log, one line at a time,
// until the process exits. It starts its own goroutine.
func (p *Process) ForwardStderr() {
	go func() {
		scanner := bufio.NewScanner(p.stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			p.log.Debug("server stderr", "server", p.name, "instance", p.id, "line", scanner.Text())
		}
	}()
}

// DiscardStderr drains stderr without logging it.
func (p *Process) DiscardStderr() {
	go func() {
		_, _ = io.Copy(io.Discard, p.stderr)
	}()
}

// ExitChannel receives the process's exit error (possibly nil) once.
func (p *Process) ExitChannel() <-chan error {
	return p.exitCh
}

// Terminate asks the process to stop. A process that already exited is not
// an error.
func (p *Process) Terminate() {
	if p.cmd.Process == nil {
		return
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Debug("terminate failed", "server", p.name, "error", err)
	}
}

// Kill stops the process immediately.
func (p *Process) Kill() {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Kill()
}
