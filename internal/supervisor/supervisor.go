// Package supervisor runs one language server connection end to end: it
// spawns the process, attaches the transport, performs the initialize
// handshake, and restarts crashed servers with exponential backoff,
// re-opening tracked documents after recovery.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/lspwire/internal/config"
	"github.com/dshills/lspwire/internal/document"
	"github.com/dshills/lspwire/internal/process"
	"github.com/dshills/lspwire/internal/protocol"
	"github.com/dshills/lspwire/internal/rpc"
)

// Standard errors returned by the supervisor.
var (
	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("supervisor already started")

	// ErrNotRunning indicates the server is not available for requests.
	ErrNotRunning = errors.New("server not running")
)

// State is the supervision state of a server.
type State int

const (
	// StateIdle means supervision has not started.
	StateIdle State = iota
	// StateRunning means the server is up and initialized.
	StateRunning
	// StateRestarting means the server crashed and a restart is in progress.
	StateRestarting
	// StateFailed means restarts were exhausted.
	StateFailed
	// StateStopped means the supervisor was explicitly stopped.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config tunes crash recovery.
type Config struct {
	// MaxRestarts is the number of restart attempts before giving up.
	MaxRestarts int

	// InitialBackoff is the delay before the first restart attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay after each failed attempt.
	BackoffMultiplier float64

	// ResetWindow resets the restart count after the server has run this
	// long without crashing.
	ResetWindow time.Duration
}

// DefaultConfig returns the default recovery tuning.
func DefaultConfig() Config {
	return Config{
		MaxRestarts:       5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 2.0,
		ResetWindow:       5 * time.Minute,
	}
}

// EventType identifies a supervision event.
type EventType int

const (
	// EventCrash indicates the server went down.
	EventCrash EventType = iota
	// EventRestarting indicates a restart attempt is scheduled.
	EventRestarting
	// EventRecovered indicates the server is back up.
	EventRecovered
	// EventFailed indicates restarts were exhausted.
	EventFailed
)

// String returns a human-readable event type name.
func (t EventType) String() string {
	switch t {
	case EventCrash:
		return "crash"
	case EventRestarting:
		return "restarting"
	case EventRecovered:
		return "recovered"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event reports a supervision state change.
type Event struct {
	Type      EventType
	Server    string
	Err       error
	Attempt   int
	NextRetry time.Duration
}

// Supervisor owns one language server connection.
type Supervisor struct {
	mu sync.Mutex

	name      string
	serverCfg config.ServerConfig
	settings  config.Settings
	cfg       Config
	rootURI   protocol.DocumentURI

	proc    *process.Process
	client  *rpc.Client
	tracker *document.Tracker

	// notifHandlers survive restarts so callers register once.
	notifHandlers map[string]rpc.NotificationHandler

	state        atomic.Int32
	restartCount int
	lastStart    time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	crashCh   chan struct{}
	eventCh   chan Event
	closed    atomic.Bool
	closeOnce sync.Once

	log *slog.Logger
}

// New creates a supervisor for the named server. Supervision begins with
// Start.
func New(name string, serverCfg config.ServerConfig, settings config.Settings, cfg Config, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		name:          name,
		serverCfg:     serverCfg,
		settings:      settings,
		cfg:           cfg,
		notifHandlers: make(map[string]rpc.NotificationHandler),
		crashCh:       make(chan struct{}, 1),
		eventCh:       make(chan Event, 16),
		log:           log.With("server", name),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// Start spawns and initializes the server for the given workspace root and
// begins crash monitoring.
func (s *Supervisor) Start(ctx context.Context, rootPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) != StateIdle {
		return ErrAlreadyStarted
	}

	if rootPath != "" {
		s.rootURI = protocol.FilePathToURI(rootPath)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.startServerLocked(); err != nil {
		s.state.Store(int32(StateFailed))
		return err
	}
	s.tracker = document.NewTracker(s.client, s.log)

	s.state.Store(int32(StateRunning))
	go s.monitor()
	return nil
}

// startServerLocked spawns the process, attaches the transport, and runs the
// initialize handshake. Must hold mu.
func (s *Supervisor) startServerLocked() error {
	proc, err := process.Spawn(process.Config{
		Command: s.serverCfg.Command,
		Args:    s.serverCfg.Args,
		Env:     s.serverCfg.Env,
		Dir:     s.serverCfg.WorkDir,
	}, process.WithName(s.name), process.WithLogger(s.log))
	if err != nil {
		return fmt.Errorf("spawn %s: %w", s.name, err)
	}

	var client *rpc.Client
	if s.serverCfg.TCPPort != 0 {
		client, err = rpc.AttachTCP(proc, s.serverCfg.TCPPort, s.settings, s.log)
	} else {
		client, err = rpc.AttachStdio(proc, s.settings, s.log)
	}
	if err != nil {
		return err
	}

	client.SetCrashHandler(s.signalCrash)
	for method, handler := range s.notifHandlers {
		client.OnNotification(method, handler)
	}

	if err := s.initializeLocked(client); err != nil {
		client.Exit()
		proc.Kill()
		return err
	}

	s.proc = proc
	s.client = client
	s.lastStart = time.Now()
	s.log.Info("server started", "instance", proc.ID(), "pid", proc.PID())
	return nil
}

// initializeLocked runs the initialize/initialized handshake.
func (s *Supervisor) initializeLocked(client *rpc.Client) error {
	params := protocol.InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               s.rootURI,
		Capabilities:          map[string]any{},
		InitializationOptions: s.serverCfg.InitializationOptions,
	}

	raw := client.ExecuteRequest(protocol.Initialize(params), s.serverCfg.RequestTimeout())
	if raw == nil {
		return fmt.Errorf("initialize %s: no response", s.name)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("initialize %s: %w", s.name, err)
	}
	if result.ServerInfo != nil {
		s.log.Debug("server identified", "name", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	}

	client.SendNotification(protocol.Initialized())
	return nil
}

// signalCrash is installed as the client's crash handler.
func (s *Supervisor) signalCrash() {
	select {
	case s.crashCh <- struct{}{}:
	default:
	}
}

// monitor waits for crash signals and drives recovery.
func (s *Supervisor) monitor() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.crashCh:
			if !s.recover() {
				return
			}
		}
	}
}

// recover restarts the crashed server with backoff. It returns false when
// supervision should end.
func (s *Supervisor) recover() bool {
	for {
		s.mu.Lock()
		if State(s.state.Load()) == StateStopped {
			s.mu.Unlock()
			return false
		}

		if time.Since(s.lastStart) > s.cfg.ResetWindow {
			s.restartCount = 0
		}
		s.restartCount++
		attempt := s.restartCount
		s.proc = nil
		s.client = nil

		s.emit(Event{Type: EventCrash, Server: s.name, Attempt: attempt})

		if attempt > s.cfg.MaxRestarts {
			s.state.Store(int32(StateFailed))
			s.emit(Event{Type: EventFailed, Server: s.name, Attempt: attempt})
			s.mu.Unlock()
			s.log.Error("server failed permanently", "attempts", attempt-1)
			return false
		}

		delay := CalculateBackoff(attempt, s.cfg.InitialBackoff, s.cfg.MaxBackoff, s.cfg.BackoffMultiplier)
		s.state.Store(int32(StateRestarting))
		s.emit(Event{Type: EventRestarting, Server: s.name, Attempt: attempt, NextRetry: delay})
		s.mu.Unlock()

		s.log.Warn("server crashed, restarting", "attempt", attempt, "backoff", delay)

		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(delay):
		}

		s.mu.Lock()
		if State(s.state.Load()) == StateStopped {
			s.mu.Unlock()
			return false
		}
		if err := s.startServerLocked(); err != nil {
			s.emit(Event{Type: EventCrash, Server: s.name, Err: err, Attempt: attempt})
			s.mu.Unlock()
			s.log.Warn("restart failed", "attempt", attempt, "error", err)
			continue
		}

		s.tracker.Rebind(s.client)
		s.state.Store(int32(StateRunning))
		s.emit(Event{Type: EventRecovered, Server: s.name, Attempt: attempt})
		s.mu.Unlock()

		s.log.Info("server recovered", "attempt", attempt, "documents", s.tracker.Len())
		return true
	}
}

// emit delivers an event without blocking; listeners that fall behind lose
// events rather than stalling recovery.
func (s *Supervisor) emit(ev Event) {
	if s.closed.Load() {
		return
	}
	select {
	case s.eventCh <- ev:
	default:
	}
}

// Stop shuts the server down gracefully: shutdown request, exit
// notification, then a bounded wait before the process is killed.
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	state := State(s.state.Load())
	if state == StateStopped || state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state.Store(int32(StateStopped))
	client := s.client
	proc := s.proc
	s.client = nil
	s.proc = nil
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.eventCh)
	})

	if client != nil {
		client.ExecuteRequest(protocol.Shutdown(), s.serverCfg.RequestTimeout())
		client.Exit()
	}
	if proc == nil {
		return
	}

	select {
	case <-proc.ExitChannel():
		s.log.Debug("server exited")
	case <-ctx.Done():
		s.log.Warn("server did not exit, killing")
		proc.Kill()
	case <-time.After(5 * time.Second):
		s.log.Warn("server did not exit, killing")
		proc.Kill()
	}
}

// Client returns the active connection, or an error while the server is
// down.
func (s *Supervisor) Client() (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || State(s.state.Load()) != StateRunning {
		return nil, ErrNotRunning
	}
	return s.client, nil
}

// Tracker returns the document tracker. It is valid after Start and
// survives restarts.
func (s *Supervisor) Tracker() *document.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}

// OnNotification registers a notification handler that survives restarts.
func (s *Supervisor) OnNotification(method string, handler rpc.NotificationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifHandlers[method] = handler
	if s.client != nil {
		s.client.OnNotification(method, handler)
	}
}

// State returns the current supervision state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// RestartCount returns the restart attempts since the last reset.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCount
}

// Events returns the supervision event stream. It is closed by Stop.
func (s *Supervisor) Events() <-chan Event {
	return s.eventCh
}

// Name returns the configured server name.
func (s *Supervisor) Name() string {
	return s.name
}

// CalculateBackoff returns the delay before the given restart attempt.
// Attempts zero and one get the initial delay; later attempts grow
// exponentially up to the cap.
func CalculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}
