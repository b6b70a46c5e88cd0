package transport

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// Pipe is a Transport over a reader/writer pair, typically a child process's
// stdout/stdin or a TCP connection.
type Pipe struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	writeMu sync.Mutex
	state   atomic.Int32
	started atomic.Bool

	onMessage MessageHandler
	onClose   CloseHandler
	closeOnce sync.Once

	done chan struct{}
	log  *slog.Logger
}

// Option configures a Pipe.
type Option func(*Pipe)

// WithLogger sets the logger used for transport-level diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipe) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPipe creates a transport over the given streams. The closer, if any, is
// closed when the transport shuts down.
func NewPipe(r io.Reader, w io.Writer, c io.Closer, opts ...Option) *Pipe {
	p := &Pipe{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: c,
		done:   make(chan struct{}),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state.Store(int32(StateDisconnected))
	return p
}

// NewStdio creates a transport over a spawned server's standard streams.
// Closing the transport closes the server's stdin.
func NewStdio(stdin io.WriteCloser, stdout io.Reader, opts ...Option) *Pipe {
	return NewPipe(stdout, stdin, stdin, opts...)
}

// Start begins the delivery goroutine. It may be called once.
func (p *Pipe) Start(onMessage MessageHandler, onClose CloseHandler) error {
	if p.started.Swap(true) {
		return ErrAlreadyStarted
	}
	p.onMessage = onMessage
	p.onClose = onClose
	p.state.Store(int32(StateConnected))
	go p.readLoop()
	return nil
}

// Send writes one framed message. Concurrent senders are serialized so
// frames never interleave.
func (p *Pipe) Send(payload []byte) error {
	if p.State() != StateConnected {
		return ErrNotConnected
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return writeFrame(p.writer, payload)
}

// Close shuts the transport down. The delivery goroutine notices the closed
// stream and fires the close callback.
func (p *Pipe) Close() error {
	if State(p.state.Swap(int32(StateClosing))) == StateClosing {
		return nil
	}
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// State returns the current lifecycle state.
func (p *Pipe) State() State {
	return State(p.state.Load())
}

// readLoop delivers inbound messages sequentially until the stream ends.
// It owns the close notification so no onMessage can follow onClose.
func (p *Pipe) readLoop() {
	defer p.notifyClose()

	for {
		select {
		case <-p.done:
			return
		default:
		}

		payload, err := readFrame(p.reader)
		if err != nil {
			if errors.Is(err, errMissingLength) {
				// Header block without a length; the stream may recover.
				p.log.Debug("transport: dropping unframed header block")
				continue
			}
			if p.State() == StateClosing {
				return
			}
			p.state.Store(int32(StateCrashed))
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, net.ErrClosed) {
				p.log.Debug("transport: read failed", "error", err)
			}
			return
		}

		p.onMessage(payload)
	}
}

// notifyClose fires the close callback exactly once.
func (p *Pipe) notifyClose() {
	p.closeOnce.Do(func() {
		if p.onClose != nil {
			p.onClose()
		}
	})
}
