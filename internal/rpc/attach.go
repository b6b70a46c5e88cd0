package rpc

import (
	"fmt"
	"log/slog"

	"github.com/dshills/lspwire/internal/config"
	"github.com/dshills/lspwire/internal/process"
	"github.com/dshills/lspwire/internal/transport"
)

// AttachStdio builds a client over the process's stdin/stdout pipes. The
// process's stderr is forwarded or drained per settings, and an unexpected
// transport closure terminates the process.
func AttachStdio(proc *process.Process, settings config.Settings, log *slog.Logger) (*Client, error) {
	t := transport.NewStdio(proc.Stdin(), proc.Stdout(), transport.WithLogger(log))
	return attach(proc, t, settings, log)
}

// AttachTCP builds a client over a TCP connection to the given port on
// localhost, retrying until the server starts listening or the connect
// window closes. On failure the spawned process is killed, since nothing
// can ever reach it.
func AttachTCP(proc *process.Process, port int, settings config.Settings, log *slog.Logger) (*Client, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	t, err := transport.DialTCP(addr, transport.DefaultConnectWindow, transport.WithLogger(log))
	if err != nil {
		proc.Kill()
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return attach(proc, t, settings, log)
}

func attach(proc *process.Process, t transport.Transport, settings config.Settings, log *slog.Logger) (*Client, error) {
	if settings.LogStderr {
		proc.ForwardStderr()
	} else {
		proc.DiscardStderr()
	}

	client, err := NewClient(t, settings, WithLogger(log))
	if err != nil {
		proc.Kill()
		return nil, err
	}
	client.SetTransportFailureHandler(proc.Terminate)
	return client, nil
}
