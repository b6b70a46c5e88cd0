package transport

import (
	"fmt"
	"net"
	"time"
)

// dialRetryDelay spaces out connection attempts while the server is still
// binding its port.
const dialRetryDelay = 50 * time.Millisecond

// DialTCP connects to a language server listening on a TCP address,
// retrying until the connect window elapses. Servers often take a moment to
// bind their port after being spawned, so refused connections are retried.
// On failure the caller is expected to terminate the spawned process.
func DialTCP(addr string, window time.Duration, opts ...Option) (*Pipe, error) {
	if window <= 0 {
		window = DefaultConnectWindow
	}
	deadline := time.Now().Add(window)

	var lastErr error
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		conn, err := net.DialTimeout("tcp", addr, remaining)
		if err == nil {
			return NewPipe(conn, conn, conn, opts...), nil
		}
		lastErr = err

		delay := dialRetryDelay
		if remaining < delay {
			delay = remaining
		}
		time.Sleep(delay)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectTimeout, addr, lastErr)
	}
	return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, addr)
}
