package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ListenTCP opens a client-facing listener. Keepalive settings are applied by
// the kernel-facing ListenConfig; the returned listener counts accepts.
func ListenTCP(ctx context.Context, network, addr string, ka net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: ka}
	if !ka.Enable {
		lc.KeepAlive = -1
	}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}
	return &countingListener{Listener: ln}, nil
}

type countingListener struct {
	net.Listener
}

func (l *countingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			acceptErrors.Inc()
		}
		return nil, err
	}
	connectionsAccepted.Inc()
	return conn, nil
}
