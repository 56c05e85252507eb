package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/die-net/socksgate/internal/socks5"
)

// acceptBackoff is how long Serve pauses after a transient Accept error.
const acceptBackoff = 100 * time.Millisecond

// SOCKS5Server accepts client connections and runs each one through the
// SOCKS5 handshake and relay in its own goroutine.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log *zerolog.Logger
	wg  sync.WaitGroup
}

func NewSOCKS5Server(ctx context.Context, cfg Config, log *zerolog.Logger) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: log}
}

// Serve accepts connections on ln until the server context is done or ln is
// closed. It closes ln when the context is done and waits for in-flight
// connections before returning. A canceled context is a clean stop and
// returns nil.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	stop := context.AfterFunc(s.ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			s.log.Error().Err(err).Msg("Error accepting connection")
			select {
			case <-s.ctx.Done():
				return nil
			case <-time.After(acceptBackoff):
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(c)
		}()
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connectionsActive.Inc()
	defer connectionsActive.Dec()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	// Closing the socket is the only way to interrupt a blocked handshake read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := s.log.With().
		Str("conn_id", uuid.NewString()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	start := time.Now()
	sc := &socks5.Conn{
		Client:             conn,
		Auth:               admitLogger{Authenticator: s.cfg.Auth, log: &log},
		Dialer:             s.cfg.Dialer,
		NegotiationTimeout: s.cfg.NegotiationTimeout,
	}
	sc.Relay = func(ctx context.Context, client, upstream net.Conn) error {
		log.Debug().
			Str("target", sc.Target().String()).
			Str("upstream", upstream.RemoteAddr().String()).
			Msg("Connected upstream")
		return Relay(ctx, client, upstream)
	}
	err := sc.Run(ctx)

	reason := socks5.Reason(err)
	if s.ctx.Err() != nil && err != nil {
		reason = "shutdown"
	}
	connectionsClosed.WithLabelValues(reason).Inc()

	switch {
	case err == nil:
		log.Info().
			Str("target", sc.Target().String()).
			Dur("duration", time.Since(start)).
			Msg("Connection closed")
	case reason == "shutdown":
		log.Debug().Err(err).Msg("Connection interrupted by shutdown")
	case errors.Is(err, socks5.ErrAuthDenied):
		log.Warn().Err(err).Msg("Access denied")
	case errors.Is(err, socks5.ErrUpstreamConnect):
		log.Debug().Err(err).Str("target", sc.Target().String()).Msg("Failed to connect upstream")
	default:
		log.Debug().Err(err).Msg("Error handling client")
	}
}

// admitLogger logs every connection its Authenticator lets past admission.
type admitLogger struct {
	socks5.Authenticator
	log *zerolog.Logger
}

func (a admitLogger) Admit(remote net.Addr) error {
	if err := a.Authenticator.Admit(remote); err != nil {
		return err
	}
	a.log.Info().Msg("Accepted connection")
	return nil
}
