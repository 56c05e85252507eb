package proxy

import (
	"time"

	"github.com/die-net/socksgate/internal/dialer"
	"github.com/die-net/socksgate/internal/socks5"
)

type Config struct {
	// Auth gates every connection. Exactly one strategy serves a listener.
	Auth socks5.Authenticator

	// NegotiationTimeout bounds the handshake. Zero leaves handshake reads
	// unbounded.
	NegotiationTimeout time.Duration

	Dialer dialer.Dialer
}
